package presentation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowmerak/presentation.go/lib/presentation"
)

func TestTaskQueue_RunsInPostOrder(t *testing.T) {
	q := presentation.NewTaskQueue()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, q.Post(func() { order = append(order, i) }))
	}
	assert.Empty(t, order, "Post never runs inline")

	assert.Equal(t, 5, q.Drain())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestTaskQueue_TasksPostedByTasksRunAfterQueuedOnes(t *testing.T) {
	q := presentation.NewTaskQueue()

	var order []string
	require.NoError(t, q.Post(func() {
		order = append(order, "a")
		_ = q.Post(func() { order = append(order, "c") })
	}))
	require.NoError(t, q.Post(func() { order = append(order, "b") }))

	assert.Equal(t, 3, q.Drain())
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTaskQueue_CloseRejectsNewTasksButRunsQueuedOnes(t *testing.T) {
	q := presentation.NewTaskQueue()

	ran := make(chan struct{}, 1)
	require.NoError(t, q.Post(func() { ran <- struct{}{} }))
	q.Close()

	assert.ErrorIs(t, q.Post(func() {}), presentation.ErrClosed)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Run(ctx))

	select {
	case <-ran:
	default:
		t.Fatal("queued task did not run")
	}
}

func TestTaskQueue_RunWakesOnPost(t *testing.T) {
	q := presentation.NewTaskQueue()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	ran := make(chan struct{})
	require.NoError(t, q.Post(func() { close(ran) }))

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("Run did not pick up the task")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
