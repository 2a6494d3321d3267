package presentation

import (
	"context"
	"sync"
)

// TaskQueue is a FIFO of deferred tasks. Post may be called from any
// goroutine; tasks run one at a time, in post order, on whichever goroutine
// calls Run or Drain. A task posted while another runs is deferred to a later
// turn and never executed inline.
type TaskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post enqueues task. It returns ErrClosed once the queue is closed.
func (q *TaskQueue) Post(task func()) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of queued tasks.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Drain runs queued tasks, including ones they post, until the queue is
// empty. It returns how many tasks ran.
func (q *TaskQueue) Drain() int {
	ran := 0
	for {
		task, ok := q.pop()
		if !ok {
			return ran
		}
		task()
		ran++
	}
}

// Run drains the queue every time work arrives until ctx is done or the
// queue is closed. Tasks still queued at Close are run before Run returns.
func (q *TaskQueue) Run(ctx context.Context) error {
	for {
		q.Drain()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			q.Drain()
			return nil
		case <-q.wake:
		}
	}
}

// Close stops accepting tasks. Already queued tasks stay runnable.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *TaskQueue) pop() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, false
	}
	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return task, true
}
