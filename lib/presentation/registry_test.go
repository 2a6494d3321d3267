package presentation_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowmerak/presentation.go/lib/presentation"
)

func TestRegistry_SubmitAssignsDistinctIncreasingIDs(t *testing.T) {
	r := presentation.NewRegistry(nil, zerolog.Nop())

	seen := make(map[presentation.RequestID]bool)
	var last presentation.RequestID
	for i := 0; i < 1000; i++ {
		id := r.Submit("https://example.com", nil, nil)
		require.False(t, seen[id], "id %d handed out twice", id)
		require.Greater(t, id, last)
		seen[id] = true
		last = id
	}

	assert.Equal(t, 1000, r.Pending())
}

func TestRegistry_ResolvesAtMostOnce(t *testing.T) {
	r := presentation.NewRegistry(nil, zerolog.Nop())

	var successes, failures int
	id := r.Submit("https://example.com",
		func(presentation.View) { successes++ },
		func(*presentation.Error) { failures++ },
	)

	require.NoError(t, r.ResolveSuccess(id, 42))
	assert.ErrorIs(t, r.ResolveFailure(id, presentation.NewError(presentation.NotFoundError, "")), presentation.ErrUnknownRequest)
	assert.ErrorIs(t, r.ResolveSuccess(id, 43), presentation.ErrUnknownRequest)

	assert.Equal(t, 1, successes)
	assert.Equal(t, 0, failures)
	assert.False(t, r.Has(id))
}

func TestRegistry_UnknownIDLeavesOthersPending(t *testing.T) {
	r := presentation.NewRegistry(nil, zerolog.Nop())

	called := false
	id := r.Submit("https://example.com", func(presentation.View) { called = true }, nil)

	assert.ErrorIs(t, r.ResolveSuccess(999, 1), presentation.ErrUnknownRequest)
	assert.ErrorIs(t, r.ResolveFailure(999, presentation.NewError("Error", "boom")), presentation.ErrUnknownRequest)

	assert.False(t, called)
	assert.True(t, r.Has(id))
	assert.Equal(t, 1, r.Pending())
}

func TestRegistry_SuccessPassesResolvedView(t *testing.T) {
	type window struct{ handle presentation.ViewHandle }
	resolver := presentation.ViewResolverFunc(func(h presentation.ViewHandle) presentation.View {
		return window{handle: h}
	})
	r := presentation.NewRegistry(resolver, zerolog.Nop())

	var got presentation.View
	id := r.Submit("https://example.com", func(v presentation.View) { got = v }, nil)
	require.NoError(t, r.ResolveSuccess(id, 42))

	assert.Equal(t, window{handle: 42}, got)
}

func TestRegistry_FailurePassesError(t *testing.T) {
	r := presentation.NewRegistry(nil, zerolog.Nop())

	var got *presentation.Error
	id := r.Submit("https://example.com", nil, func(e *presentation.Error) { got = e })
	require.NoError(t, r.ResolveFailure(id, presentation.NewError(presentation.NotFoundError, "")))

	require.NotNil(t, got)
	assert.Equal(t, presentation.NotFoundError, got.Name)
	assert.Equal(t, "NotFoundError", got.Error())
}

func TestRegistry_ExpireIsQuietAfterResolution(t *testing.T) {
	r := presentation.NewRegistry(nil, zerolog.Nop())

	failures := 0
	id := r.Submit("https://example.com", func(presentation.View) {}, func(*presentation.Error) { failures++ })
	require.NoError(t, r.ResolveSuccess(id, 1))

	assert.False(t, r.Expire(id, presentation.NewError(presentation.TimeoutError, "")))
	assert.Equal(t, 0, failures)
}

func TestRegistry_AbortFailsOldestFirst(t *testing.T) {
	r := presentation.NewRegistry(nil, zerolog.Nop())

	var order []presentation.RequestID
	for i := 0; i < 5; i++ {
		var id presentation.RequestID
		id = r.Submit("https://example.com", nil, func(e *presentation.Error) {
			assert.Equal(t, presentation.AbortError, e.Name)
			order = append(order, id)
		})
	}

	assert.Equal(t, 5, r.Abort(presentation.NewError(presentation.AbortError, "closed")))
	assert.Equal(t, []presentation.RequestID{1, 2, 3, 4, 5}, order)
	assert.Zero(t, r.Pending())
}
