package presentation

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// RequestID identifies one RequestShow call for the lifetime of a Registry.
type RequestID int64

// ViewHandle is the host's opaque identifier for the view it created.
type ViewHandle int64

// ViewHandleNone is what a host reports when the new view cannot be scripted
// from the opener. It is still passed through to the resolver.
const ViewHandleNone ViewHandle = -2

// View is whatever a ViewResolver produced for a handle.
type View any

// ViewResolver turns a host view handle into something the success
// continuation can use.
type ViewResolver interface {
	ResolveView(handle ViewHandle) View
}

type ViewResolverFunc func(handle ViewHandle) View

func (f ViewResolverFunc) ResolveView(handle ViewHandle) View {
	return f(handle)
}

// handleResolver hands the raw handle through.
var handleResolver = ViewResolverFunc(func(handle ViewHandle) View { return handle })

// PendingRequest is owned by the Registry from Submit until it is resolved.
type PendingRequest struct {
	ID        RequestID
	URL       string
	OnSuccess func(View)
	OnFailure func(*Error)
}

// Registry correlates host responses with pending RequestShow calls.
// It is not safe for concurrent use; it belongs to the event loop.
type Registry struct {
	next     RequestID
	pending  map[RequestID]*PendingRequest
	resolver ViewResolver
	logger   zerolog.Logger

	// onRemove, when set, is told about every id that leaves the registry.
	onRemove func(RequestID)
}

func NewRegistry(resolver ViewResolver, logger zerolog.Logger) *Registry {
	if resolver == nil {
		resolver = handleResolver
	}
	return &Registry{
		pending:  make(map[RequestID]*PendingRequest),
		resolver: resolver,
		logger:   logger,
	}
}

// Submit stores the continuation pair under a fresh id and returns it. Ids
// start at 1 and only ever increase.
func (r *Registry) Submit(url string, onSuccess func(View), onFailure func(*Error)) RequestID {
	r.next++
	id := r.next
	r.pending[id] = &PendingRequest{
		ID:        id,
		URL:       url,
		OnSuccess: onSuccess,
		OnFailure: onFailure,
	}
	r.logger.Debug().Int64("request_id", int64(id)).Str("url", url).Msg("show request submitted")
	return id
}

// ResolveSuccess removes the request and invokes its success continuation
// with the resolved view.
func (r *Registry) ResolveSuccess(id RequestID, handle ViewHandle) error {
	req, ok := r.take(id)
	if !ok {
		r.logger.Warn().Int64("request_id", int64(id)).Msg("invalid request id in show success")
		return fmt.Errorf("resolve success %d: %w", id, ErrUnknownRequest)
	}

	if req.OnSuccess != nil {
		req.OnSuccess(r.resolver.ResolveView(handle))
	}
	return nil
}

// ResolveFailure removes the request and invokes its failure continuation.
func (r *Registry) ResolveFailure(id RequestID, failure *Error) error {
	req, ok := r.take(id)
	if !ok {
		r.logger.Warn().Int64("request_id", int64(id)).Msg("invalid request id in show failure")
		return fmt.Errorf("resolve failure %d: %w", id, ErrUnknownRequest)
	}

	if req.OnFailure != nil {
		req.OnFailure(failure)
	}
	return nil
}

// Expire fails the request if it is still pending. Unlike ResolveFailure it
// is quiet when the id is gone, since losing the race to a real response is
// the normal case for a timeout.
func (r *Registry) Expire(id RequestID, failure *Error) bool {
	req, ok := r.take(id)
	if !ok {
		return false
	}
	r.logger.Debug().Int64("request_id", int64(id)).Str("error", failure.Name).Msg("show request expired")
	if req.OnFailure != nil {
		req.OnFailure(failure)
	}
	return true
}

// Abort fails every pending request, oldest first, and returns how many
// there were.
func (r *Registry) Abort(failure *Error) int {
	ids := make([]RequestID, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		r.Expire(id, failure)
	}
	return len(ids)
}

func (r *Registry) Has(id RequestID) bool {
	_, ok := r.pending[id]
	return ok
}

func (r *Registry) Pending() int {
	return len(r.pending)
}

func (r *Registry) take(id RequestID) (*PendingRequest, bool) {
	req, ok := r.pending[id]
	if !ok {
		return nil, false
	}
	delete(r.pending, id)
	if r.onRemove != nil {
		r.onRemove(id)
	}
	return req, true
}
