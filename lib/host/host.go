package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snowmerak/presentation.go/lib/presentation"
)

var (
	ErrUnknownInstance = errors.New("unknown instance")
	ErrUnknownSession  = errors.New("unknown session")
	ErrUnexpectedSync  = errors.New("unexpected sync message")
	ErrHostClosed      = errors.New("host is closed")
)

// Sink delivers a host message to one connected client.
type Sink func(message []byte) error

// Session is a presentation the host is currently showing.
type Session struct {
	ID        SessionID
	Instance  InstanceID
	RequestID presentation.RequestID
	Display   Display
	URL       string
	View      presentation.ViewHandle
	Started   time.Time
}

type instance struct {
	id   InstanceID
	sink Sink
}

// Host is the native side of the presentation channel. It answers show
// requests and availability queries and pushes availability changes to
// every connected client.
type Host struct {
	displays  *DisplayManager
	presenter Presenter

	codec              presentation.Codec
	assetBase          string
	singlePresentation bool
	policy             ShowPolicy
	logger             zerolog.Logger

	mu        sync.Mutex
	instances []*instance
	sessions  map[SessionID]*Session
	// showing counts sessions plus shows still in flight.
	showing int
	closed  bool
}

func New(displays *DisplayManager, presenter Presenter, opts ...Option) *Host {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	h := &Host{
		displays:           displays,
		presenter:          presenter,
		codec:              o.codec,
		assetBase:          o.assetBase,
		singlePresentation: o.singlePresentation,
		policy:             o.policy,
		logger:             o.logger,
		sessions:           make(map[SessionID]*Session),
	}
	displays.AddObserver(h)
	return h
}

// Connect registers a client and returns its instance id.
func (h *Host) Connect(sink Sink) (InstanceID, error) {
	id, err := newID()
	if err != nil {
		return InstanceID{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return InstanceID{}, ErrHostClosed
	}
	h.instances = append(h.instances, &instance{id: id, sink: sink})
	h.logger.Debug().Stringer("instance", id).Msg("instance connected")
	return id, nil
}

// Disconnect forgets a client and dismisses the presentations it opened.
func (h *Host) Disconnect(ctx context.Context, id InstanceID) error {
	h.mu.Lock()
	i := slices.IndexFunc(h.instances, func(in *instance) bool { return in.id == id })
	if i < 0 {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownInstance, id)
	}
	h.instances = slices.Delete(h.instances, i, i+1)

	var owned []SessionID
	for sid, s := range h.sessions {
		if s.Instance == id {
			owned = append(owned, sid)
		}
	}
	h.mu.Unlock()

	h.logger.Debug().Stringer("instance", id).Int("sessions", len(owned)).Msg("instance disconnected")

	var errs []error
	for _, sid := range owned {
		if err := h.ClosePresentation(ctx, sid); err != nil && !errors.Is(err, ErrUnknownSession) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DisplayAvailable reports whether any secondary display is connected.
func (h *Host) DisplayAvailable() bool {
	return h.displays.Len() > 0
}

// HandleMessage handles an asynchronous message from a client. Messages
// the host does not understand are logged and dropped.
func (h *Host) HandleMessage(ctx context.Context, from InstanceID, message []byte) error {
	if !h.connected(from) {
		return fmt.Errorf("%w: %s", ErrUnknownInstance, from)
	}

	env, err := h.codec.Decode(message)
	if err != nil {
		h.logger.Warn().Err(err).Stringer("instance", from).Msg("dropping undecodable message")
		return nil
	}
	if env.Cmd != presentation.CmdRequestShow || env.RequestID < 0 {
		h.logger.Debug().Str("cmd", env.Cmd).Int64("request_id", int64(env.RequestID)).Msg("unknown command")
		return nil
	}

	return h.requestShow(ctx, from, env)
}

// HandleSyncMessage answers a synchronous message. The only one the host
// understands is QueryDisplayAvailability, sent either bare or encoded.
func (h *Host) HandleSyncMessage(_ context.Context, from InstanceID, message []byte) ([]byte, error) {
	cmd := string(bytes.TrimSpace(message))
	if cmd != presentation.CmdQueryDisplayAvailability {
		env, err := h.codec.Decode(message)
		if err != nil || env.Cmd != presentation.CmdQueryDisplayAvailability {
			h.logger.Error().Stringer("instance", from).Msg("unexpected sync message received")
			return nil, ErrUnexpectedSync
		}
	}

	if h.DisplayAvailable() {
		return []byte("true"), nil
	}
	return []byte("false"), nil
}

func (h *Host) requestShow(ctx context.Context, from InstanceID, env presentation.Envelope) error {
	url := h.normalizeURL(env.URL)
	logger := h.logger.With().Stringer("instance", from).Int64("request_id", int64(env.RequestID)).Str("url", url).Logger()

	if !h.policy(from, url) {
		logger.Debug().Msg("presentation not allowed")
		return h.fail(from, env.RequestID, presentation.InvalidAccessError)
	}

	display, ok := h.displays.Preferred()
	if !ok {
		logger.Debug().Msg("no available display")
		return h.fail(from, env.RequestID, presentation.NotFoundError)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return h.fail(from, env.RequestID, presentation.InvalidStateError)
	}
	if h.singlePresentation && h.showing > 0 {
		h.mu.Unlock()
		logger.Debug().Msg("a presentation is already showing")
		return h.fail(from, env.RequestID, presentation.InvalidAccessError)
	}
	if !display.Valid() {
		h.mu.Unlock()
		logger.Debug().Int("display", display.ID).Msg("selected display is invalid")
		return h.fail(from, env.RequestID, presentation.InvalidStateError)
	}
	h.showing++
	h.mu.Unlock()

	view, err := h.presenter.Show(ctx, display, url)
	if err != nil {
		h.mu.Lock()
		h.showing--
		h.mu.Unlock()

		logger.Error().Err(err).Msg("failed to show presentation")
		name := presentation.InvalidStateError
		var failure *presentation.Error
		if errors.As(err, &failure) {
			name = failure.Name
		}
		return h.fail(from, env.RequestID, name)
	}

	sid, err := newID()
	if err != nil {
		h.mu.Lock()
		h.showing--
		h.mu.Unlock()
		_ = h.presenter.Dismiss(ctx, view)
		return errors.Join(err, h.fail(from, env.RequestID, presentation.InvalidStateError))
	}

	h.mu.Lock()
	if h.closed {
		// Close has already swept the sessions; nobody would dismiss this one.
		h.showing--
		h.mu.Unlock()
		logger.Debug().Int64("view", int64(view)).Msg("host closed while showing")
		return errors.Join(h.presenter.Dismiss(ctx, view), h.fail(from, env.RequestID, presentation.InvalidStateError))
	}
	h.sessions[sid] = &Session{
		ID:        sid,
		Instance:  from,
		RequestID: env.RequestID,
		Display:   display,
		URL:       url,
		View:      view,
		Started:   time.Now(),
	}
	h.mu.Unlock()

	logger.Info().Stringer("session", sid).Int64("view", int64(view)).Msg("presentation started")
	return h.send(from, presentation.Envelope{
		Cmd:       presentation.CmdShowSucceeded,
		RequestID: env.RequestID,
		View:      view,
	})
}

// ClosePresentation dismisses a shown presentation.
func (h *Host) ClosePresentation(ctx context.Context, id SessionID) error {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	delete(h.sessions, id)
	h.showing--
	h.mu.Unlock()

	if err := h.presenter.Dismiss(ctx, s.View); err != nil {
		return fmt.Errorf("failed to dismiss view %d: %w", s.View, err)
	}
	h.logger.Info().Stringer("session", id).Int64("view", int64(s.View)).Msg("presentation closed")
	return nil
}

// Sessions returns the shown presentations, oldest first.
func (h *Host) Sessions() []Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions := make([]Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, *s)
	}
	slices.SortFunc(sessions, func(a, b Session) int { return a.Started.Compare(b.Started) })
	return sessions
}

// DisplayAdded broadcasts availability when the first display appears.
func (h *Host) DisplayAdded(d Display, count int) {
	h.logger.Debug().Int("display", d.ID).Int("count", count).Msg("display added")
	if count == 1 {
		h.broadcast(true)
	}
}

// DisplayRemoved broadcasts unavailability when the last display goes away.
func (h *Host) DisplayRemoved(d Display, count int) {
	h.logger.Debug().Int("display", d.ID).Int("count", count).Msg("display removed")
	if count == 0 {
		h.broadcast(false)
	}
}

// Close dismisses every presentation and stops accepting clients.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHostClosed
	}
	h.closed = true
	ids := make([]SessionID, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	h.displays.RemoveObserver(h)

	var errs []error
	for _, id := range ids {
		if err := h.ClosePresentation(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// normalizeURL keeps web URLs and places everything else under the asset
// base.
func (h *Host) normalizeURL(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") || strings.HasPrefix(url, h.assetBase) {
		return url
	}
	return h.assetBase + strings.TrimPrefix(url, "/")
}

func (h *Host) fail(to InstanceID, id presentation.RequestID, name string) error {
	return h.send(to, presentation.Envelope{
		Cmd:       presentation.CmdShowFailed,
		RequestID: id,
		Error:     name,
	})
}

func (h *Host) send(to InstanceID, env presentation.Envelope) error {
	message, err := h.codec.Encode(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", env.Cmd, err)
	}

	h.mu.Lock()
	i := slices.IndexFunc(h.instances, func(in *instance) bool { return in.id == to })
	var sink Sink
	if i >= 0 {
		sink = h.instances[i].sink
	}
	h.mu.Unlock()

	if sink == nil {
		return fmt.Errorf("%w: %s", ErrUnknownInstance, to)
	}
	if err := sink(message); err != nil {
		return fmt.Errorf("failed to deliver %s: %w", env.Cmd, err)
	}
	return nil
}

func (h *Host) connected(id InstanceID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.ContainsFunc(h.instances, func(in *instance) bool { return in.id == id })
}

func (h *Host) broadcast(available bool) {
	message, err := h.codec.Encode(presentation.Envelope{
		Cmd:       presentation.CmdDisplayAvailableChange,
		Available: available,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode availability change")
		return
	}

	h.mu.Lock()
	instances := slices.Clone(h.instances)
	h.mu.Unlock()

	for _, in := range instances {
		if err := in.sink(message); err != nil {
			h.logger.Warn().Err(err).Stringer("instance", in.id).Bool("available", available).Msg("failed to deliver availability change")
		}
	}
	h.logger.Info().Bool("available", available).Int("instances", len(instances)).Msg("display availability changed")
}
