package presentation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Channel is the asynchronous message channel to the native host.
// PostMessage must not wait for the host to act on the message.
type Channel interface {
	PostMessage(ctx context.Context, message []byte) error
	SendSyncMessage(ctx context.Context, message []byte) ([]byte, error)
}

// Presentation is the API surface handed to web content.
type Presentation struct {
	channel     Channel
	codec       Codec
	queue       *TaskQueue
	ownQueue    bool
	registry    *Registry
	broadcaster *Broadcaster
	dispatcher  *Dispatcher

	opener         func() int64
	originPolicy   *OriginPolicy
	requestTimeout time.Duration
	syncTimeout    time.Duration
	timers         map[RequestID]*time.Timer

	closed bool
	logger zerolog.Logger
}

func New(channel Channel, opts ...Option) *Presentation {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := &Presentation{
		channel:        channel,
		codec:          o.codec,
		queue:          o.queue,
		opener:         o.opener,
		originPolicy:   o.originPolicy,
		requestTimeout: o.requestTimeout,
		syncTimeout:    o.syncTimeout,
		timers:         make(map[RequestID]*time.Timer),
		logger:         o.logger,
	}
	if p.queue == nil {
		p.queue = NewTaskQueue()
		p.ownQueue = true
	}

	p.registry = NewRegistry(o.resolver, o.logger)
	p.registry.onRemove = p.stopTimer
	p.broadcaster = NewBroadcaster(p.queryAvailability, o.logger)
	p.dispatcher = NewDispatcher(p.codec, p.registry, p.broadcaster, p.queue, o.logger)

	return p
}

// RequestShow asks the host to show url on a presentation display. It
// returns at once; exactly one of onSuccess and onError is called later from
// the event loop. Once Close has stopped a private queue there is no loop
// left, so requests made after that are dropped without either call.
func (p *Presentation) RequestShow(url string, onSuccess func(View), onError func(*Error)) RequestID {
	id := p.registry.Submit(url, onSuccess, onError)

	if p.closed {
		p.failLater(id, NewError(InvalidStateError, ErrClosed.Error()))
		return id
	}

	target := url
	if p.originPolicy != nil {
		resolved, failure := p.originPolicy.Resolve(url)
		if failure != nil {
			p.logger.Warn().Int64("request_id", int64(id)).Str("url", url).Msg("show request rejected by origin policy")
			p.failLater(id, failure)
			return id
		}
		target = resolved
	}

	message, err := p.codec.Encode(Envelope{
		Cmd:       CmdRequestShow,
		RequestID: id,
		URL:       target,
		OpenerID:  p.opener(),
	})
	if err != nil {
		p.logger.Error().Err(err).Int64("request_id", int64(id)).Msg("failed to encode show request")
		p.failLater(id, NewError(AbortError, err.Error()))
		return id
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.syncTimeout)
	defer cancel()
	if err := p.channel.PostMessage(ctx, message); err != nil {
		p.logger.Error().Err(err).Int64("request_id", int64(id)).Msg("failed to post show request")
		p.failLater(id, NewError(AbortError, err.Error()))
		return id
	}

	if p.requestTimeout > 0 {
		p.timers[id] = time.AfterFunc(p.requestTimeout, func() {
			_ = p.queue.Post(func() {
				p.registry.Expire(id, NewError(TimeoutError, fmt.Sprintf("no answer within %s", p.requestTimeout)))
			})
		})
	}

	return id
}

// AddEventListener registers l for the named event. Names are case
// sensitive; only "displayavailablechange" is ever fired.
func (p *Presentation) AddEventListener(name string, l *Listener) {
	p.broadcaster.AddListener(Event(name), l)
}

// RemoveEventListener removes the first registration of l for the named event.
func (p *Presentation) RemoveEventListener(name string, l *Listener) {
	p.broadcaster.RemoveListener(Event(name), l)
}

// DisplayAvailable reports whether a presentation display is available.
// With no change listeners registered this is a synchronous host query.
func (p *Presentation) DisplayAvailable() bool {
	return p.broadcaster.Availability()
}

// SetOnDisplayAvailableChange replaces the ondisplayavailablechange handler.
// It is independent of listeners added with AddEventListener.
func (p *Presentation) SetOnDisplayAvailableChange(l *Listener) {
	p.broadcaster.SetSlot(l)
}

func (p *Presentation) OnDisplayAvailableChange() *Listener {
	return p.broadcaster.Slot()
}

// HandleMessage is the channel's message listener. It may be called from
// any goroutine.
func (p *Presentation) HandleMessage(message []byte) error {
	return p.dispatcher.Dispatch(message)
}

// Pending returns the number of unresolved show requests.
func (p *Presentation) Pending() int {
	return p.registry.Pending()
}

// Queue returns the task queue continuations run on.
func (p *Presentation) Queue() *TaskQueue {
	return p.queue
}

// Run runs the event loop until ctx is done or Close is called.
func (p *Presentation) Run(ctx context.Context) error {
	return p.queue.Run(ctx)
}

// Close fails every pending request with an AbortError on the next turn and,
// if the queue is private, stops accepting new work.
func (p *Presentation) Close() error {
	if p.closed {
		return ErrClosed
	}
	p.closed = true

	err := p.queue.Post(func() {
		if n := p.registry.Abort(NewError(AbortError, "presentation closed")); n > 0 {
			p.logger.Info().Int("requests", n).Msg("aborted pending show requests")
		}
	})
	if p.ownQueue {
		p.queue.Close()
	}
	return err
}

func (p *Presentation) failLater(id RequestID, failure *Error) {
	if err := p.queue.Post(func() { p.registry.Expire(id, failure) }); err != nil {
		// The loop is gone, so nobody would ever run the continuation.
		p.registry.take(id)
		p.logger.Warn().Err(err).Int64("request_id", int64(id)).Msg("could not schedule show failure")
	}
}

func (p *Presentation) queryAvailability() (bool, error) {
	message, err := p.codec.Encode(Envelope{Cmd: CmdQueryDisplayAvailability})
	if err != nil {
		return false, fmt.Errorf("failed to encode availability query: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.syncTimeout)
	defer cancel()

	reply, err := p.channel.SendSyncMessage(ctx, message)
	if err != nil {
		return false, fmt.Errorf("availability query: %w", err)
	}
	return strings.TrimSpace(string(reply)) == "true", nil
}

func (p *Presentation) stopTimer(id RequestID) {
	if timer, ok := p.timers[id]; ok {
		timer.Stop()
		delete(p.timers, id)
	}
}
