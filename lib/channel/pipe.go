package channel

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snowmerak/presentation.go/lib/host"
	"github.com/snowmerak/presentation.go/lib/presentation"
)

var _ presentation.Channel = (*Pipe)(nil)

// Pipe connects a client to a Host in the same process. Posts are handed to
// the host in order on a goroutine of their own, so PostMessage never waits
// for the host to act.
type Pipe struct {
	host *host.Host
	id   host.InstanceID

	listenerMu sync.Mutex
	listener   func([]byte) error

	// mu guards closed and keeps work open while a post is in flight.
	mu     sync.RWMutex
	closed bool

	work chan []byte
	done chan struct{}

	logger zerolog.Logger
}

func NewPipe(h *host.Host, opts ...Option) (*Pipe, error) {
	o := buildOptions(opts)
	p := &Pipe{
		host:   h,
		work:   make(chan []byte, 64),
		done:   make(chan struct{}),
		logger: o.logger,
	}

	id, err := h.Connect(p.deliver)
	if err != nil {
		return nil, err
	}
	p.id = id

	go p.serve()
	return p, nil
}

// ID returns the instance id the host knows this pipe by.
func (p *Pipe) ID() host.InstanceID {
	return p.id
}

func (p *Pipe) Listen(fn func(message []byte) error) {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	p.listener = fn
}

func (p *Pipe) PostMessage(ctx context.Context, message []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.work <- append([]byte(nil), message...):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipe) SendSyncMessage(ctx context.Context, message []byte) ([]byte, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}
	return p.host.HandleSyncMessage(ctx, p.id, message)
}

// Close waits for posted messages to reach the host, then disconnects.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	close(p.work)
	p.mu.Unlock()

	<-p.done
	return p.host.Disconnect(context.Background(), p.id)
}

func (p *Pipe) serve() {
	defer close(p.done)
	for message := range p.work {
		if err := p.host.HandleMessage(context.Background(), p.id, message); err != nil {
			p.logger.Warn().Err(err).Msg("host failed to handle message")
		}
	}
}

func (p *Pipe) deliver(message []byte) error {
	p.listenerMu.Lock()
	listener := p.listener
	p.listenerMu.Unlock()

	if listener == nil {
		p.logger.Debug().Msg("no listener for host message")
		return nil
	}
	if err := listener(message); err != nil {
		p.logger.Debug().Err(err).Msg("host message rejected")
	}
	return nil
}

func (p *Pipe) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}
