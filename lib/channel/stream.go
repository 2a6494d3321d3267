package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/snowmerak/presentation.go/lib/multiplexer"
	"github.com/snowmerak/presentation.go/lib/presentation"
)

var _ presentation.Channel = (*Stream)(nil)

type reply struct {
	data []byte
	err  error
}

// Stream is the client end of a framed connection to a host. Posts go out
// as KindPost frames; sync messages wait for the KindReply carrying the same
// sequence. Run must be running for replies and host messages to arrive.
type Stream struct {
	mux    multiplexer.Multiplexer
	closer io.Closer

	mu       sync.Mutex
	pending  map[uint32]chan reply
	listener func([]byte) error
	closed   bool
	done     chan struct{}

	logger zerolog.Logger
}

func NewStream(r io.Reader, w io.Writer, opts ...Option) *Stream {
	o := buildOptions(opts)
	return &Stream{
		mux:     multiplexer.New(r, w),
		pending: make(map[uint32]chan reply),
		done:    make(chan struct{}),
		logger:  o.logger,
	}
}

// Listen sets the function host messages are handed to.
func (s *Stream) Listen(fn func(message []byte) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

func (s *Stream) PostMessage(ctx context.Context, message []byte) error {
	if s.isClosed() {
		return ErrClosed
	}

	data, err := (&Frame{Kind: KindPost, Payload: message}).MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.mux.WriteMessage(ctx, data); err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	return nil
}

func (s *Stream) SendSyncMessage(ctx context.Context, message []byte) ([]byte, error) {
	seq := s.mux.NextSequence()
	ch := make(chan reply, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.pending[seq] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, seq)
		s.mu.Unlock()
	}()

	data, err := (&Frame{Kind: KindSync, Payload: message}).MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := s.mux.WriteMessageWithSequence(ctx, seq, data); err != nil {
		return nil, fmt.Errorf("failed to send sync message: %w", err)
	}

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	}
}

// Run reads from the host until the connection ends, ctx is done or the
// stream is closed. Sync messages still waiting when it returns fail with
// ErrClosed.
func (s *Stream) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages, err := s.mux.ReadMessage(ctx)
	if err != nil {
		return fmt.Errorf("failed to start reading: %w", err)
	}
	defer s.failPending()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case m, ok := <-messages:
			if !ok {
				s.logger.Debug().Msg("host connection ended")
				return nil
			}
			s.handle(m)
		}
	}
}

func (s *Stream) handle(m *multiplexer.Message) {
	switch m.Type {
	case multiplexer.FrameTypeError:
		s.logger.Warn().Uint32("sequence", m.Sequence).Str("reason", string(m.Data)).Msg("transport error")
		return
	case multiplexer.FrameTypeAbort:
		s.logger.Debug().Uint32("sequence", m.Sequence).Msg("host aborted a message")
		return
	}

	var frame Frame
	if err := frame.UnmarshalBinary(m.Data); err != nil {
		s.logger.Warn().Err(err).Uint32("sequence", m.Sequence).Msg("dropping malformed frame")
		return
	}

	switch frame.Kind {
	case KindPost:
		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()
		if listener == nil {
			s.logger.Debug().Msg("no listener for host message")
			return
		}
		if err := listener(frame.Payload); err != nil {
			s.logger.Debug().Err(err).Msg("host message rejected")
		}

	case KindReply, KindReplyError:
		s.mu.Lock()
		ch, ok := s.pending[m.Sequence]
		delete(s.pending, m.Sequence)
		s.mu.Unlock()
		if !ok {
			s.logger.Warn().Uint32("sequence", m.Sequence).Msg("reply for unknown sync message")
			return
		}
		r := reply{data: frame.Payload}
		if frame.Kind == KindReplyError {
			r = reply{err: fmt.Errorf("host: %s", frame.Payload)}
		}
		ch <- r

	default:
		s.logger.Warn().Stringer("kind", frame.Kind).Msg("unexpected frame from host")
	}
}

func (s *Stream) failPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for seq, ch := range s.pending {
		ch <- reply{err: ErrClosed}
		delete(s.pending, seq)
	}
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops Run and releases the connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	var errs []error
	if err := s.mux.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
