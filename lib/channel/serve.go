package channel

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/snowmerak/presentation.go/lib/host"
	"github.com/snowmerak/presentation.go/lib/multiplexer"
)

// Serve connects one client, reachable over r and w, to h and serves it
// until the connection ends or ctx is done. Sync messages are answered from
// the read loop; posts are handed to the host in order on a second
// goroutine so a slow show never delays an availability query.
func Serve(ctx context.Context, h *host.Host, r io.Reader, w io.Writer, opts ...Option) error {
	o := buildOptions(opts)
	mux := multiplexer.New(r, w)

	id, err := h.Connect(func(message []byte) error {
		data, err := (&Frame{Kind: KindPost, Payload: message}).MarshalBinary()
		if err != nil {
			return err
		}
		return mux.WriteMessage(ctx, data)
	})
	if err != nil {
		return fmt.Errorf("failed to connect to host: %w", err)
	}
	logger := o.logger.With().Stringer("instance", id).Logger()
	logger.Info().Msg("client connected")

	g, gctx := errgroup.WithContext(ctx)
	posts := make(chan []byte, 64)

	g.Go(func() error {
		defer close(posts)

		messages, err := mux.ReadMessage(gctx)
		if err != nil {
			return fmt.Errorf("failed to start reading: %w", err)
		}

		for m := range messages {
			switch m.Type {
			case multiplexer.FrameTypeError:
				logger.Warn().Uint32("sequence", m.Sequence).Str("reason", string(m.Data)).Msg("transport error")
				continue
			case multiplexer.FrameTypeAbort:
				logger.Debug().Uint32("sequence", m.Sequence).Msg("client aborted a message")
				continue
			}

			var frame Frame
			if err := frame.UnmarshalBinary(m.Data); err != nil {
				logger.Warn().Err(err).Uint32("sequence", m.Sequence).Msg("dropping malformed frame")
				continue
			}

			switch frame.Kind {
			case KindPost:
				select {
				case posts <- frame.Payload:
				case <-gctx.Done():
					return gctx.Err()
				}

			case KindSync:
				answer := Frame{Kind: KindReply}
				payload, err := h.HandleSyncMessage(gctx, id, frame.Payload)
				if err != nil {
					answer = Frame{Kind: KindReplyError, Payload: []byte(err.Error())}
				} else {
					answer.Payload = payload
				}
				data, err := answer.MarshalBinary()
				if err != nil {
					return err
				}
				if err := mux.WriteMessageWithSequence(gctx, m.Sequence, data); err != nil {
					return fmt.Errorf("failed to reply: %w", err)
				}

			default:
				logger.Warn().Stringer("kind", frame.Kind).Msg("unexpected frame from client")
			}
		}

		logger.Info().Msg("client disconnected")
		return gctx.Err()
	})

	g.Go(func() error {
		for message := range posts {
			if err := h.HandleMessage(gctx, id, message); err != nil {
				logger.Warn().Err(err).Msg("host failed to handle message")
			}
		}
		return nil
	})

	err = g.Wait()
	if derr := h.Disconnect(context.WithoutCancel(ctx), id); derr != nil && !errors.Is(derr, host.ErrUnknownInstance) {
		err = errors.Join(err, derr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
