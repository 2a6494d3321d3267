package presentation

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Dispatcher routes host messages to the registry and the broadcaster.
// Routing itself runs on the caller's goroutine; every effect is posted to
// the queue, so continuations and listeners always run on a later turn and
// in the order the messages arrived.
type Dispatcher struct {
	codec       Codec
	registry    *Registry
	broadcaster *Broadcaster
	queue       *TaskQueue
	logger      zerolog.Logger
}

func NewDispatcher(codec Codec, registry *Registry, broadcaster *Broadcaster, queue *TaskQueue, logger zerolog.Logger) *Dispatcher {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Dispatcher{
		codec:       codec,
		registry:    registry,
		broadcaster: broadcaster,
		queue:       queue,
		logger:      logger,
	}
}

// Dispatch decodes raw and routes it. Errors describe why a message was
// dropped; they are already logged and never reach the embedder.
func (d *Dispatcher) Dispatch(raw []byte) error {
	env, err := d.codec.Decode(raw)
	if err != nil {
		d.logger.Error().Err(err).Int("size", len(raw)).Msg("dropping undecodable host message")
		return err
	}
	return d.Route(env)
}

func (d *Dispatcher) Route(env Envelope) error {
	var task func()

	switch env.Cmd {
	case CmdDisplayAvailableChange:
		available := env.Available
		task = func() { d.broadcaster.Notify(available) }

	case CmdShowSucceeded:
		id, view := env.RequestID, env.View
		task = func() { _ = d.registry.ResolveSuccess(id, view) }

	case CmdShowFailed:
		id, failure := env.RequestID, hostError(env.Error)
		task = func() { _ = d.registry.ResolveFailure(id, failure) }

	default:
		d.logger.Error().Str("cmd", env.Cmd).Msg("invalid message")
		return fmt.Errorf("%w: %q", ErrUnrecognizedMessage, env.Cmd)
	}

	if err := d.queue.Post(task); err != nil {
		d.logger.Warn().Str("cmd", env.Cmd).Err(err).Msg("dropping host message")
		return err
	}
	return nil
}
