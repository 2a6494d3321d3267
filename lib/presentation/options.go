package presentation

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultSyncTimeout = 5 * time.Second

type options struct {
	codec          Codec
	queue          *TaskQueue
	resolver       ViewResolver
	opener         func() int64
	originPolicy   *OriginPolicy
	requestTimeout time.Duration
	syncTimeout    time.Duration
	logger         zerolog.Logger
}

type Option func(*options)

func defaultOptions() options {
	return options{
		codec:       JSONCodec{},
		resolver:    handleResolver,
		opener:      func() int64 { return NoOpener },
		syncTimeout: defaultSyncTimeout,
		logger:      log.With().Str("component", "presentation").Logger(),
	}
}

// WithCodec selects the wire format shared with the host.
func WithCodec(codec Codec) Option {
	return func(o *options) {
		if codec != nil {
			o.codec = codec
		}
	}
}

// WithTaskQueue makes the Presentation defer its work onto q instead of a
// private queue, so it can share an event loop with other components.
func WithTaskQueue(q *TaskQueue) Option {
	return func(o *options) {
		if q != nil {
			o.queue = q
		}
	}
}

func WithViewResolver(resolver ViewResolver) Option {
	return func(o *options) {
		if resolver != nil {
			o.resolver = resolver
		}
	}
}

// WithOpenerContext supplies the id of the view issuing requests.
func WithOpenerContext(opener func() int64) Option {
	return func(o *options) {
		if opener != nil {
			o.opener = opener
		}
	}
}

// WithOriginPolicy rejects cross-origin targets locally with a SecurityError.
func WithOriginPolicy(policy *OriginPolicy) Option {
	return func(o *options) {
		o.originPolicy = policy
	}
}

// WithRequestTimeout fails show requests the host has not answered within d
// with a TimeoutError. Zero, the default, waits forever.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.requestTimeout = d
		}
	}
}

// WithSyncTimeout bounds the synchronous availability query.
func WithSyncTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.syncTimeout = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
