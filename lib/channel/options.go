package channel

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("channel is closed")

type options struct {
	logger zerolog.Logger
}

type Option func(*options)

func defaultOptions() options {
	return options{
		logger: log.With().Str("component", "channel").Logger(),
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
