package host

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/snowmerak/presentation.go/lib/presentation"
)

const DefaultAssetBase = "file:///android_asset/"

// ShowPolicy decides whether an instance may open a presentation at all.
type ShowPolicy func(instance InstanceID, url string) bool

type options struct {
	codec              presentation.Codec
	assetBase          string
	singlePresentation bool
	policy             ShowPolicy
	logger             zerolog.Logger
}

type Option func(*options)

func defaultOptions() options {
	return options{
		codec:              presentation.JSONCodec{},
		assetBase:          DefaultAssetBase,
		singlePresentation: true,
		policy:             func(InstanceID, string) bool { return true },
		logger:             log.With().Str("component", "host").Logger(),
	}
}

func WithCodec(codec presentation.Codec) Option {
	return func(o *options) {
		if codec != nil {
			o.codec = codec
		}
	}
}

// WithAssetBase sets the prefix relative and non-web URLs are resolved under.
func WithAssetBase(base string) Option {
	return func(o *options) {
		if base != "" {
			o.assetBase = base
		}
	}
}

// WithSinglePresentation limits the host to one presentation at a time.
// It is on by default.
func WithSinglePresentation(single bool) Option {
	return func(o *options) {
		o.singlePresentation = single
	}
}

func WithShowPolicy(policy ShowPolicy) Option {
	return func(o *options) {
		if policy != nil {
			o.policy = policy
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
