// Package config loads settings for the example host and client from
// defaults, an optional YAML file, PRESENTATION_* environment variables and
// command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/snowmerak/presentation.go/lib/host"
	"github.com/snowmerak/presentation.go/lib/presentation"
)

const envPrefix = "PRESENTATION"

type Config struct {
	Host   HostConfig   `mapstructure:"host"`
	Client ClientConfig `mapstructure:"client"`
	Log    LogConfig    `mapstructure:"log"`
}

// HostConfig configures the reference host and how the client starts it.
type HostConfig struct {
	Path               string   `mapstructure:"path"`
	Args               []string `mapstructure:"args"`
	DisplaysFile       string   `mapstructure:"displays_file"`
	UsePrimaryDisplay  bool     `mapstructure:"use_primary_display"`
	SinglePresentation bool     `mapstructure:"single_presentation"`
	AssetBase          string   `mapstructure:"asset_base"`
}

type ClientConfig struct {
	Codec          string        `mapstructure:"codec"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SyncTimeout    time.Duration `mapstructure:"sync_timeout"`
	OpenerOrigin   string        `mapstructure:"opener_origin"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"host-path":       "host.path",
	"displays":        "host.displays_file",
	"use-primary":     "host.use_primary_display",
	"single":          "host.single_presentation",
	"asset-base":      "host.asset_base",
	"codec":           "client.codec",
	"request-timeout": "client.request_timeout",
	"sync-timeout":    "client.sync_timeout",
	"opener-origin":   "client.opener_origin",
	"log-level":       "log.level",
	"log-pretty":      "log.pretty",
}

// Flags registers the command line flags Load understands on fs.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file (env PRESENTATION_CONFIG)")
	fs.String("host-path", "", "host binary the client starts")
	fs.String("displays", "", "YAML file listing the displays the host starts with")
	fs.Bool("use-primary", false, "allow presenting on the primary display")
	fs.Bool("single", true, "allow only one presentation at a time")
	fs.String("asset-base", host.DefaultAssetBase, "prefix for URLs that are not http or https")
	fs.String("codec", "json", "wire codec: json or protobuf")
	fs.Duration("request-timeout", 0, "fail show requests the host has not answered in time (0 waits forever)")
	fs.Duration("sync-timeout", 5*time.Second, "bound on the synchronous availability query")
	fs.String("opener-origin", "", "origin show requests are checked against")
	fs.String("log-level", "info", "log level")
	fs.Bool("log-pretty", true, "human readable logs on stderr")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host.path", "")
	v.SetDefault("host.args", []string{})
	v.SetDefault("host.displays_file", "")
	v.SetDefault("host.use_primary_display", false)
	v.SetDefault("host.single_presentation", true)
	v.SetDefault("host.asset_base", host.DefaultAssetBase)
	v.SetDefault("client.codec", "json")
	v.SetDefault("client.request_timeout", time.Duration(0))
	v.SetDefault("client.sync_timeout", 5*time.Second)
	v.SetDefault("client.opener_origin", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}

// Load builds a Config. fs may be nil; when given, flags registered with
// Flags override every other source once they are set.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")

	cfgPath := os.Getenv(envPrefix + "_CONFIG")
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			cfgPath = f.Value.String()
		}
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("presentation")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Validate reports every setting that cannot be used.
func (c Config) Validate() error {
	var errs []error

	if _, err := presentation.CodecByName(c.Client.Codec); err != nil {
		errs = append(errs, fmt.Errorf("client.codec: %w", err))
	}
	if c.Client.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("client.request_timeout must not be negative"))
	}
	if c.Client.SyncTimeout < 0 {
		errs = append(errs, fmt.Errorf("client.sync_timeout must not be negative"))
	}
	if c.Client.OpenerOrigin != "" {
		if _, err := presentation.NewOriginPolicy(c.Client.OpenerOrigin); err != nil {
			errs = append(errs, fmt.Errorf("client.opener_origin: %w", err))
		}
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// Options turns the client settings into presentation options.
func (c ClientConfig) Options(logger zerolog.Logger) ([]presentation.Option, error) {
	codec, err := presentation.CodecByName(c.Codec)
	if err != nil {
		return nil, err
	}

	opts := []presentation.Option{
		presentation.WithCodec(codec),
		presentation.WithRequestTimeout(c.RequestTimeout),
		presentation.WithSyncTimeout(c.SyncTimeout),
		presentation.WithLogger(logger),
	}
	if c.OpenerOrigin != "" {
		policy, err := presentation.NewOriginPolicy(c.OpenerOrigin)
		if err != nil {
			return nil, err
		}
		opts = append(opts, presentation.WithOriginPolicy(policy))
	}
	return opts, nil
}

// Options turns the host settings into host options. The host speaks the
// client's codec.
func (c HostConfig) Options(codec string, logger zerolog.Logger) ([]host.Option, error) {
	cd, err := presentation.CodecByName(codec)
	if err != nil {
		return nil, err
	}
	return []host.Option{
		host.WithCodec(cd),
		host.WithAssetBase(c.AssetBase),
		host.WithSinglePresentation(c.SinglePresentation),
		host.WithLogger(logger),
	}, nil
}

// Logger builds the root logger. Pretty output goes through a console
// writer; otherwise every line is JSON.
func (c LogConfig) Logger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}

	if c.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
