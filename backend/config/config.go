package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

var (
	ErrParse    = errors.New("unable to parse config")
	ErrValidate = errors.New("invalid config")
)

type Config struct {
	APIListenAddr string `env:"API_LISTEN_ADDR" envDefault:":8080" validate:"required"`
	WSListenAddr  string `env:"WS_LISTEN_ADDR"  envDefault:":8888" validate:"required"`
	LogLevel      string `env:"LOG_LEVEL"       envDefault:"debug" validate:"oneof=trace debug info warn error"`

	// PublicURL is where controllers open the join page.
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://localhost:8080" validate:"required,url"`

	RoomTTL       time.Duration `env:"ROOM_TTL"       envDefault:"60m" validate:"gt=0"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30m" validate:"gt=0"`

	LatencyProbeInterval time.Duration `env:"LATENCY_PROBE_INTERVAL" envDefault:"2s" validate:"gt=0"`

	InputBufferSize      int           `env:"INPUT_BUFFER_SIZE"       envDefault:"60"     validate:"min=1,max=6000"`
	InputMaxForwardDelta time.Duration `env:"INPUT_MAX_FORWARD_DELTA" envDefault:"1000ms" validate:"gt=0"`
	InputMinDelta        time.Duration `env:"INPUT_MIN_DELTA"         envDefault:"0s"     validate:"gte=0"`

	// TracksFile overrides the embedded track catalogue.
	TracksFile string `env:"TRACKS_FILE"`
}

// Load reads .env (if any), then the environment, then command line flags,
// which take precedence, and validates the result.
func Load(args []string, logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		logger.Debug().Err(err).Msg(".env file not found")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Join(ErrParse, err)
	}

	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)
	fs.StringVarP(&cfg.APIListenAddr, "api-listen-addr", "a", cfg.APIListenAddr, "api listen address")
	fs.StringVarP(&cfg.WSListenAddr, "ws-listen-addr", "w", cfg.WSListenAddr, "websocket listen address")
	fs.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "public base url used in join links")
	fs.DurationVar(&cfg.RoomTTL, "room-ttl", cfg.RoomTTL, "age after which empty rooms are removed")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "idle room sweep interval")
	fs.DurationVar(&cfg.LatencyProbeInterval, "latency-probe-interval", cfg.LatencyProbeInterval, "latency probe interval")
	fs.IntVar(&cfg.InputBufferSize, "input-buffer-size", cfg.InputBufferSize, "per connection input buffer capacity")
	fs.DurationVar(&cfg.InputMaxForwardDelta, "input-max-forward-delta", cfg.InputMaxForwardDelta, "max accepted input timestamp jump")
	fs.DurationVar(&cfg.InputMinDelta, "input-min-delta", cfg.InputMinDelta, "min accepted input timestamp step")
	fs.StringVarP(&cfg.TracksFile, "tracks", "t", cfg.TracksFile, "track catalogue yaml file")
	if err := fs.Parse(args); err != nil {
		return nil, errors.Join(ErrParse, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Join(ErrValidate, err)
	}
	return cfg, nil
}
