package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// Prefix is prepended to the names of all the environment variables.
const Prefix = "LOOM_"

// ErrInvalid marks the errors of Validate.
var ErrInvalid = errors.New("invalid configuration")

type (
	URI struct {
		// MaxLength limits the path and the query, each on its own.
		MaxLength int `env:"MAX_LENGTH"`
	}

	Headers struct {
		// MaxNameLength limits a single header field name.
		MaxNameLength int `env:"MAX_NAME_LENGTH"`
		// MaxValueLength limits a single header field value. Also bounds the reason
		// phrase of parsed responses.
		MaxValueLength int `env:"MAX_VALUE_LENGTH"`
		// Number is the maximal number of header fields, trailer fields included.
		Number int `env:"NUMBER"`
	}

	Body struct {
		// MaxContentLength limits bodies buffered into the request. Zero refuses
		// any body that isn't consumed by a payload handler.
		MaxContentLength int64 `env:"MAX_CONTENT_LENGTH"`
		// MaxStreamLength limits bodies consumed by payload handlers. Zero disables
		// the limit.
		MaxStreamLength int64 `env:"MAX_STREAM_LENGTH" test:"nullable"`
	}

	NET struct {
		// ReadBufferSize is the size of the buffer every connection reads into.
		ReadBufferSize int `env:"READ_BUFFER_SIZE"`
		// KeepAliveTimeout closes connections that stay silent for that long.
		KeepAliveTimeout time.Duration `env:"KEEP_ALIVE_TIMEOUT"`
		// MaxReadCycles is how many reads a single message may take before the
		// connection is considered abusive and is closed.
		MaxReadCycles int `env:"MAX_READ_CYCLES"`
		// AcceptLoopInterruptPeriod controls how often is Accept interrupted in order
		// to check whether it's time to stop.
		AcceptLoopInterruptPeriod time.Duration `env:"ACCEPT_LOOP_INTERRUPT_PERIOD"`
	}

	Scheduler struct {
		// Workers is the number of goroutines running handlers.
		Workers int `env:"WORKERS"`
		// QueueSize is how many tasks may wait for a free worker.
		QueueSize int `env:"QUEUE_SIZE"`
		// DrainTimeout bounds how long the graceful shutdown waits for active
		// connections before closing them forcibly.
		DrainTimeout time.Duration `env:"DRAIN_TIMEOUT"`
	}
)

// Config holds the limits and timings used across the server.
//
// Always start from Default() and modify it, as the zero value isn't usable.
type Config struct {
	URI       URI       `envPrefix:"URI_"`
	Headers   Headers   `envPrefix:"HEADERS_"`
	Body      Body      `envPrefix:"BODY_"`
	NET       NET       `envPrefix:"NET_"`
	Scheduler Scheduler `envPrefix:"SCHEDULER_"`
}

// Default returns the default config.
func Default() *Config {
	return &Config{
		URI: URI{
			MaxLength: 4096,
		},
		Headers: Headers{
			MaxNameLength:  100,
			MaxValueLength: 8192,
			Number:         50,
		},
		Body: Body{
			MaxContentLength: 1 << 20,
			MaxStreamLength:  0,
		},
		NET: NET{
			ReadBufferSize:            4096,
			KeepAliveTimeout:          10 * time.Second,
			MaxReadCycles:             256,
			AcceptLoopInterruptPeriod: 5 * time.Second,
		},
		Scheduler: Scheduler{
			Workers:      runtime.NumCPU(),
			QueueSize:    1024,
			DrainTimeout: 30 * time.Second,
		},
	}
}

// FromEnv loads the dotenv files, if any, and overrides the defaults by the LOOM_*
// environment variables. The result is validated.
func FromEnv(dotenv ...string) (*Config, error) {
	if len(dotenv) > 0 {
		if err := godotenv.Load(dotenv...); err != nil {
			return nil, errors.Wrap(err, "failed to load dotenv")
		}
	}

	cfg := Default()
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, errors.Wrap(err, "failed to parse environment")
	}

	return cfg, cfg.Validate()
}

// Validate reports every field holding a value the server can't work with.
func (c *Config) Validate() error {
	var invalid []string
	check := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	check(c.URI.MaxLength > 0, "URI.MaxLength")
	check(c.Headers.MaxNameLength > 0, "Headers.MaxNameLength")
	check(c.Headers.MaxValueLength > 0, "Headers.MaxValueLength")
	check(c.Headers.Number > 0, "Headers.Number")
	check(c.Body.MaxContentLength >= 0, "Body.MaxContentLength")
	check(c.Body.MaxStreamLength >= 0, "Body.MaxStreamLength")
	check(c.NET.ReadBufferSize > 0, "NET.ReadBufferSize")
	check(c.NET.KeepAliveTimeout > 0, "NET.KeepAliveTimeout")
	check(c.NET.MaxReadCycles > 0, "NET.MaxReadCycles")
	check(c.NET.AcceptLoopInterruptPeriod > 0, "NET.AcceptLoopInterruptPeriod")
	check(c.Scheduler.Workers > 0, "Scheduler.Workers")
	check(c.Scheduler.QueueSize >= 0, "Scheduler.QueueSize")
	check(c.Scheduler.DrainTimeout > 0, "Scheduler.DrainTimeout")

	if len(invalid) == 0 {
		return nil
	}

	return errors.Wrapf(ErrInvalid, "out of range: %s", strings.Join(invalid, ", "))
}
