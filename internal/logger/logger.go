// Package logger provides the configured zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

// Options controls where and how much the logger writes.
type Options struct {
	// Level is a zerolog level name ("debug", "info", ...). Unknown names
	// fall back to info.
	Level string

	// Console switches to human-readable output.
	Console bool

	// Out defaults to stderr so log lines never mix with command output.
	Out io.Writer
}

type stackTracer interface{ StackTrace() pkgerrors.StackTrace }

// New returns a logger tagged with the service name. Call sites use
// .Stack() on error events to include stacks.
func New(serviceName string, opts Options) zerolog.Logger {
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}
