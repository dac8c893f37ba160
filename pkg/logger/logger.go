package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"
	slogzerolog "github.com/samber/slog-zerolog/v2"
)

type Opts struct {
	Env   string
	Level slog.Level
	// Out defaults to stderr.
	Out io.Writer
}

// New builds a slog logger backed by zerolog. Production writes JSON lines,
// every other environment a human readable console format.
func New(opts Opts) *slog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Env != "production" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: opts.Out != nil}
	}

	zl := zerolog.New(out)
	handler := slogzerolog.Option{Level: opts.Level, Logger: &zl}.NewZerologHandler()
	return slog.New(handler)
}

// SetDefault installs the logger for the package level slog functions.
func SetDefault(opts Opts) *slog.Logger {
	l := New(opts)
	slog.SetDefault(l)
	return l
}
