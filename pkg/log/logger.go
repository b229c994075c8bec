package log

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Logger = zerolog.Logger

type Fields map[string]interface{}

// New builds the process logger. Local runs get a console writer, everything else JSON on stdout.
func New(env, level string) Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	base := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "local" {
		base = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return base.Level(lvl)
}

func Nop() Logger { return zerolog.Nop() }

func With(logger Logger, fields Fields) Logger {
	event := logger
	for k, v := range fields {
		event = event.With().Interface(k, v).Logger()
	}
	return event
}
