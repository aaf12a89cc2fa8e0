package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	logger     zerolog.Logger
	loggerOnce sync.Once
)

// initLogger initializes the global zerolog logger to write human-readable
// lines to stderr with timestamps.
func initLogger() {
	loggerOnce.Do(func() {
		var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		logger = zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	})
}

// SetLevel adjusts the minimum level of the global logger.
func SetLevel(l Level) {
	initLogger()
	switch l {
	case LevelDebug:
		logger = logger.Level(zerolog.DebugLevel)
	case LevelInfo:
		logger = logger.Level(zerolog.InfoLevel)
	case LevelError:
		logger = logger.Level(zerolog.ErrorLevel)
	}
}

func Debug(msg string, kv ...any) {
	initLogger()
	emit(logger.Debug(), msg, kv...)
}

func Info(msg string, kv ...any) {
	initLogger()
	emit(logger.Info(), msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	initLogger()
	emit(logger.Error().Err(err), msg, kv...)
}

// emit attaches kv as alternating key/value pairs. A trailing odd value or
// a non-string key is skipped rather than rejected.
func emit(ev *zerolog.Event, msg string, kv ...any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Str(key, fmt.Sprint(kv[i+1]))
	}
	ev.Msg(msg)
}
