package kvtree

import (
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v3"
)

// badgerLogger routes badger's printf-style logs into slog
type badgerLogger struct {
	slogger *slog.Logger
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.slogger.Error(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.slogger.Warn(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.slogger.Info(fmt.Sprintf(format, args...))
}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.slogger.Debug(fmt.Sprintf(format, args...))
}

func newLogger(slogger *slog.Logger) badger.Logger {
	return &badgerLogger{slogger: slogger}
}

// withBadgerLevel applies the badger logging level matching the slog level.
// badger's level type is unexported, so it cannot be returned directly.
func withBadgerLevel(opts badger.Options, level slog.Level) badger.Options {
	switch {
	case level <= slog.LevelDebug:
		return opts.WithLoggingLevel(badger.DEBUG)
	case level <= slog.LevelInfo:
		return opts.WithLoggingLevel(badger.INFO)
	case level <= slog.LevelWarn:
		return opts.WithLoggingLevel(badger.WARNING)
	}
	return opts.WithLoggingLevel(badger.ERROR)
}
