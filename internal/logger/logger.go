package logger

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// PgxLogger echoes pgx statements through zerolog.
type PgxLogger struct {
	logger zerolog.Logger
}

// NewSQLTracer returns a pgx tracer logging every statement at info level, used
// when tenant units are built with SQL echo on.
func NewSQLTracer(logger zerolog.Logger) *tracelog.TraceLog {
	return &tracelog.TraceLog{
		Logger:   &PgxLogger{logger: logger.With().Str("component", "sql").Logger()},
		LogLevel: tracelog.LogLevelInfo,
	}
}

func (l *PgxLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	var ev *zerolog.Event
	switch level {
	case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
		ev = l.logger.Debug()
	case tracelog.LogLevelInfo:
		ev = l.logger.Info()
	case tracelog.LogLevelWarn:
		ev = l.logger.Warn()
	default:
		ev = l.logger.Error()
	}

	ev.Fields(data).Msg(msg)
}
