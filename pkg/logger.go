package pkg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelErrOnly
	LogLevelDebug
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelNone:
		return "none"
	case LogLevelErrOnly:
		return "error"
	case LogLevelDebug:
		return "debug"
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// ParseLogLevel maps a config/flag value to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch s {
	case "none", "off":
		return LogLevelNone, nil
	case "", "error", "err":
		return LogLevelErrOnly, nil
	case "debug":
		return LogLevelDebug, nil
	}
	return LogLevelNone, fmt.Errorf("invalid log level: %s", s)
}

// levelNone is above every level slog emits, so nothing passes.
const levelNone = slog.Level(100)

var (
	log_level  = LogLevelErrOnly
	slog_level = &slog.LevelVar{}
	logger     = newLogger(colorable.NewColorable(os.Stderr), !isatty.IsTerminal(os.Stderr.Fd()))
)

func init() {
	slog_level.Set(slog.LevelError)
}

func newLogger(w io.Writer, no_color bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      slog_level,
		TimeFormat: time.DateTime,
		NoColor:    no_color,
	}))
}

func SetLogLevel(level LogLevel) {
	log_level = level

	switch level {
	case LogLevelNone:
		slog_level.Set(levelNone)
	case LogLevelErrOnly:
		slog_level.Set(slog.LevelError)
	case LogLevelDebug:
		slog_level.Set(slog.LevelDebug)
	}
	logger.Debug("log level set", "level", level)
}

func GetLogLevel() LogLevel { return log_level }

// SetLogOutput redirects all log output to w without colour.
func SetLogOutput(w io.Writer) {
	logger = newLogger(w, true)
}

func InfoLog(msg string, args ...any)  { logger.Info(msg, args...) }
func WarnLog(msg string, args ...any)  { logger.Warn(msg, args...) }
func ErrorLog(msg string, args ...any) { logger.Error(msg, args...) }
func DebugLog(msg string, args ...any) { logger.Debug(msg, args...) }

// FatalLog always writes, regardless of the configured level, then exits.
func FatalLog(msg string, args ...any) {
	logger.Handler().Handle(context.Background(), fatalRecord(msg, args...))
	os.Exit(1)
}

func fatalRecord(msg string, args ...any) slog.Record {
	r := slog.NewRecord(time.Now(), slog.LevelError+4, msg, 0)
	r.Add(args...)
	return r
}
