package logging

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Debug controls whether debug logs are printed.
var Debug bool

var (
	current atomic.Pointer[zap.SugaredLogger]
	// helpers skips one frame so callers of Debugf and friends are reported.
	helpers atomic.Pointer[zap.SugaredLogger]
)

func init() {
	store(zap.NewNop())
}

func store(logger *zap.Logger) {
	current.Store(logger.Sugar())
	helpers.Store(logger.WithOptions(zap.AddCallerSkip(1)).Sugar())
}

// Init builds the process logger. format is "json" or "console".
func Init(debug bool, format string) error {
	Debug = debug
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	encoding := "console"
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		encoding = "json"
	}
	config := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(level),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}
	logger, err := config.Build()
	if err != nil {
		return err
	}
	store(logger)
	return nil
}

// L returns the process logger.
func L() *zap.SugaredLogger { return current.Load() }

// With returns a child logger carrying the given key/value pairs.
func With(args ...any) *zap.SugaredLogger {
	return current.Load().With(args...)
}

// Debugf logs a formatted debug message when Debug is enabled.
func Debugf(format string, v ...any) {
	if Debug {
		helpers.Load().Debugf(format, v...)
	}
}

func Infof(format string, v ...any)  { helpers.Load().Infof(format, v...) }
func Warnf(format string, v ...any)  { helpers.Load().Warnf(format, v...) }
func Errorf(format string, v ...any) { helpers.Load().Errorf(format, v...) }

// Sync flushes buffered log entries.
func Sync() {
	_ = current.Load().Sync()
}
