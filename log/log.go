// Package log provides the logging facilities used across the prover
// server, built on top of zap.  Call Init once at startup; the leveled
// helpers are safe to use from any package afterwards (a sane default
// logger is installed so tests that forget Init still produce output).
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger

func init() {
	// default logger, overridden by Init
	Init("info", []string{"stdout"})
}

// Init the logger with the given level (debug, info, warn, error) and
// output paths ("stdout" or file paths).
func Init(levelStr string, outputs []string) {
	var level zap.AtomicLevel
	err := level.UnmarshalText([]byte(levelStr))
	if err != nil {
		panic(err)
	}
	cfg := zap.Config{
		Level:            level,
		Encoding:         "console",
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "msg",
			LevelKey:       "level",
			TimeKey:        "ts",
			NameKey:        "name",
			CallerKey:      "caller",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.RFC3339TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	log = logger.WithOptions(zap.AddCallerSkip(1)).Sugar()
	log.Infof("log level: %s", levelStr)
}

// Debug calls log.Debug
func Debug(args ...interface{}) { log.Debug(args...) }

// Info calls log.Info
func Info(args ...interface{}) { log.Info(args...) }

// Warn calls log.Warn
func Warn(args ...interface{}) { log.Warn(args...) }

// Error calls log.Error
func Error(args ...interface{}) { log.Error(args...) }

// Fatal calls log.Fatal
func Fatal(args ...interface{}) { log.Fatal(args...) }

// Debugf calls log.Debugf
func Debugf(template string, args ...interface{}) { log.Debugf(template, args...) }

// Infof calls log.Infof
func Infof(template string, args ...interface{}) { log.Infof(template, args...) }

// Warnf calls log.Warnf
func Warnf(template string, args ...interface{}) { log.Warnf(template, args...) }

// Errorf calls log.Errorf
func Errorf(template string, args ...interface{}) { log.Errorf(template, args...) }

// Fatalf calls log.Fatalf
func Fatalf(template string, args ...interface{}) { log.Fatalf(template, args...) }

// Debugw calls log.Debugw
func Debugw(template string, kv ...interface{}) { log.Debugw(template, kv...) }

// Infow calls log.Infow
func Infow(template string, kv ...interface{}) { log.Infow(template, kv...) }

// Warnw calls log.Warnw
func Warnw(template string, kv ...interface{}) { log.Warnw(template, kv...) }

// Errorw calls log.Errorw
func Errorw(template string, kv ...interface{}) { log.Errorw(template, kv...) }

// Fatalw calls log.Fatalw
func Fatalw(template string, kv ...interface{}) { log.Fatalw(template, kv...) }
