// Package logging provides structured logging for the sync backend.
//
// The package keeps a small facade (message plus a context map) so call
// sites stay terse, and hands entries to a zap logger:
//
//	logging.Init(logging.Config{Env: "prod", Level: "info"})
//	defer logging.Sync()
//	logging.Info("Sync cycle completed", map[string]interface{}{"pushed": 12})
package logging

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the global logger.
type Config struct {
	// Env selects the encoder: "prod" writes JSON, anything else a
	// colored console format.
	Env string

	// Level is the minimum level: debug, info, warn, error.
	Level string

	// ServiceName is attached to every entry when set.
	ServiceName string
}

// Logger is a named logger with the map-context facade.
type Logger struct {
	z *zap.Logger
}

var (
	mu     sync.RWMutex
	global *Logger
)

// Init initializes the global logger. Later calls replace it.
func Init(cfg Config) {
	setGlobal(&Logger{z: build(cfg)})
}

// InitWithCore installs a logger over an existing zap core.
// Used by tests to capture entries with zaptest/observer.
func InitWithCore(core zapcore.Core) {
	setGlobal(&Logger{z: zap.New(core)})
}

func setGlobal(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = l
}

// Get returns the global logger instance, creating a dev logger on first use.
func Get() *Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(Config{Env: "dev", Level: "info"})
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Named returns a child of the global logger tagged with a component name.
func Named(name string) *Logger {
	return &Logger{z: Get().z.Named(name)}
}

// Sync flushes buffered entries of the global logger.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return nil
	}
	return global.z.Sync()
}

func build(cfg Config) *zap.Logger {
	var zcfg zap.Config
	if strings.ToLower(cfg.Env) == "prod" {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Level))
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	// Skip the facade method frame.
	l, err := zcfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
	if err != nil {
		l, _ = zap.NewProduction()
	}
	if cfg.ServiceName != "" {
		l = l.With(zap.String("service", cfg.ServiceName))
	}
	return l
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// fields flattens context maps into zap fields in key order.
func fields(context []map[string]interface{}) []zap.Field {
	if len(context) == 0 {
		return nil
	}
	merged := context[0]
	if len(context) > 1 {
		merged = make(map[string]interface{})
		for _, c := range context {
			for k, v := range c {
				merged[k] = v
			}
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, merged[k]))
	}
	return out
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, context ...map[string]interface{}) {
	l.z.Debug(message, fields(context)...)
}

// Info logs an info message.
func (l *Logger) Info(message string, context ...map[string]interface{}) {
	l.z.Info(message, fields(context)...)
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, context ...map[string]interface{}) {
	l.z.Warn(message, fields(context)...)
}

// Error logs an error message.
func (l *Logger) Error(message string, err error, context ...map[string]interface{}) {
	f := fields(context)
	if err != nil {
		f = append(f, zap.Error(err))
	}
	l.z.Error(message, f...)
}

// ErrorWithCode logs an error message tagged with an error code.
func (l *Logger) ErrorWithCode(message string, code string, err error, context ...map[string]interface{}) {
	f := append(fields(context), zap.String("code", code))
	if err != nil {
		f = append(f, zap.Error(err))
	}
	l.z.Error(message, f...)
}

// Convenience functions using global logger

func Debug(message string, context ...map[string]interface{}) {
	Get().Debug(message, context...)
}

func Info(message string, context ...map[string]interface{}) {
	Get().Info(message, context...)
}

func Warn(message string, context ...map[string]interface{}) {
	Get().Warn(message, context...)
}

func Error(message string, err error, context ...map[string]interface{}) {
	Get().Error(message, err, context...)
}

func ErrorWithCode(message string, code string, err error, context ...map[string]interface{}) {
	Get().ErrorWithCode(message, code, err, context...)
}
