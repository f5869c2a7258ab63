// Package logging provides the structured logger shared by every component
// of the fragmentation engine. It wraps zap so call sites look the same
// whether they run inside the send queue, the reassembly buffer, or the
// demo transport.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls how the package-level logger is constructed.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
	// Format is "console" or "json". Defaults to "console".
	Format string
}

var (
	mu     sync.RWMutex
	logger *zap.Logger
)

func init() {
	Init(&Config{Level: "info", Format: "console"})
}

// Init (re)configures the package-level logger. Safe to call concurrently
// with logging calls; tests typically call this once from TestMain or an
// init func to avoid interleaved output across parallel packages.
func Init(cfg *Config) {
	if cfg == nil {
		cfg = &Config{}
	}

	var level zapcore.Level
	if err := level.Set(cfg.Level); err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.TimeKey = "ts"

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(newSyncWriter())), level)
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	logger = l
	mu.Unlock()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug logs at debug level.
func Debug(msg string, fields ...zap.Field) { current().Debug(msg, fields...) }

// Info logs at info level.
func Info(msg string, fields ...zap.Field) { current().Info(msg, fields...) }

// Warn logs at warn level.
func Warn(msg string, fields ...zap.Field) { current().Warn(msg, fields...) }

// Error logs at error level.
func Error(msg string, fields ...zap.Field) { current().Error(msg, fields...) }

// Fatal logs at fatal level and then calls os.Exit(1) via zap.
func Fatal(msg string, fields ...zap.Field) { current().Fatal(msg, fields...) }

// Sync flushes any buffered log entries. Callers should defer this from
// main(); errors are intentionally ignored, mirroring zap's own examples,
// since stderr/stdout frequently reject Sync on CI runners.
func Sync() {
	_ = current().Sync()
}
