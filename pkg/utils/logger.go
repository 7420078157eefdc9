package utils

import (
	"math"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig configures the structured logger.
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text
	Output      string // path, or empty for stderr
	Development bool
}

// Logger wraps zap.Logger with a sugared logger and domain field helpers.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// InitLogger builds a Logger from config, never returning nil or panicking:
// an unwritable Output falls back to stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Development {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	}

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "text") {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	sink := zapcore.AddSync(os.Stderr)
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			sink = zapcore.AddSync(f)
		}
	}

	core := zapcore.NewCore(encoder, sink, level)
	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	zl := zap.New(core, opts...)

	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// With returns a child Logger carrying the given fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// Sugar exposes the underlying sugared logger for printf-style calls.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// Domain-specific child-logger helpers, mirroring the field constructors in fields.go.
func (l *Logger) WithComponent(name string) *Logger { return l.With(Component(name)) }
func (l *Logger) WithExchange(name string) *Logger  { return l.With(Exchange(name)) }
func (l *Logger) WithSymbol(symbol string) *Logger  { return l.With(Symbol(symbol)) }
func (l *Logger) WithPairID(id int) *Logger         { return l.With(PairID(id)) }

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// GetGlobalLogger returns the process-wide logger, lazily creating a default
// one (info level, JSON, stderr) on first use.
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// InitGlobalLogger builds a Logger from cfg and installs it globally.
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger installs l as the process-wide logger.
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// L is shorthand for GetGlobalLogger.
func L() *Logger { return GetGlobalLogger() }

func Debug(msg string, fields ...zap.Field) { GetGlobalLogger().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { GetGlobalLogger().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetGlobalLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetGlobalLogger().Error(msg, fields...) }

func Debugf(format string, args ...interface{}) { GetGlobalLogger().sugar.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { GetGlobalLogger().sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { GetGlobalLogger().sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { GetGlobalLogger().sugar.Errorf(format, args...) }

// fieldsToInterface flattens zap fields into alternating key/value pairs, in
// input order, for callers that need to bridge into a non-zap sink.
func fieldsToInterface(fields []zap.Field) []interface{} {
	out := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, fieldValue(f))
	}
	return out
}

func fieldValue(f zap.Field) interface{} {
	switch f.Type {
	case zapcore.StringType:
		return f.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return f.Integer
	case zapcore.Float64Type:
		return math.Float64frombits(uint64(f.Integer))
	case zapcore.BoolType:
		return f.Integer == 1
	default:
		return f.Interface
	}
}
