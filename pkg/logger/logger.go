// Package logger 提供基于 zap 的全局结构化日志
package logger

import (
	"context"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

var (
	mu          sync.RWMutex
	globalLog   *zap.Logger
	atomicLevel = zap.NewAtomicLevel()
)

// Config 日志配置
type Config struct {
	Level       string    `yaml:"level" json:"level"`   // debug, info, warn, error
	Format      string    `yaml:"format" json:"format"` // json, console
	ServiceName string    `yaml:"service_name" json:"service_name"`
	Output      io.Writer `yaml:"-" json:"-"`
}

// New 按配置创建 logger，不修改全局状态
func New(cfg *Config) *zap.Logger {
	return build(cfg, zap.NewAtomicLevelAt(parseLevel(cfg.Level)))
}

// Init 初始化全局日志
func Init(cfg *Config) error {
	atomicLevel.SetLevel(parseLevel(cfg.Level))
	l := build(cfg, atomicLevel)

	mu.Lock()
	globalLog = l
	mu.Unlock()
	return nil
}

func build(cfg *Config, level zap.AtomicLevel) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.ServiceName != "" {
		opts = append(opts, zap.Fields(zap.String("service", cfg.ServiceName)))
	}
	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(out), level), opts...)
}

func parseLevel(s string) zapcore.Level {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// SetLevel 动态设置日志级别
func SetLevel(levelStr string) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		return
	}
	atomicLevel.SetLevel(level)
}

// L 获取全局 logger，未初始化时返回 Nop
func L() *zap.Logger {
	mu.RLock()
	l := globalLog
	mu.RUnlock()
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// S 获取全局 sugar logger
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// WithContext 从 context 获取请求级 logger
func WithContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return L()
	}
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return L()
}

// NewContext 将带字段的 logger 放入 context
func NewContext(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, ctxKey{}, WithContext(ctx).With(fields...))
}

// Debug 调试日志
func Debug(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

// Info 信息日志
func Info(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

// Warn 警告日志
func Warn(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

// Error 错误日志
func Error(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

// Fatal 致命错误日志
func Fatal(msg string, fields ...zap.Field) {
	L().WithOptions(zap.AddCallerSkip(1)).Fatal(msg, fields...)
}

// Sync 同步日志
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if globalLog != nil {
		return globalLog.Sync()
	}
	return nil
}
