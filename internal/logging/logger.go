// Package logging builds the line-oriented JSON logger used across the
// crawler. Every entry carries a "step" field (the zap message) and any
// credential-looking field is masked before it reaches an encoder.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// StepKey replaces zap's "msg" key so each event reads {"step": "..."}.
const StepKey = "step"

type Config struct {
	Level       string `mapstructure:"level"`
	ServiceName string `mapstructure:"service_name"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

// New returns a logger writing one JSON object per line to out, plus a
// rotating file when cfg.LogFile is set.
func New(cfg Config, out zapcore.WriteSyncer) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	enc := zapcore.NewJSONEncoder(EncoderConfig())
	cores := []zapcore.Core{zapcore.NewCore(enc, out, level)}

	if cfg.LogFile != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(EncoderConfig()), fileWriter, level))
	}

	logger := zap.New(Redact(zapcore.NewTee(cores...)), zap.AddStacktrace(zap.ErrorLevel))
	if cfg.ServiceName != "" {
		logger = logger.Named(cfg.ServiceName)
	}
	return logger
}

// NewStdout is New bound to a locked standard output.
func NewStdout(cfg Config) *zap.Logger {
	return New(cfg, zapcore.Lock(os.Stdout))
}

// EncoderConfig is zap's production JSON layout with the message key renamed
// to StepKey.
func EncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.MessageKey = StepKey
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	ec.EncodeLevel = zapcore.LowercaseLevelEncoder
	return ec
}
