package logger

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON production logger for env "production" and a console logger otherwise.
func New(env string) (*zap.Logger, error) {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return config.Build()
}

// Writer adapts l for libraries that log to an io.Writer, such as access loggers.
func Writer(l *zap.Logger) io.Writer {
	return zap.NewStdLog(l.WithOptions(zap.AddCallerSkip(1))).Writer()
}
