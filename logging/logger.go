package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger до InitLogger – no-op, чтобы пакеты и тесты могли логировать без инициализации
var Logger = zap.NewNop()

func InitLogger(production bool, level string) error {
	var config zap.Config

	if production {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := config.Build()
	if err != nil {
		return err
	}
	Logger = logger
	return nil
}

// Named возвращает дочерний логгер компонента
func Named(component string) *zap.Logger {
	return Logger.Named(component)
}

func Sync() {
	_ = Logger.Sync()
}
