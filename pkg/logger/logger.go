package logger

import (
	"go.uber.org/zap"
)

var logger *zap.Logger

func NewLogger(environment string) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if environment == "prod" {
		l, err = zap.NewProduction()
	} else if environment == "test" {
		l = zap.NewExample()
	} else {
		l, err = zap.NewDevelopment()
	}

	return l, err
}

func MustNewLogger(environment string) *zap.Logger {
	return zap.Must(NewLogger(environment))
}

func InitLogger(environment string) (*zap.Logger, error) {
	var err error
	logger, err = NewLogger(environment)
	if err != nil {
		return nil, err
	}

	return logger, nil
}

func GetLogger() *zap.Logger {
	if logger == nil {
		panic("logger not initialized")
	}

	return logger
}
