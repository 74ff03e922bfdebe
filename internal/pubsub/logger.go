package pubsub

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/gepvi/gepvi-users/internal/logger"
)

// LoggerAdapter sends watermill's logs to the application logger
type LoggerAdapter struct {
	logger *logger.Logger
	fields watermill.LogFields
}

func NewLoggerAdapter(logger *logger.Logger) watermill.LoggerAdapter {
	return &LoggerAdapter{logger: logger}
}

func (l *LoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.logger.Errorw(msg, append(l.args(fields), "error", err)...)
}

func (l *LoggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.logger.Infow(msg, l.args(fields)...)
}

func (l *LoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.logger.Debugw(msg, l.args(fields)...)
}

// Trace is too chatty for anything but debugging watermill itself
func (l *LoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.logger.Debugw(msg, l.args(fields)...)
}

func (l *LoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &LoggerAdapter{logger: l.logger, fields: l.fields.Add(fields)}
}

func (l *LoggerAdapter) args(fields watermill.LogFields) []interface{} {
	all := l.fields.Add(fields)
	args := make([]interface{}, 0, len(all)*2)
	for k, v := range all {
		args = append(args, k, v)
	}
	return args
}
