package core

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// watermillLogger adapts zerolog to watermill.LoggerAdapter. Watermill's info
// messages (router start, subscriber lifecycle) are logged at debug level.
type watermillLogger struct {
	log zerolog.Logger
}

// NewWatermillLogger returns a watermill logger writing to logger.
func NewWatermillLogger(logger *zerolog.Logger) watermill.LoggerAdapter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return watermillLogger{log: *logger}
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{log: l.log.With().Fields(map[string]interface{}(fields)).Logger()}
}
