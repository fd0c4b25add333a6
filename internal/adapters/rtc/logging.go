package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loggerFactory routes pion's internal logs into zerolog, tagged with the
// pion scope (ice, dtls, pc, ...).
type loggerFactory struct{}

func NewLoggerFactory() logging.LoggerFactory { return loggerFactory{} }

func (loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{logger: log.With().Str("module", "pion").Str("scope", scope).Logger()}
}

type pionLogger struct {
	logger zerolog.Logger
}

// pion is chatty at info; everything below warn is demoted one level.
func (l *pionLogger) Trace(msg string) { l.logger.Trace().Msg(msg) }
func (l *pionLogger) Tracef(format string, args ...interface{}) {
	l.logger.Trace().Msg(fmt.Sprintf(format, args...))
}
func (l *pionLogger) Debug(msg string) { l.logger.Trace().Msg(msg) }
func (l *pionLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msg(fmt.Sprintf(format, args...))
}
func (l *pionLogger) Info(msg string) { l.logger.Debug().Msg(msg) }
func (l *pionLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msg(fmt.Sprintf(format, args...))
}
func (l *pionLogger) Warn(msg string) { l.logger.Warn().Msg(msg) }
func (l *pionLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msg(fmt.Sprintf(format, args...))
}
func (l *pionLogger) Error(msg string) { l.logger.Error().Msg(msg) }
func (l *pionLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msg(fmt.Sprintf(format, args...))
}
