package auth

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to Logger.
type ZerologLogger struct {
	log zerolog.Logger
}

var _ Logger = ZerologLogger{}

// NewZerologLogger writes console formatted logs to w. A nil writer uses stderr.
func NewZerologLogger(w io.Writer, level zerolog.Level) ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: w}).
		Level(level).
		With().
		Timestamp().
		Str("component", "auth").
		Logger()
	return ZerologLogger{log: log}
}

// WrapZerolog adapts an existing logger.
func WrapZerolog(log zerolog.Logger) ZerologLogger {
	return ZerologLogger{log: log}
}

func (l ZerologLogger) Debug(msg string, args ...any) { l.emit(l.log.Debug(), msg, args) }
func (l ZerologLogger) Info(msg string, args ...any)  { l.emit(l.log.Info(), msg, args) }
func (l ZerologLogger) Warn(msg string, args ...any)  { l.emit(l.log.Warn(), msg, args) }
func (l ZerologLogger) Error(msg string, args ...any) { l.emit(l.log.Error(), msg, args) }

func (l ZerologLogger) emit(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		if i+1 >= len(args) {
			e = e.Bool(key, true)
			continue
		}
		if err, isErr := args[i+1].(error); isErr {
			e = e.AnErr(key, err)
			continue
		}
		e = e.Interface(key, args[i+1])
	}
	e.Msg(msg)
}
