// Package observe holds Event Feed listeners that export container activity
// to zap, Prometheus and OpenTelemetry. Each is registered like any other
// listener:
//
//	c.Instance(events.ListenerContract, observe.NewLogListener(logger))
package observe

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/km-arc/go-resolve/framework/events"
)

// LogListener writes one entry per post event. Failures are logged at warn
// level, everything else at debug.
type LogListener struct {
	logger *zap.Logger
}

func NewLogListener(logger *zap.Logger) *LogListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogListener{logger: logger.Named("events")}
}

func (l *LogListener) OnEvent(ev events.Event) error {
	if ev.Stage != events.Post {
		return nil
	}
	lvl := zapcore.DebugLevel
	if ev.Err != nil {
		lvl = zapcore.WarnLevel
	}
	ce := l.logger.Check(lvl, string(ev.Kind))
	if ce == nil {
		return nil
	}
	ce.Write(
		zap.Uint64("seq", ev.Seq),
		zap.Stringer("key", ev.Key),
		zap.Uint64("entry", ev.EntryID),
		zap.String("lifetime", ev.Lifetime),
		zap.String("scope", ev.Scope),
		zap.String("container", ev.ContainerID),
		zap.String("tag", ev.ContainerTag),
		zap.Duration("took", ev.Duration),
		zap.Error(ev.Err),
	)
	return nil
}
