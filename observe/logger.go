// Package observe provides pipeline.Observer implementations backed by zap
// and prometheus.
package observe

import (
	"errors"

	"github.com/utkarsh5026/pollpipe/pipeline"
	"go.uber.org/zap"
)

// Logger logs pipeline events with zap. Per-item events are logged at
// debug level; source and processing errors at warn; fatal source errors
// and shutdown timeouts at error.
type Logger struct {
	log *zap.Logger
}

var _ pipeline.Observer = (*Logger)(nil)

// NewLogger returns an Observer writing to log. A nil log discards events.
func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{log: log.Named("pipeline")}
}

func (l *Logger) ItemEnqueued(id string) {
	l.log.Debug("item enqueued", zap.String("item_id", id))
}

func (l *Logger) ItemProcessed(id string, worker int) {
	l.log.Debug("item processed", zap.String("item_id", id), zap.Int("processor", worker))
}

func (l *Logger) ProcessingFailed(id string, worker int, err error) {
	l.log.Warn("processing failed", zap.String("item_id", id), zap.Int("processor", worker), zap.Error(err))
}

func (l *Logger) TransientSourceError(worker int, err error) {
	l.log.Warn("transient source error, retrying", zap.Int("poller", worker), zap.Error(err))
}

func (l *Logger) FatalSourceError(worker int, err error) {
	l.log.Error("fatal source error, stopping pipeline", zap.Int("poller", worker), zap.Error(err))
}

func (l *Logger) PipelineStopping(cause error) {
	if cause == nil {
		l.log.Info("pipeline stopping")
		return
	}
	l.log.Info("pipeline stopping", zap.NamedError("cause", cause))
}

func (l *Logger) PipelineStopped(r pipeline.Report) {
	fields := []zap.Field{
		zap.Stringer("state", r.State),
		zap.Uint64("enqueued", r.Enqueued),
		zap.Uint64("processed", r.Processed),
		zap.Uint64("failed", r.Failed),
		zap.Uint64("unprocessed", r.Unprocessed()),
		zap.Duration("elapsed", r.Elapsed),
	}
	if r.QueueErr != nil && !errors.Is(r.Cause, r.QueueErr) {
		fields = append(fields, zap.NamedError("queue_error", r.QueueErr))
	}

	if r.State == pipeline.StateTimedOut {
		l.log.Error("pipeline timed out before processors drained", fields...)
		return
	}
	l.log.Info("pipeline drained", fields...)
}
