package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/database"
)

// LogSink persists job log records.
type LogSink interface {
	InsertLog(ctx context.Context, entry database.LogEntry) error
}

// DBLogHandler is a slog.Handler that writes records to the research_logs
// table of one job and forwards them to Next.
type DBLogHandler struct {
	Sink  LogSink
	JobID uuid.UUID
	Next  slog.Handler

	attrs []slog.Attr
}

func NewDBLogHandler(sink LogSink, jobID uuid.UUID, next slog.Handler) *DBLogHandler {
	return &DBLogHandler{
		Sink:  sink,
		JobID: jobID,
		Next:  next,
	}
}

// Enabled follows Next, so the job log holds what the console shows. Without
// Next, records below Info are dropped.
func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.Next != nil {
		return h.Next.Enabled(ctx, level)
	}
	return level >= slog.LevelInfo
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.Next != nil && h.Next.Enabled(ctx, r.Level) {
		_ = h.Next.Handle(ctx, r.Clone())
	}

	attrs := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[a.Key] = attrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = attrValue(a.Value)
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}

	// Logs must land even when the job's context is already cancelled.
	insertCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.Sink.InsertLog(insertCtx, database.LogEntry{
		JobID:     h.JobID,
		Timestamp: r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
		Metadata:  metaJSON,
	})
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	if h.Next != nil {
		clone.Next = h.Next.WithAttrs(attrs)
	}
	return &clone
}

// WithGroup is not supported for the database copy; grouped attributes are
// stored flat.
func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if h.Next != nil {
		clone.Next = h.Next.WithGroup(name)
	}
	return &clone
}

func attrValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}
