package server

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

func TestDBLogHandlerFollowsNextLevel(t *testing.T) {
	tests := []struct {
		name      string
		next      slog.Handler
		wantLevel []string
	}{
		{
			name:      "info console",
			next:      slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo}),
			wantLevel: []string{"INFO", "WARN"},
		},
		{
			name:      "debug console",
			next:      slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug}),
			wantLevel: []string{"DEBUG", "INFO", "WARN"},
		},
		{
			name:      "no console",
			wantLevel: []string{"INFO", "WARN"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			jobID := uuid.New()
			logger := slog.New(NewDBLogHandler(store, jobID, tt.next))

			logger.Debug("Progress", "completed", 1)
			logger.Info("Running query")
			logger.Warn("Slow search")

			if len(store.logs) != len(tt.wantLevel) {
				t.Fatalf("stored %d records, want %d", len(store.logs), len(tt.wantLevel))
			}
			for i, want := range tt.wantLevel {
				if store.logs[i].Level != want {
					t.Errorf("record %d level = %s, want %s", i, store.logs[i].Level, want)
				}
				if store.logs[i].JobID != jobID {
					t.Errorf("record %d job = %s, want %s", i, store.logs[i].JobID, jobID)
				}
			}
		})
	}
}
