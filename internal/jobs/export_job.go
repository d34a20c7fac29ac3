package jobs

import (
	"context"
	"log/slog"
	"time"

	"glimpse/internal/engine"
	"glimpse/internal/export"
)

// ExportJob pushes the current aggregate snapshot to the configured
// endpoint. A failed push is logged and dropped; the next tick sends a
// fresh snapshot anyway.
type ExportJob struct {
	engine   *engine.Engine
	exporter *export.Exporter
	logger   *slog.Logger
}

func NewExportJob(eng *engine.Engine, exporter *export.Exporter, logger *slog.Logger) *ExportJob {
	return &ExportJob{
		engine:   eng,
		exporter: exporter,
		logger:   logger,
	}
}

// Run sends one snapshot.
func (j *ExportJob) Run() error {
	if !j.exporter.Enabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := j.exporter.Push(ctx, j.engine.GetStats()); err != nil {
		// Export failures never propagate; local counters are unaffected.
		j.logger.Warn("Snapshot export failed", slog.Any("error", err))
	}
	return nil
}
