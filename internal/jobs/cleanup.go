package jobs

import (
	"log/slog"
	"time"

	"glimpse/internal/config"
	"glimpse/internal/engine"
)

// CleanupJob drops session records whose sessions have ended. A browser
// tab closing leaves no signal, so sessions end by exceeding the
// configured TTL.
type CleanupJob struct {
	engine *engine.Engine
	logger *slog.Logger
	cfg    *config.Config
}

func NewCleanupJob(eng *engine.Engine, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		engine: eng,
		logger: logger,
		cfg:    cfg,
	}
}

// Run removes expired session records.
func (j *CleanupJob) Run() error {
	ttl := time.Duration(j.cfg.SessionTTLSeconds) * time.Second

	expired := j.engine.ExpireSessions(ttl)
	if expired > 0 {
		j.logger.Info("Cleaned up expired sessions",
			slog.Int("expired_count", expired),
			slog.Duration("ttl", ttl))
	} else {
		j.logger.Debug("No expired sessions to clean up")
	}
	return nil
}
