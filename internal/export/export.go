// Package export pushes aggregate snapshots to an externally configured
// HTTP endpoint. Pushes are fire-and-forget: a failure is logged and
// swallowed, never retried inline, and never affects local counters.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"glimpse/internal/engine"
)

const defaultTimeout = 5 * time.Second

// Exporter posts snapshots to a single endpoint.
type Exporter struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// New creates an exporter for endpoint. client may be nil.
func New(endpoint string, client *http.Client, logger *slog.Logger) *Exporter {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Exporter{endpoint: endpoint, client: client, logger: logger}
}

// Enabled reports whether an endpoint is configured.
func (x *Exporter) Enabled() bool {
	return x.endpoint != ""
}

// Push sends one snapshot. The returned error is for the caller's log line
// only; callers must not propagate it further.
func (x *Exporter) Push(ctx context.Context, snapshot engine.StatsSnapshot) error {
	if !x.Enabled() {
		return nil
	}

	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("export request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("export endpoint returned status %d", resp.StatusCode)
	}

	x.logger.Debug("Exported snapshot", slog.String("endpoint", x.endpoint))
	return nil
}
