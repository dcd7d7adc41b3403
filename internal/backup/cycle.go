package backup

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/pvebackup/internal/config"
	"github.com/yourusername/pvebackup/internal/logging"
	"github.com/yourusername/pvebackup/internal/metrics"
	"github.com/yourusername/pvebackup/internal/vzdump"
)

// Invoker runs a backup on a single node.
type Invoker interface {
	Invoke(ctx context.Context, node config.NodeConfig, cfg *config.Config) vzdump.Outcome
}

// CycleReport summarizes one pass over every configured node.
type CycleReport struct {
	ID         string           `json:"id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Outcomes   []vzdump.Outcome `json:"outcomes"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
}

// Duration returns how long the cycle took.
func (r CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// CycleRunner backs up nodes one after another.
type CycleRunner struct {
	invoker Invoker
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
}

// NewCycleRunner creates a cycle runner. collector may be nil.
func NewCycleRunner(invoker Invoker, collector *metrics.Collector) *CycleRunner {
	return &CycleRunner{
		invoker: invoker,
		metrics: collector,
		logger:  logging.L(),
		now:     time.Now,
	}
}

// SetLogger replaces the default logger.
func (r *CycleRunner) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetClock replaces the time source used for cycle timestamps.
func (r *CycleRunner) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// RunCycle invokes a backup on every node in cfg.Nodes, in order. A failing
// node is logged and skipped; the cycle always visits every node.
func (r *CycleRunner) RunCycle(ctx context.Context, cfg *config.Config) CycleReport {
	report := CycleReport{
		ID:        uuid.NewString(),
		StartedAt: r.now(),
		Outcomes:  make([]vzdump.Outcome, 0, len(cfg.Nodes)),
	}

	logger := r.logger.With("cycle_id", report.ID)
	logger.Info("backup cycle started", "nodes", len(cfg.Nodes))

	for _, node := range cfg.Nodes {
		outcome := r.invoker.Invoke(ctx, node, cfg)
		report.Outcomes = append(report.Outcomes, outcome)

		if outcome.Success() {
			report.Succeeded++
			r.metrics.ObserveNode(node.Shortname, "success", outcome.Duration())
			continue
		}

		report.Failed++
		r.metrics.ObserveNode(node.Shortname, outcome.Cause.String(), outcome.Duration())
		logger.Warn("backup failed on node, continuing with next node",
			"node", node.Shortname,
			"cause", outcome.Cause.String(),
			"reason", outcome.Reason(),
		)
	}

	report.FinishedAt = r.now()
	if report.FinishedAt.Before(report.StartedAt) {
		report.FinishedAt = report.StartedAt
	}

	logger.Info("backup cycle completed",
		"duration", report.Duration().String(),
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	)
	r.metrics.ObserveCycle(report.FinishedAt, report.Duration(), report.Failed)

	return report
}
