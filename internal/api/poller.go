package api

import (
	"context"
	"log/slog"
	"time"
)

// Poller periodically runs a process pass so time-gated workflows (followback
// checks, audits) advance even when the agent is idle. Workflows paused for
// agent input stay paused; the pending task is simply surfaced again on the
// agent's next process_workflows call.
type Poller struct {
	svc      *Service
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a Poller. If interval is <= 0, it defaults to 15 minutes.
func NewPoller(svc *Service, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Poller{svc: svc, interval: interval, logger: slog.Default()}
}

// Run processes due workflows until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		summaries, task, status, err := p.svc.ProcessDue(ctx)
		if err != nil {
			p.logger.Error("background process pass failed", "error", err)
			continue
		}
		for _, s := range summaries {
			p.logger.Info("workflow step", "summary", s)
		}
		if task != nil {
			p.logger.Info("task pending agent input", "workflow", task.WorkflowID, "kind", task.Kind)
		}
		p.logger.Debug("process pass complete", "status", status)
	}
}
