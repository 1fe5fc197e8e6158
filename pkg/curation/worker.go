// Package curation provides the periodic memory-promotion worker.
package curation

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentfleet/substrate/pkg/services"
)

// Worker periodically runs the curation pass:
//   - Evicts expired working-memory items
//   - Promotes hot working items to episodic memory
//   - Promotes significant episodes to semantic concepts
//
// Each pass is a single transaction and safe to re-run.
type Worker struct {
	interval time.Duration
	curation *services.CurationService

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a new curation worker.
func NewWorker(interval time.Duration, curation *services.CurationService) *Worker {
	return &Worker{
		interval: interval,
		curation: curation,
	}
}

// Start launches the background curation loop.
func (w *Worker) Start(ctx context.Context) {
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go w.run(ctx)

	slog.Info("Curation worker started", "interval", w.interval)
}

// Stop signals the curation loop to exit and waits for it to finish.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	slog.Info("Curation worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	report, err := w.curation.Run(ctx)
	if err != nil {
		slog.Error("Curation pass failed", "error", err)
		return
	}
	if report.ExpiredCleaned > 0 || report.WorkingToEpisodic > 0 || report.EpisodicToSemantic > 0 {
		slog.Info("Curation pass completed",
			"expired_cleaned", report.ExpiredCleaned,
			"working_to_episodic", report.WorkingToEpisodic,
			"episodic_to_semantic", report.EpisodicToSemantic)
	}
}
