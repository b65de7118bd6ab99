package wallet

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reconciler periodically checks every cached balance against its ledger
// sum and repairs drift. The cache is a materialized view: in a healthy
// system the worker finds nothing, and any repair it makes is logged as a
// warning worth investigating.
type Reconciler struct {
	svc      *Service
	interval time.Duration
	stopCh   chan struct{}
}

func NewReconciler(svc *Service, interval time.Duration) *Reconciler {
	if interval == 0 {
		interval = 1 * time.Hour
	}
	return &Reconciler{
		svc:      svc,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background worker
func (w *Reconciler) Start() {
	log.Info().Dur("interval", w.interval).Msg("Starting balance reconciler...")
	go w.loop()
}

// Stop gracefully stops the background worker
func (w *Reconciler) Stop() {
	log.Info().Msg("Stopping balance reconciler...")
	close(w.stopCh)
}

func (w *Reconciler) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	w.run()

	for {
		select {
		case <-ticker.C:
			w.run()
		case <-w.stopCh:
			return
		}
	}
}

func (w *Reconciler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repaired, err := w.svc.Reconcile(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Balance reconciliation failed")
		return
	}
	if repaired == 0 {
		log.Debug().Msg("Balance caches consistent with ledger")
	}
}
