/*
scheduler.go - Automated lateness sweep

PURPOSE:
  Periodically re-derives the status of every open contract so lateness
  penalties, defaults and overdue installments are recorded even when no
  one touches the contract.

DESIGN:
  - LatenessSweep visits open savings contracts and open loans in parallel
    with a bounded errgroup. Each contract goes through the normal service
    pipeline (Recompute / Refresh), so locks and versions are honored.
  - A concurrent modification is retried; any other per-contract failure
    is logged and counted, never aborting the sweep.
  - SweepScheduler runs the sweep on a ticker in a background goroutine.

CONFIGURATION:
  - Interval: How often to sweep (default: 1 hour)
  - Parallelism: Contracts processed at once (default: 4)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSweepScheduler(handler.Sweep)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/entraide/caisse-engine/credit"
	"github.com/entraide/caisse-engine/generic"
	"github.com/entraide/caisse-engine/savings"
)

// =============================================================================
// LATENESS SWEEP
// =============================================================================

// SweepResult summarizes one sweep.
type SweepResult struct {
	Savings  int           `json:"savings"`
	Loans    int           `json:"loans"`
	Failed   int           `json:"failed"`
	Retries  int           `json:"retries"`
	Duration time.Duration `json:"duration_ns"`
}

// LatenessSweep recomputes every open contract.
type LatenessSweep struct {
	Savings     *savings.Service
	Credit      *credit.Service
	Parallelism int
	MaxRetries  int
}

func NewLatenessSweep(sav *savings.Service, cr *credit.Service) *LatenessSweep {
	return &LatenessSweep{Savings: sav, Credit: cr, Parallelism: 4, MaxRetries: 3}
}

// Run sweeps all open contracts once. It only fails when the open contract
// lists cannot be read.
func (s *LatenessSweep) Run(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var result SweepResult

	savingsIDs, err := s.Savings.OpenIDs(ctx)
	if err != nil {
		return result, err
	}
	loanIDs, err := s.Credit.OpenIDs(ctx)
	if err != nil {
		return result, err
	}

	var mu sync.Mutex
	record := func(loan bool, retries int, err error) {
		mu.Lock()
		defer mu.Unlock()
		result.Retries += retries
		switch {
		case err != nil:
			result.Failed++
		case loan:
			result.Loans++
		default:
			result.Savings++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Parallelism, 1))

	for _, id := range savingsIDs {
		id := id
		g.Go(func() error {
			retries, err := s.retry(gctx, func() error {
				_, err := s.Savings.Recompute(gctx, id)
				return err
			})
			s.logFailure(generic.ProductSavings, id, err)
			record(false, retries, err)
			return nil
		})
	}
	for _, id := range loanIDs {
		id := id
		g.Go(func() error {
			retries, err := s.retry(gctx, func() error {
				_, err := s.Credit.Refresh(gctx, id)
				return err
			})
			s.logFailure(generic.ProductCredit, id, err)
			record(true, retries, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	log.WithFields(log.Fields{
		"savings":  result.Savings,
		"loans":    result.Loans,
		"failed":   result.Failed,
		"retries":  result.Retries,
		"duration": result.Duration,
	}).Info("Lateness sweep completed")
	return result, nil
}

func (s *LatenessSweep) retry(ctx context.Context, fn func() error) (int, error) {
	retries := 0
	for {
		err := fn()
		if err == nil || !generic.IsRetryable(err) || retries >= s.MaxRetries {
			return retries, err
		}
		if ctx.Err() != nil {
			return retries, ctx.Err()
		}
		retries++
	}
}

func (s *LatenessSweep) logFailure(product generic.ProductKind, id generic.ContractID, err error) {
	if err == nil {
		return
	}
	entry := log.WithFields(log.Fields{
		"product":    product,
		"contractID": id,
		"error":      err,
	})
	// The configuration flag is already stored on the contract.
	if errors.Is(err, generic.ErrConfigurationMissing) {
		entry.Warn("Sweep skipped contract without rate schedule")
		return
	}
	entry.Error("Sweep failed for contract")
}

// =============================================================================
// SCHEDULER
// =============================================================================

// SweepScheduler runs a LatenessSweep periodically.
type SweepScheduler struct {
	Sweep    *LatenessSweep
	Interval time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewSweepScheduler(sweep *LatenessSweep) *SweepScheduler {
	return &SweepScheduler{
		Sweep:    sweep,
		Interval: 1 * time.Hour,
		Enabled:  true,
		stop:     make(chan struct{}),
	}
}

// Start begins the scheduler.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Info("Sweep scheduler disabled, not starting")
		return
	}
	if ss.ticker != nil {
		return
	}

	ss.ticker = time.NewTicker(ss.Interval)
	ss.wg.Add(1)
	go ss.run()

	log.WithField("interval", ss.Interval).Info("Sweep scheduler started")
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		ss.ticker = nil
		log.Info("Sweep scheduler stopped")
	}
}

func (ss *SweepScheduler) run() {
	defer ss.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-ss.stop
		cancel()
	}()

	// Run immediately on start
	ss.sweep(ctx)

	for {
		select {
		case <-ss.ticker.C:
			ss.sweep(ctx)
		case <-ss.stop:
			return
		}
	}
}

func (ss *SweepScheduler) sweep(ctx context.Context) {
	if _, err := ss.Sweep.Run(ctx); err != nil {
		log.WithError(err).Error("Lateness sweep failed")
	}
}
