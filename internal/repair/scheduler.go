// Package repair brings the graph cache back in line with the ledger, either
// one pair at a time or by rebuilding it from scratch.
package repair

import (
	"context"
	"errors"
	"fmt"

	"cardlink/backend/internal/graphcache"
	"cardlink/backend/internal/ledger"
	"cardlink/backend/internal/metrics"
	"cardlink/backend/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type pairKey struct {
	low, high string
}

func (k pairKey) String() string {
	return k.low + "|" + k.high
}

// Scheduler queues pairs reported as inconsistent and repairs them in the
// background. Report never blocks.
type Scheduler struct {
	ledger *ledger.Ledger
	cache  graphcache.Cache
	log    *zap.Logger

	queue chan pairKey
	group singleflight.Group
}

// NewScheduler creates a scheduler with room for size pending reports.
func NewScheduler(l *ledger.Ledger, c graphcache.Cache, log *zap.Logger, size int) *Scheduler {
	if size <= 0 {
		size = 256
	}
	return &Scheduler{
		ledger: l,
		cache:  c,
		log:    log,
		queue:  make(chan pairKey, size),
	}
}

// Report queues a pair for repair. When the queue is full the report is
// dropped; the offline rebuild picks up whatever is left behind.
func (s *Scheduler) Report(a, b string) {
	low, high := ledger.Pair(a, b)
	select {
	case s.queue <- pairKey{low: low, high: high}:
	default:
		metrics.RepairQueueDropped.Inc()
		s.log.Warn("repair queue full, dropping report", zap.String("user_a", low), zap.String("user_b", high))
	}
}

// Run drains the queue until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("repair worker started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("repair worker stopped")
			return
		case k := <-s.queue:
			if err := s.RepairPair(ctx, k.low, k.high); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("pair repair failed", zap.String("pair", k.String()), zap.Error(err))
			}
		}
	}
}

// RepairPair re-applies the ledger state of {a, b} to the cache. Concurrent
// repairs of the same pair share one execution.
func (s *Scheduler) RepairPair(ctx context.Context, a, b string) error {
	low, high := ledger.Pair(a, b)
	key := pairKey{low: low, high: high}

	_, err, _ := s.group.Do(key.String(), func() (any, error) {
		return nil, s.repair(ctx, low, high)
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RepairsTotal.WithLabelValues(outcome).Inc()
	return err
}

// repairRounds bounds how often one repair re-reads the ledger when the pair
// changes while the cache is written.
const repairRounds = 3

func (s *Scheduler) repair(ctx context.Context, a, b string) error {
	accepted, err := s.connected(ctx, a, b)
	if err != nil {
		return err
	}

	for round := 0; round < repairRounds; round++ {
		if accepted {
			err = s.cache.AddPeer(ctx, a, b)
		} else {
			err = s.cache.RemovePeer(ctx, a, b)
		}
		if err != nil {
			return fmt.Errorf("repair cache for %s/%s: %w", a, b, err)
		}

		now, err := s.connected(ctx, a, b)
		if err != nil {
			return err
		}
		if now == accepted {
			s.log.Info("pair repaired", zap.String("user_a", a), zap.String("user_b", b), zap.Bool("connected", accepted))
			return nil
		}
		accepted = now
	}
	return fmt.Errorf("repair %s/%s: ledger kept changing over %d cache writes", a, b, repairRounds)
}

func (s *Scheduler) connected(ctx context.Context, a, b string) (bool, error) {
	req, err := s.ledger.FindByPair(ctx, a, b)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("read ledger for %s/%s: %w", a, b, err)
	}
	return req.State == models.StateAccepted, nil
}
