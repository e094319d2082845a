package relationship

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cardlink/backend/internal/graphcache"
	"cardlink/backend/internal/ledger"
	"cardlink/backend/internal/metrics"
	"cardlink/backend/internal/models"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// effect is the cache mutation that follows a ledger write.
type effect struct {
	remove bool
	a, b   string
}

func (e effect) name() string {
	if e.remove {
		return "remove_peer"
	}
	return "add_peer"
}

func (e effect) apply(ctx context.Context, c graphcache.Cache) error {
	if e.remove {
		return c.RemovePeer(ctx, e.a, e.b)
	}
	return c.AddPeer(ctx, e.a, e.b)
}

// mutate runs fn in a ledger transaction. When the cache lives in the ledger
// database the effect is written in the same transaction, so either both
// commit or neither does. Otherwise the effect is applied after commit and
// settled against the ledger.
func (s *Service) mutate(ctx context.Context, fn func(tx *ledger.Ledger) (*effect, error)) error {
	txCache, transactional := s.cache.(graphcache.Transactional)

	var deferred *effect
	err := s.ledger.Transaction(ctx, func(tx *ledger.Ledger) error {
		eff, err := fn(tx)
		if err != nil || eff == nil {
			return err
		}
		if transactional {
			return eff.apply(ctx, txCache.WithTx(tx.DB()))
		}
		deferred = eff
		return nil
	})
	if err != nil {
		return err
	}

	if deferred != nil {
		// The ledger has committed; the cache write must not be lost because
		// the caller went away.
		s.settle(context.WithoutCancel(ctx), *deferred)
	}
	return nil
}

// settleRounds bounds how often settle re-applies the ledger state when the
// pair keeps changing underneath it.
const settleRounds = 3

// settle writes eff to a cache outside the ledger transaction, then re-reads
// the pair from the ledger. Writes to the pair from concurrent operations can
// land in any order, so the ledger state is re-applied until a read taken
// after the write agrees with what was written. It never fails the caller;
// a pair that cannot be settled is handed to the repair path.
func (s *Service) settle(ctx context.Context, eff effect) {
	for round := 0; round < settleRounds; round++ {
		if err := s.applyWithRetry(ctx, eff); err != nil {
			s.fault(eff.name(), eff.a, eff.b, fmt.Sprintf("cache write failed after %d attempts: %v", s.retryAttempts, err))
			return
		}

		truth, err := s.ledgerConnected(ctx, eff.a, eff.b)
		if err != nil {
			s.fault(eff.name(), eff.a, eff.b, fmt.Sprintf("ledger re-read after cache write failed: %v", err))
			return
		}
		if truth != eff.remove {
			return
		}

		s.log.Warn("pair changed while the cache was written, applying ledger state",
			zap.String("operation", eff.name()),
			zap.String("user_a", eff.a),
			zap.String("user_b", eff.b),
			zap.Bool("connected", truth))
		metrics.CacheWriteRetries.WithLabelValues("settle").Inc()
		eff = effect{remove: !truth, a: eff.a, b: eff.b}
	}
	s.fault("settle", eff.a, eff.b, fmt.Sprintf("ledger kept changing over %d cache writes", settleRounds))
}

// applyWithRetry applies eff with exponential backoff.
func (s *Service) applyWithRetry(ctx context.Context, eff effect) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInitial

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, eff.apply(ctx, s.cache)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.retryAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.CacheWriteRetries.WithLabelValues(eff.name()).Inc()
			s.log.Warn("graph cache write failed, retrying",
				zap.String("operation", eff.name()),
				zap.String("user_a", eff.a),
				zap.String("user_b", eff.b),
				zap.Duration("next", next),
				zap.Error(err))
		}),
	)
	return err
}

// Connected answers from the graph cache. The cache is trusted while both
// directions agree; an asymmetric or unreadable entry is settled by the ledger.
func (s *Service) Connected(ctx context.Context, a, b string) (bool, error) {
	const op = "connected"
	if a == "" || b == "" {
		return false, newError(KindInvalidArgument, op, "both user ids are required")
	}
	if a == b {
		return false, nil
	}

	ab, errAB := s.cache.Contains(ctx, a, b)
	ba, errBA := s.cache.Contains(ctx, b, a)
	if errAB == nil && errBA == nil && ab == ba {
		return ab, nil
	}

	truth, err := s.ledgerConnected(ctx, a, b)
	if err != nil {
		return false, s.fail(op, err)
	}
	if cacheErr := errors.Join(errAB, errBA); cacheErr != nil {
		s.log.Warn("graph cache unavailable, reading ledger",
			zap.String("user_a", a), zap.String("user_b", b), zap.Error(cacheErr))
		return truth, nil
	}

	s.fault(op, a, b, fmt.Sprintf("asymmetric entry %s->%s=%t %s->%s=%t, ledger accepted=%t", a, b, ab, b, a, ba, truth))
	return truth, nil
}

// VerifyPair compares the ledger with both cache directions for one pair.
// It returns the ledger answer and whether the cache agreed.
func (s *Service) VerifyPair(ctx context.Context, a, b string) (connected bool, consistent bool, err error) {
	const op = "verify_pair"
	if a == "" || b == "" || a == b {
		return false, false, newError(KindInvalidArgument, op, "two distinct user ids are required")
	}

	truth, err := s.ledgerConnected(ctx, a, b)
	if err != nil {
		return false, false, s.fail(op, err)
	}
	ab, err := s.cache.Contains(ctx, a, b)
	if err != nil {
		return truth, false, s.fail(op, err)
	}
	ba, err := s.cache.Contains(ctx, b, a)
	if err != nil {
		return truth, false, s.fail(op, err)
	}

	if ab == truth && ba == truth {
		return truth, true, nil
	}
	s.fault(op, a, b, fmt.Sprintf("ledger accepted=%t, cache %s->%s=%t %s->%s=%t", truth, a, b, ab, b, a, ba))
	return truth, false, nil
}

func (s *Service) ledgerConnected(ctx context.Context, a, b string) (bool, error) {
	req, err := s.ledger.FindByPair(ctx, a, b)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return req.State == models.StateAccepted, nil
}

// crossCheck compares a ledger listing with the cache entry of userID.
func (s *Service) crossCheck(ctx context.Context, userID string, peers []ledger.Peer) {
	cached, err := s.cache.ListPeers(ctx, userID)
	if err != nil {
		s.log.Warn("graph cache unavailable for cross-check", zap.String("user_id", userID), zap.Error(err))
		return
	}

	want := make(map[string]bool, len(peers))
	for _, p := range peers {
		want[p.PeerID] = true
	}
	have := make(map[string]bool, len(cached))
	for _, p := range cached {
		have[p] = true
		if !want[p] {
			s.fault("list_accepted", userID, p, "cache lists a peer the ledger does not")
		}
	}
	for p := range want {
		if !have[p] {
			s.fault("list_accepted", userID, p, "cache is missing an accepted peer")
		}
	}
}

// fault logs a ConsistencyFault and schedules a repair. It is never returned
// to callers.
func (s *Service) fault(source, a, b, detail string) {
	err := &Error{Kind: KindConsistencyFault, Op: source, Message: detail}
	metrics.ConsistencyFaults.WithLabelValues(source).Inc()
	s.log.Error("graph cache disagrees with ledger",
		zap.String("user_a", a),
		zap.String("user_b", b),
		zap.Error(err))
	if s.faults != nil {
		s.faults.Report(a, b)
	}
}
