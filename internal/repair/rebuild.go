package repair

import (
	"context"
	"fmt"
	"time"

	"cardlink/backend/internal/graphcache"
	"cardlink/backend/internal/ledger"
	"cardlink/backend/internal/metrics"
	"cardlink/backend/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Edge is one directed cache entry.
type Edge struct {
	UserID string `json:"user_id"`
	PeerID string `json:"peer_id"`
}

// RebuildOptions tunes Rebuild.
type RebuildOptions struct {
	BatchSize   int
	Concurrency int
}

// RebuildReport summarizes a rebuild run.
type RebuildReport struct {
	Pairs    int           `json:"pairs"`
	Duration time.Duration `json:"duration"`
}

// Rebuild clears the cache and replays AddPeer for every ACCEPTED row of the
// ledger. It is safe to run again after a partial failure. A cache stored in
// the ledger database is rebuilt inside one transaction.
func Rebuild(ctx context.Context, l *ledger.Ledger, c graphcache.Cache, log *zap.Logger, opts RebuildOptions) (*RebuildReport, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}

	start := time.Now()
	report := &RebuildReport{}

	var err error
	if txc, ok := c.(graphcache.Transactional); ok {
		err = l.Transaction(ctx, func(tx *ledger.Ledger) error {
			report.Pairs, err = replay(ctx, tx, txc.WithTx(tx.DB()), opts.BatchSize, 1)
			return err
		})
	} else {
		report.Pairs, err = replay(ctx, l, c, opts.BatchSize, opts.Concurrency)
	}
	if err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	metrics.RebuildDuration.Observe(report.Duration.Seconds())
	log.Info("graph cache rebuilt", zap.Int("pairs", report.Pairs), zap.Duration("duration", report.Duration))
	return report, nil
}

func replay(ctx context.Context, l *ledger.Ledger, c graphcache.Cache, batchSize, concurrency int) (int, error) {
	if err := c.Reset(ctx); err != nil {
		return 0, err
	}

	pairs := 0
	err := l.ScanAccepted(ctx, batchSize, func(rows []models.ConnectionRequest) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for _, r := range rows {
			a, b := r.SenderID, r.ReceiverID
			g.Go(func() error {
				return c.AddPeer(gctx, a, b)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		pairs += len(rows)
		return nil
	})
	if err != nil {
		return pairs, fmt.Errorf("replay accepted rows: %w", err)
	}
	return pairs, nil
}

// VerifyReport lists every disagreement between ledger and cache.
type VerifyReport struct {
	Accepted int    `json:"accepted"`
	Missing  []Edge `json:"missing"`
	Stale    []Edge `json:"stale"`
}

// Clean reports whether the cache matched the ledger exactly.
func (r *VerifyReport) Clean() bool {
	return len(r.Missing) == 0 && len(r.Stale) == 0
}

// Verify scans the ledger and the cache. Missing edges are accepted pairs the
// cache lacks in either direction; stale edges are cache entries without an
// accepted row.
func Verify(ctx context.Context, l *ledger.Ledger, c graphcache.Cache, batchSize int) (*VerifyReport, error) {
	report := &VerifyReport{Missing: []Edge{}, Stale: []Edge{}}
	expected := map[string]map[string]bool{}
	add := func(u, p string) {
		if expected[u] == nil {
			expected[u] = map[string]bool{}
		}
		expected[u][p] = true
	}

	err := l.ScanAccepted(ctx, batchSize, func(rows []models.ConnectionRequest) error {
		for _, r := range rows {
			report.Accepted++
			add(r.SenderID, r.ReceiverID)
			add(r.ReceiverID, r.SenderID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for u, peers := range expected {
		for p := range peers {
			ok, err := c.Contains(ctx, u, p)
			if err != nil {
				return nil, err
			}
			if !ok {
				report.Missing = append(report.Missing, Edge{UserID: u, PeerID: p})
			}
		}
	}

	users, err := c.Users(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		peers, err := c.ListPeers(ctx, u)
		if err != nil {
			return nil, err
		}
		for _, p := range peers {
			if !expected[u][p] {
				report.Stale = append(report.Stale, Edge{UserID: u, PeerID: p})
			}
		}
	}
	return report, nil
}
