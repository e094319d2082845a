package relationship_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cardlink/backend/internal/database/dbtest"
	"cardlink/backend/internal/graphcache"
	"cardlink/backend/internal/ledger"
	"cardlink/backend/internal/models"
	"cardlink/backend/internal/relationship"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type recorder struct {
	mu    sync.Mutex
	pairs [][2]string
}

func (r *recorder) Report(a, b string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs = append(r.pairs, [2]string{a, b})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pairs)
}

// flakyCache hides the Transactional side of the wrapped cache so the
// service treats it as a separate store, and fails the first AddPeer calls.
type flakyCache struct {
	graphcache.Cache
	failures atomic.Int32
}

func (f *flakyCache) AddPeer(ctx context.Context, a, b string) error {
	if f.failures.Add(-1) >= 0 {
		return errors.New("cache unavailable")
	}
	return f.Cache.AddPeer(ctx, a, b)
}

// gatedCache is a separate-store cache whose AddPeer parks until gate is
// closed, so other operations can commit while the write is in flight.
type gatedCache struct {
	graphcache.Cache
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedCache(inner graphcache.Cache) *gatedCache {
	return &gatedCache{Cache: inner, entered: make(chan struct{}), gate: make(chan struct{})}
}

func (g *gatedCache) AddPeer(ctx context.Context, a, b string) error {
	g.once.Do(func() { close(g.entered) })
	<-g.gate
	return g.Cache.AddPeer(ctx, a, b)
}

func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	cache    graphcache.Cache
	svc      *relationship.Service
	recorder *recorder
}

func newFixture(t *testing.T) *fixture {
	db := dbtest.New(t)
	return newFixtureWithCache(t, db, graphcache.NewSQLCache(db))
}

func newFixtureWithCache(t *testing.T, db *gorm.DB, c graphcache.Cache) *fixture {
	l := ledger.New(db)
	rec := &recorder{}
	svc := relationship.NewService(l, c, zaptest.NewLogger(t),
		relationship.WithClock(stepClock()),
		relationship.WithFaultReporter(rec),
		relationship.WithCacheRetry(3, time.Millisecond),
	)
	return &fixture{db: db, ledger: l, cache: c, svc: svc, recorder: rec}
}

func (f *fixture) rows(t *testing.T) []models.ConnectionRequest {
	t.Helper()
	var rows []models.ConnectionRequest
	require.NoError(t, f.db.Order("id").Find(&rows).Error)
	return rows
}

func (f *fixture) contains(t *testing.T, a, b string) bool {
	t.Helper()
	ok, err := f.cache.Contains(context.Background(), a, b)
	require.NoError(t, err)
	return ok
}

func TestScenario_CreatePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, req.State)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].SenderID)
	assert.Equal(t, "bob", rows[0].ReceiverID)
	assert.Equal(t, models.StatePending, rows[0].State)
}

func TestScenario_AcceptSyncsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	accepted, err := f.svc.Transition(ctx, req.ID, "bob", relationship.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, models.StateAccepted, accepted.State)
	require.NotNil(t, accepted.AcceptedAt)

	peers, err := f.svc.ListPeers(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, peers)

	peers, err = f.svc.ListPeers(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, peers)

	list, err := f.svc.ListAccepted(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bob", list[0].PeerID)
	assert.True(t, accepted.AcceptedAt.Equal(list[0].AcceptedAt))
	assert.Zero(t, f.recorder.count())
}

func TestScenario_ReverseRequestCollides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	original, err := f.svc.Create(ctx, "bob", "alice")
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "alice", "bob")
	require.ErrorIs(t, err, relationship.ErrAlreadyExists)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, original.ID, rows[0].ID)
	assert.Equal(t, "bob", rows[0].SenderID)
}

func TestScenario_ResendAfterReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	rejected, err := f.svc.Transition(ctx, req.ID, "bob", relationship.ActionReject)
	require.NoError(t, err)
	assert.Equal(t, models.StateRejected, rejected.State)

	resent, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, req.ID, resent.ID)
	assert.Equal(t, models.StatePending, resent.State)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatePending, rows[0].State)
	assert.Equal(t, "alice", rows[0].SenderID)
	assert.Equal(t, "bob", rows[0].ReceiverID)
}

func TestResendFlipsDirection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, req.ID, "bob", relationship.ActionReject)
	require.NoError(t, err)

	resent, err := f.svc.Create(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, req.ID, resent.ID)
	assert.Equal(t, "bob", resent.SenderID)
	assert.Equal(t, "alice", resent.ReceiverID)

	// The old sender is now the receiver and may accept.
	_, err = f.svc.Transition(ctx, req.ID, "alice", relationship.ActionAccept)
	require.NoError(t, err)
	assert.True(t, f.contains(t, "alice", "bob"))
}

func TestScenario_Dissolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, req.ID, "bob", relationship.ActionAccept)
	require.NoError(t, err)

	require.NoError(t, f.svc.Dissolve(ctx, req.ID, "alice"))

	assert.Empty(t, f.rows(t))
	assert.False(t, f.contains(t, "alice", "bob"))
	assert.False(t, f.contains(t, "bob", "alice"))

	// The pair is back to no relationship; a fresh request is allowed.
	again, err := f.svc.Create(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, again.ID)
}

func TestScenario_ThirdPartyCannotAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, req.ID, "carol", relationship.ActionAccept)
	require.ErrorIs(t, err, relationship.ErrForbidden)

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatePending, rows[0].State)
	assert.False(t, f.contains(t, "alice", "bob"))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "alice", "alice")
	assert.ErrorIs(t, err, relationship.ErrInvalidArgument)

	_, err = f.svc.Create(ctx, "", "bob")
	assert.ErrorIs(t, err, relationship.ErrInvalidArgument)

	_, err = f.svc.Create(ctx, "alice", "")
	assert.ErrorIs(t, err, relationship.ErrInvalidArgument)

	assert.Empty(t, f.rows(t))
}

func TestCreateWhileAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, req.ID, "bob", relationship.ActionAccept)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "bob", "alice")
	assert.ErrorIs(t, err, relationship.ErrAlreadyExists)
	_, err = f.svc.Create(ctx, "alice", "bob")
	assert.ErrorIs(t, err, relationship.ErrAlreadyExists)
}

func TestTransitionRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, req.ID, "alice", relationship.ActionAccept)
	assert.ErrorIs(t, err, relationship.ErrForbidden, "sender cannot accept own request")

	_, err = f.svc.Transition(ctx, req.ID, "alice", relationship.ActionReject)
	assert.ErrorIs(t, err, relationship.ErrForbidden, "sender cannot reject own request")

	_, err = f.svc.Transition(ctx, "missing", "bob", relationship.ActionAccept)
	assert.ErrorIs(t, err, relationship.ErrNotFound)

	_, err = f.svc.Transition(ctx, req.ID, "bob", relationship.Action(0))
	assert.ErrorIs(t, err, relationship.ErrInvalidArgument)

	_, err = f.svc.Transition(ctx, req.ID, "bob", relationship.ActionAccept)
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, req.ID, "bob", relationship.ActionAccept)
	assert.ErrorIs(t, err, relationship.ErrInvalidState)

	_, err = f.svc.Transition(ctx, req.ID, "bob", relationship.ActionReject)
	assert.ErrorIs(t, err, relationship.ErrInvalidState, "accepted requests cannot be rejected")
}

func TestDissolveRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Dissolve(ctx, req.ID, "bob"), relationship.ErrInvalidState)
	assert.ErrorIs(t, f.svc.Dissolve(ctx, "missing", "bob"), relationship.ErrNotFound)

	_, err = f.svc.Transition(ctx, req.ID, "bob", relationship.ActionAccept)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Dissolve(ctx, req.ID, "carol"), relationship.ErrForbidden)
	assert.True(t, f.contains(t, "alice", "bob"))

	require.NoError(t, f.svc.Dissolve(ctx, req.ID, "bob"))
	assert.ErrorIs(t, f.svc.Dissolve(ctx, req.ID, "bob"), relationship.ErrNotFound)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Cancel(ctx, req.ID, "bob"), relationship.ErrForbidden)
	require.NoError(t, f.svc.Cancel(ctx, req.ID, "alice"))
	assert.Empty(t, f.rows(t))

	req, err = f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, req.ID, "bob", relationship.ActionAccept)
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.Cancel(ctx, req.ID, "alice"), relationship.ErrInvalidState)
}

func TestListPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fromBob, err := f.svc.Create(ctx, "bob", "alice")
	require.NoError(t, err)
	fromCarol, err := f.svc.Create(ctx, "carol", "alice")
	require.NoError(t, err)
	toDave, err := f.svc.Create(ctx, "alice", "dave")
	require.NoError(t, err)

	received, err := f.svc.ListPending(ctx, "alice", ledger.DirectionReceived)
	require.NoError(t, err)
	require.Len(t, received, 2)
	assert.Equal(t, fromCarol.ID, received[0].ID, "newest first")
	assert.Equal(t, fromBob.ID, received[1].ID)

	sent, err := f.svc.ListPending(ctx, "alice", ledger.DirectionSent)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, toDave.ID, sent[0].ID)

	_, err = f.svc.Transition(ctx, fromBob.ID, "alice", relationship.ActionAccept)
	require.NoError(t, err)
	received, err = f.svc.ListPending(ctx, "alice", ledger.DirectionReceived)
	require.NoError(t, err)
	assert.Len(t, received, 1)

	_, err = f.svc.ListPending(ctx, "alice", ledger.Direction("both"))
	assert.ErrorIs(t, err, relationship.ErrInvalidArgument)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.svc.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, relationship.StateNone, st.State)

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	st, err = f.svc.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "pending", st.State)
	assert.Equal(t, "outgoing", st.Direction)
	assert.Equal(t, req.ID, st.RequestID)

	st, err = f.svc.Status(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, "incoming", st.Direction)
}

func TestConnectedDetectsAsymmetricCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, req.ID, "bob", relationship.ActionAccept)
	require.NoError(t, err)

	ok, err := f.svc.Connected(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	// Break one direction behind the service's back.
	require.NoError(t, f.db.Where("user_id = ? AND peer_id = ?", "bob", "alice").
		Delete(&models.UserConnection{}).Error)

	ok, err = f.svc.Connected(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, ok, "ledger answer wins")
	require.Equal(t, 1, f.recorder.count())
}

func TestListAcceptedReportsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, req.ID, "bob", relationship.ActionAccept)
	require.NoError(t, err)

	require.NoError(t, f.cache.AddPeer(ctx, "alice", "mallory"))
	require.NoError(t, f.cache.RemovePeer(ctx, "alice", "bob"))

	peers, err := f.svc.ListAccepted(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, "bob", peers[0].PeerID)
	assert.Equal(t, 2, f.recorder.count())
}

func TestVerifyPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, req.ID, "bob", relationship.ActionAccept)
	require.NoError(t, err)

	connected, consistent, err := f.svc.VerifyPair(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, connected)
	assert.True(t, consistent)

	require.NoError(t, f.cache.AddPeer(ctx, "alice", "carol"))
	connected, consistent, err = f.svc.VerifyPair(ctx, "alice", "carol")
	require.NoError(t, err)
	assert.False(t, connected)
	assert.False(t, consistent)
	assert.Equal(t, 1, f.recorder.count())

	_, _, err = f.svc.VerifyPair(ctx, "alice", "alice")
	assert.ErrorIs(t, err, relationship.ErrInvalidArgument)
}

func TestSeparateCache_RetriesAfterCommit(t *testing.T) {
	db := dbtest.New(t)
	flaky := &flakyCache{Cache: graphcache.NewSQLCache(db)}
	flaky.failures.Store(2)
	f := newFixtureWithCache(t, db, flaky)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, req.ID, "bob", relationship.ActionAccept)
	require.NoError(t, err)

	assert.True(t, f.contains(t, "alice", "bob"))
	assert.True(t, f.contains(t, "bob", "alice"))
	assert.Zero(t, f.recorder.count())
}

func TestSeparateCache_ReportsWhenRetriesExhausted(t *testing.T) {
	db := dbtest.New(t)
	flaky := &flakyCache{Cache: graphcache.NewSQLCache(db)}
	flaky.failures.Store(100)
	f := newFixtureWithCache(t, db, flaky)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	// The ledger committed, so the caller still sees success.
	accepted, err := f.svc.Transition(ctx, req.ID, "bob", relationship.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, models.StateAccepted, accepted.State)

	assert.False(t, f.contains(t, "alice", "bob"))
	require.Equal(t, 1, f.recorder.count())
}

func TestSeparateCache_LateAddAfterDissolve(t *testing.T) {
	db := dbtest.New(t)
	gated := newGatedCache(graphcache.NewSQLCache(db))
	f := newFixtureWithCache(t, db, gated)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	acceptErr := make(chan error, 1)
	go func() {
		_, err := f.svc.Transition(ctx, req.ID, "bob", relationship.ActionAccept)
		acceptErr <- err
	}()

	// The accept has committed and its cache write is parked.
	select {
	case <-gated.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("accept never reached the cache")
	}
	require.NoError(t, f.svc.Dissolve(ctx, req.ID, "alice"))

	close(gated.gate)
	require.NoError(t, <-acceptErr)

	assert.Empty(t, f.rows(t))
	assert.False(t, f.contains(t, "alice", "bob"))
	assert.False(t, f.contains(t, "bob", "alice"))

	_, consistent, err := f.svc.VerifyPair(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, consistent)
}

func TestConcurrentCreatesKeepOneRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	var created atomic.Int32
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		sender, receiver := "alice", "bob"
		if i%2 == 1 {
			sender, receiver = receiver, sender
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Create(ctx, sender, receiver); err != nil {
				errs <- err
				return
			}
			created.Add(1)
		}()
	}
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), created.Load())
	for err := range errs {
		assert.ErrorIs(t, err, relationship.ErrAlreadyExists)
	}
	assert.Len(t, f.rows(t), 1)
}

func TestConcurrentAcceptsApplyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transition(ctx, req.ID, "bob", relationship.ActionAccept)
			if err == nil {
				ok.Add(1)
				return
			}
			assert.ErrorIs(t, err, relationship.ErrInvalidState)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	peers, err := f.cache.ListPeers(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, peers)
}

// TestRandomOperationsKeepStoresAligned drives random operations over a small
// set of users and checks uniqueness and symmetry after every step.
func TestRandomOperationsKeepStoresAligned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	users := []string{"u1", "u2", "u3", "u4"}
	rng := rand.New(rand.NewSource(42))

	for step := 0; step < 300; step++ {
		a := users[rng.Intn(len(users))]
		b := users[rng.Intn(len(users))]
		actor := users[rng.Intn(len(users))]

		rows := f.rows(t)
		var target *models.ConnectionRequest
		if len(rows) > 0 {
			target = &rows[rng.Intn(len(rows))]
		}

		switch rng.Intn(5) {
		case 0, 1:
			_, _ = f.svc.Create(ctx, a, b)
		case 2:
			if target != nil {
				_, _ = f.svc.Transition(ctx, target.ID, actor, relationship.ActionAccept)
			}
		case 3:
			if target != nil {
				_, _ = f.svc.Transition(ctx, target.ID, actor, relationship.ActionReject)
			}
		case 4:
			if target != nil {
				_ = f.svc.Dissolve(ctx, target.ID, actor)
			}
		}

		assertAligned(t, f, users)
	}
}

func assertAligned(t *testing.T, f *fixture, users []string) {
	t.Helper()
	rows := f.rows(t)

	pairs := map[[2]string]models.ConnectionState{}
	for _, r := range rows {
		require.NotEqual(t, r.SenderID, r.ReceiverID)
		low, high := ledger.Pair(r.SenderID, r.ReceiverID)
		key := [2]string{low, high}
		_, dup := pairs[key]
		require.False(t, dup, "more than one row for %v", key)
		pairs[key] = r.State
	}

	for i, a := range users {
		for _, b := range users[i+1:] {
			ab := f.contains(t, a, b)
			ba := f.contains(t, b, a)
			require.Equal(t, ab, ba, "asymmetric cache for %s/%s", a, b)

			low, high := ledger.Pair(a, b)
			accepted := pairs[[2]string{low, high}] == models.StateAccepted
			require.Equal(t, accepted, ab, "cache and ledger disagree for %s/%s", a, b)
		}
	}
}
