// Package relationship implements the connection request state machine and
// keeps the ledger and the graph cache in agreement.
//
//	(none)   --Create-->          PENDING
//	PENDING  --Transition(accept)--> ACCEPTED  (cache: add both directions)
//	PENDING  --Transition(reject)--> REJECTED
//	PENDING  --Cancel(sender)-->  (none)
//	REJECTED --Create-->          PENDING   (same row, direction of the new caller)
//	ACCEPTED --Dissolve(party)--> (none)    (cache: remove both directions)
//
// Every operation takes the acting user id explicitly.
package relationship

import (
	"context"
	"errors"
	"strings"
	"time"

	"cardlink/backend/internal/graphcache"
	"cardlink/backend/internal/ledger"
	"cardlink/backend/internal/metrics"
	"cardlink/backend/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FaultReporter receives pairs whose cache entries disagree with the ledger.
// Report must not block.
type FaultReporter interface {
	Report(a, b string)
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how request ids are generated.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithFaultReporter sets where consistency faults are sent for repair.
func WithFaultReporter(r FaultReporter) Option {
	return func(s *Service) { s.faults = r }
}

// WithCacheRetry sets how often a non-transactional cache write is attempted
// after the ledger committed, and the first backoff interval.
func WithCacheRetry(attempts uint, initial time.Duration) Option {
	return func(s *Service) {
		s.retryAttempts = attempts
		s.retryInitial = initial
	}
}

// Service is safe for concurrent use.
type Service struct {
	ledger *ledger.Ledger
	cache  graphcache.Cache
	log    *zap.Logger
	faults FaultReporter

	now   func() time.Time
	newID func() string

	retryAttempts uint
	retryInitial  time.Duration
}

// NewService wires a service over the ledger and a cache backend.
func NewService(l *ledger.Ledger, c graphcache.Cache, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		ledger:        l,
		cache:         c,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
		retryAttempts: 5,
		retryInitial:  50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create sends a connection request from senderID to receiverID. A REJECTED
// row for the pair is revived instead of inserting a second one.
func (s *Service) Create(ctx context.Context, senderID, receiverID string) (*models.ConnectionRequest, error) {
	const op = "create"
	if senderID == "" || receiverID == "" {
		return nil, s.done(op, newError(KindInvalidArgument, op, "sender and receiver ids are required"))
	}
	if senderID == receiverID {
		return nil, s.done(op, newError(KindInvalidArgument, op, "user %s cannot connect to themselves", senderID))
	}

	var out *models.ConnectionRequest
	resent := false
	err := s.mutate(ctx, func(tx *ledger.Ledger) (*effect, error) {
		now := s.now()
		existing, err := tx.FindByPair(ctx, senderID, receiverID)
		if errors.Is(err, ledger.ErrNotFound) {
			req := &models.ConnectionRequest{
				ID:         s.newID(),
				SenderID:   senderID,
				ReceiverID: receiverID,
				State:      models.StatePending,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := tx.Insert(ctx, req); err != nil {
				if errors.Is(err, ledger.ErrDuplicate) {
					return nil, newError(KindAlreadyExists, op, "a request between %s and %s already exists", senderID, receiverID)
				}
				return nil, err
			}
			out = req
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		if existing.State.Active() {
			return nil, newError(KindAlreadyExists, op, "request %s between %s and %s is already %s",
				existing.ID, existing.SenderID, existing.ReceiverID, existing.State)
		}

		ok, err := tx.Resend(ctx, existing.ID, senderID, receiverID, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newError(KindAlreadyExists, op, "request %s was resent concurrently", existing.ID)
		}
		existing.SenderID = senderID
		existing.ReceiverID = receiverID
		existing.State = models.StatePending
		existing.AcceptedAt = nil
		existing.UpdatedAt = now
		out = existing
		resent = true
		return nil, nil
	})
	if err != nil {
		return nil, s.done(op, err)
	}

	s.log.Info("connection request created",
		zap.String("request_id", out.ID),
		zap.String("sender_id", senderID),
		zap.String("receiver_id", receiverID),
		zap.Bool("resent", resent))
	return out, s.done(op, nil)
}

// Transition lets the receiver of a PENDING request accept or reject it.
// Accepting adds the pair to the graph cache as part of the same operation.
func (s *Service) Transition(ctx context.Context, requestID, actingUserID string, action Action) (*models.ConnectionRequest, error) {
	op := action.String()
	to, ok := action.target()
	if !ok {
		return nil, s.done("transition", newError(KindInvalidArgument, "transition", "unknown action %d", int(action)))
	}
	if requestID == "" || actingUserID == "" {
		return nil, s.done(op, newError(KindInvalidArgument, op, "request id and acting user id are required"))
	}

	var out *models.ConnectionRequest
	err := s.mutate(ctx, func(tx *ledger.Ledger) (*effect, error) {
		req, err := s.load(ctx, tx, op, requestID)
		if err != nil {
			return nil, err
		}
		if req.ReceiverID != actingUserID {
			return nil, newError(KindForbidden, op, "only the receiver of request %s may %s it", req.ID, op)
		}
		if req.State != models.StatePending {
			return nil, newError(KindInvalidState, op, "request %s is %s, not pending", req.ID, req.State)
		}

		now := s.now()
		swapped, err := tx.SetState(ctx, req.ID, actingUserID, models.StatePending, to, now)
		if err != nil {
			return nil, err
		}
		if !swapped {
			return nil, s.lostRace(ctx, tx, op, req.ID)
		}

		req.State = to
		req.UpdatedAt = now
		out = req
		if to != models.StateAccepted {
			return nil, nil
		}
		req.AcceptedAt = &now
		return &effect{a: req.SenderID, b: req.ReceiverID}, nil
	})
	if err != nil {
		return nil, s.done(op, err)
	}

	s.log.Info("connection request answered",
		zap.String("request_id", out.ID),
		zap.String("action", op),
		zap.String("acting_user_id", actingUserID))
	return out, s.done(op, nil)
}

// Dissolve ends an ACCEPTED relationship. Either party may call it. The row
// is deleted and both cache entries are pruned.
func (s *Service) Dissolve(ctx context.Context, requestID, actingUserID string) error {
	const op = "dissolve"
	if requestID == "" || actingUserID == "" {
		return s.done(op, newError(KindInvalidArgument, op, "request id and acting user id are required"))
	}

	err := s.mutate(ctx, func(tx *ledger.Ledger) (*effect, error) {
		req, err := s.load(ctx, tx, op, requestID)
		if err != nil {
			return nil, err
		}
		if !req.Involves(actingUserID) {
			return nil, newError(KindForbidden, op, "user %s is not a party of request %s", actingUserID, req.ID)
		}
		if req.State != models.StateAccepted {
			return nil, newError(KindInvalidState, op, "request %s is %s, not accepted", req.ID, req.State)
		}

		deleted, err := tx.DeleteInState(ctx, req.ID, models.StateAccepted)
		if err != nil {
			return nil, err
		}
		if !deleted {
			return nil, s.lostRace(ctx, tx, op, req.ID)
		}
		return &effect{remove: true, a: req.SenderID, b: req.ReceiverID}, nil
	})
	if err != nil {
		return s.done(op, err)
	}

	s.log.Info("connection dissolved",
		zap.String("request_id", requestID),
		zap.String("acting_user_id", actingUserID))
	return s.done(op, nil)
}

// Cancel withdraws a PENDING request. Only its sender may cancel it.
func (s *Service) Cancel(ctx context.Context, requestID, actingUserID string) error {
	const op = "cancel"
	if requestID == "" || actingUserID == "" {
		return s.done(op, newError(KindInvalidArgument, op, "request id and acting user id are required"))
	}

	err := s.mutate(ctx, func(tx *ledger.Ledger) (*effect, error) {
		req, err := s.load(ctx, tx, op, requestID)
		if err != nil {
			return nil, err
		}
		if req.SenderID != actingUserID {
			return nil, newError(KindForbidden, op, "only the sender of request %s may cancel it", req.ID)
		}
		if req.State != models.StatePending {
			return nil, newError(KindInvalidState, op, "request %s is %s, not pending", req.ID, req.State)
		}

		deleted, err := tx.DeleteInState(ctx, req.ID, models.StatePending)
		if err != nil {
			return nil, err
		}
		if !deleted {
			return nil, s.lostRace(ctx, tx, op, req.ID)
		}
		return nil, nil
	})
	if err != nil {
		return s.done(op, err)
	}

	s.log.Info("connection request cancelled",
		zap.String("request_id", requestID),
		zap.String("acting_user_id", actingUserID))
	return s.done(op, nil)
}

// ListPending returns the snapshot of PENDING requests userID received or
// sent, newest first.
func (s *Service) ListPending(ctx context.Context, userID string, dir ledger.Direction) ([]models.ConnectionRequest, error) {
	const op = "list_pending"
	if userID == "" {
		return nil, newError(KindInvalidArgument, op, "user id is required")
	}
	if dir != ledger.DirectionReceived && dir != ledger.DirectionSent {
		return nil, newError(KindInvalidArgument, op, "direction must be %q or %q", ledger.DirectionReceived, ledger.DirectionSent)
	}

	requests, err := s.ledger.ListPending(ctx, userID, dir)
	if err != nil {
		return nil, s.fail(op, err)
	}
	return requests, nil
}

// ListAccepted returns userID's accepted relationships from the ledger. The
// cache entry is compared on the way and any difference is reported for repair.
func (s *Service) ListAccepted(ctx context.Context, userID string) ([]ledger.Peer, error) {
	const op = "list_accepted"
	if userID == "" {
		return nil, newError(KindInvalidArgument, op, "user id is required")
	}

	peers, err := s.ledger.ListAccepted(ctx, userID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	s.crossCheck(ctx, userID, peers)
	return peers, nil
}

// ListPeers serves userID's peer ids from the graph cache, falling back to
// the ledger if the cache cannot be read.
func (s *Service) ListPeers(ctx context.Context, userID string) ([]string, error) {
	const op = "list_peers"
	if userID == "" {
		return nil, newError(KindInvalidArgument, op, "user id is required")
	}

	peers, err := s.cache.ListPeers(ctx, userID)
	if err == nil {
		return peers, nil
	}
	s.log.Warn("graph cache unavailable, reading ledger", zap.String("user_id", userID), zap.Error(err))

	accepted, err := s.ledger.ListAccepted(ctx, userID)
	if err != nil {
		return nil, s.fail(op, err)
	}
	ids := make([]string, 0, len(accepted))
	for _, p := range accepted {
		ids = append(ids, p.PeerID)
	}
	return ids, nil
}

// RelationStatus describes the pair (viewer, other) from the viewer's side.
type RelationStatus struct {
	State     string `json:"state"`
	Direction string `json:"direction,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// StateNone is reported when the ledger has no row for the pair.
const StateNone = "none"

// Status reports the ledger state between viewerID and otherID.
func (s *Service) Status(ctx context.Context, viewerID, otherID string) (*RelationStatus, error) {
	const op = "status"
	if viewerID == "" || otherID == "" {
		return nil, newError(KindInvalidArgument, op, "both user ids are required")
	}
	if viewerID == otherID {
		return &RelationStatus{State: StateNone}, nil
	}

	req, err := s.ledger.FindByPair(ctx, viewerID, otherID)
	if errors.Is(err, ledger.ErrNotFound) {
		return &RelationStatus{State: StateNone}, nil
	}
	if err != nil {
		return nil, s.fail(op, err)
	}

	direction := "incoming"
	if req.SenderID == viewerID {
		direction = "outgoing"
	}
	return &RelationStatus{State: string(req.State), Direction: direction, RequestID: req.ID}, nil
}

// load fetches a request inside a transaction and maps a miss to NotFound.
func (s *Service) load(ctx context.Context, tx *ledger.Ledger, op, requestID string) (*models.ConnectionRequest, error) {
	req, err := tx.Get(ctx, requestID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, newError(KindNotFound, op, "request %s not found", requestID)
	}
	return req, err
}

// lostRace classifies a compare-and-swap that matched no row.
func (s *Service) lostRace(ctx context.Context, tx *ledger.Ledger, op, requestID string) error {
	req, err := s.load(ctx, tx, op, requestID)
	if err != nil {
		return err
	}
	return newError(KindInvalidState, op, "request %s changed concurrently and is now %s", req.ID, req.State)
}

// fail converts storage errors into KindInternal and logs them.
func (s *Service) fail(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	s.log.Error("relationship storage failure", zap.String("operation", op), zap.Error(err))
	return internal(op, err)
}

// done records the outcome of a mutating operation.
func (s *Service) done(op string, err error) error {
	outcome := "ok"
	if err != nil {
		err = s.fail(op, err)
		outcome = strings.ToLower(KindOf(err).String())
	}
	metrics.OperationsTotal.WithLabelValues(op, outcome).Inc()
	return err
}
