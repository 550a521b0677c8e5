package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/schoolchat/knowledge-engine/internal/metrics"
)

// TieredStore fronts the durable primary with the embedded secondary. Writes
// that miss the primary land in the secondary instead, flagged for replay by
// Reconcile once the primary is back.
type TieredStore struct {
	primary   Store
	secondary *BadgerStore
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewTieredStore combines the two tiers. primary may be nil for deployments
// without a database; the secondary then carries everything.
func NewTieredStore(primary Store, secondary *BadgerStore, ttl time.Duration, logger *zap.Logger) *TieredStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &TieredStore{
		primary:   primary,
		secondary: secondary,
		ttl:       ttl,
		logger:    logger.Named("session"),
		now:       time.Now,
	}
}

// Get loads a session, falling back to the secondary when the primary
// errors. Sessions idle past the TTL are expired on read.
func (t *TieredStore) Get(ctx context.Context, userID string) (Session, error) {
	sess, err := t.load(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if t.now().Sub(sess.LastActiveAt) > t.ttl {
		_ = t.Delete(ctx, userID)
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (t *TieredStore) load(ctx context.Context, userID string) (Session, error) {
	if t.primary == nil {
		return t.secondary.Get(ctx, userID)
	}
	sess, err := t.primary.Get(ctx, userID)
	if err == nil {
		return sess, nil
	}
	if errors.Is(err, ErrNotFound) {
		// The secondary may hold a session written during a primary outage.
		return t.secondary.Get(ctx, userID)
	}
	t.logger.Warn("primary session read failed, using secondary", zap.Error(err))
	metrics.ObserveSessionDegraded("get")
	return t.secondary.Get(ctx, userID)
}

// PutResult reports whether a write had to settle for the secondary tier.
type PutResult struct {
	Degraded bool
}

// Put writes to the primary. When the primary is down the write is retried
// against the secondary, flagged for reconciliation, and reported degraded
// instead of failing the turn.
func (t *TieredStore) Put(ctx context.Context, sess Session) (PutResult, error) {
	if t.primary == nil {
		return PutResult{}, t.secondary.Put(ctx, sess)
	}
	if err := t.primary.Put(ctx, sess); err != nil {
		t.logger.Warn("primary session write failed, retrying on secondary",
			zap.String("user_id", sess.UserID),
			zap.Error(err),
		)
		metrics.ObserveSessionDegraded("put")
		if serr := t.secondary.Put(ctx, sess); serr != nil {
			return PutResult{}, serr
		}
		return PutResult{Degraded: true}, t.secondary.MarkPending(ctx, sess.UserID)
	}
	// A stale secondary copy from an earlier outage no longer needs replay.
	return PutResult{}, t.secondary.ClearPending(ctx, sess.UserID)
}

// Delete removes the session from both tiers. The secondary delete always
// runs even if the primary fails.
func (t *TieredStore) Delete(ctx context.Context, userID string) error {
	var primaryErr error
	if t.primary != nil {
		primaryErr = t.primary.Delete(ctx, userID)
		if primaryErr != nil {
			metrics.ObserveSessionDegraded("delete")
		}
	}
	if err := t.secondary.Delete(ctx, userID); err != nil {
		return err
	}
	return primaryErr
}

// Reconcile replays sessions written during a primary outage. Callers run it
// periodically; it is a no-op when nothing is pending.
func (t *TieredStore) Reconcile(ctx context.Context) error {
	if t.primary == nil {
		return nil
	}
	users, err := t.secondary.PendingUsers(ctx)
	if err != nil {
		return err
	}
	for _, userID := range users {
		sess, err := t.secondary.Get(ctx, userID)
		if errors.Is(err, ErrNotFound) {
			_ = t.secondary.ClearPending(ctx, userID)
			continue
		}
		if err != nil {
			return err
		}
		if err := t.primary.Put(ctx, sess); err != nil {
			// Primary still down; leave the flag for the next pass.
			return err
		}
		if err := t.secondary.ClearPending(ctx, userID); err != nil {
			return err
		}
		t.logger.Info("replayed session to primary", zap.String("user_id", userID))
	}
	return nil
}

// Close releases both tiers.
func (t *TieredStore) Close() error {
	var firstErr error
	if t.primary != nil {
		if err := t.primary.Close(); err != nil {
			firstErr = err
		}
	}
	if err := t.secondary.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
