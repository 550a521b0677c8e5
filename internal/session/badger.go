package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"
)

const (
	sessionKeyPrefix = "session/"
	pendingKeyPrefix = "pending/"
)

// BadgerStore is the embedded secondary session tier. Entries carry a TTL so
// abandoned conversations age out on their own. Sessions written while the
// primary is down are flagged pending so Reconcile can replay them later.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadgerStore opens the store at path. An empty path opens an in-memory
// instance, which is what tests and dev deployments use.
func NewBadgerStore(path string, ttl time.Duration, logger *zap.Logger) (*BadgerStore, error) {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Compression = options.None
	opts.Logger = nil
	if logger != nil {
		opts.Logger = &badgerZapLogger{logger: logger.Named("sessionstore").Sugar()}
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &BadgerStore{db: db, ttl: ttl}, nil
}

type badgerZapLogger struct {
	logger *zap.SugaredLogger
}

func (bl *badgerZapLogger) Errorf(msg string, items ...any)   { bl.logger.Errorf(msg, items...) }
func (bl *badgerZapLogger) Warningf(msg string, items ...any) { bl.logger.Warnf(msg, items...) }
func (bl *badgerZapLogger) Infof(msg string, items ...any)    { bl.logger.Debugf(msg, items...) }
func (bl *badgerZapLogger) Debugf(msg string, items ...any)   { bl.logger.Debugf(msg, items...) }

// Get loads one session. Expired entries surface as ErrNotFound.
func (s *BadgerStore) Get(_ context.Context, userID string) (Session, error) {
	var sess Session
	err := s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(sessionKeyPrefix + userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sess)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// Put writes one session under the store TTL.
func (s *BadgerStore) Put(_ context.Context, sess Session) error {
	if sess.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	err = s.db.Update(func(tx *badger.Txn) error {
		entry := badger.NewEntry([]byte(sessionKeyPrefix+sess.UserID), data).WithTTL(s.ttl)
		return tx.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// Delete removes a session and any pending flag.
func (s *BadgerStore) Delete(_ context.Context, userID string) error {
	err := s.db.Update(func(tx *badger.Txn) error {
		if err := tx.Delete([]byte(sessionKeyPrefix + userID)); err != nil {
			return err
		}
		return tx.Delete([]byte(pendingKeyPrefix + userID))
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// MarkPending flags a user whose latest write never reached the primary.
func (s *BadgerStore) MarkPending(_ context.Context, userID string) error {
	err := s.db.Update(func(tx *badger.Txn) error {
		entry := badger.NewEntry([]byte(pendingKeyPrefix+userID), []byte{1}).WithTTL(s.ttl)
		return tx.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}
	return nil
}

// ClearPending removes the pending flag after a successful replay.
func (s *BadgerStore) ClearPending(_ context.Context, userID string) error {
	err := s.db.Update(func(tx *badger.Txn) error {
		return tx.Delete([]byte(pendingKeyPrefix + userID))
	})
	if err != nil {
		return fmt.Errorf("clear pending: %w", err)
	}
	return nil
}

// PendingUsers lists users with writes awaiting replay to the primary.
func (s *BadgerStore) PendingUsers(_ context.Context) ([]string, error) {
	var users []string
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(pendingKeyPrefix)
		it := tx.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			users = append(users, strings.TrimPrefix(key, pendingKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return users, nil
}

// Close releases the database handle.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
