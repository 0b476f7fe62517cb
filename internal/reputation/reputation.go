package reputation

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/modcore/internal/store"
)

type repStore interface {
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)
	HGetInt(ctx context.Context, key, field string) (int64, error)
	IterateKeys(ctx context.Context, pattern string, fn func(key string) error) error
}

// Store holds the per-user reputation score. All mutation is by atomic
// increments; there is no read-modify-write anywhere.
type Store struct {
	store repStore
}

func NewStore(s repStore) *Store {
	return &Store{store: s}
}

// ApplyDelta adjusts the user's reputation and returns the new value.
func (s *Store) ApplyDelta(ctx context.Context, userID int64, delta int64) (int64, error) {
	return s.store.HIncrBy(ctx, store.UserKey(userID), store.FieldRep, delta)
}

func (s *Store) GetReputation(ctx context.Context, userID int64) (int64, error) {
	return s.store.HGetInt(ctx, store.UserKey(userID), store.FieldRep)
}

// DecayAll sweeps every user record and applies a flat atomic decrement.
// Negative reputation is meaningful, there is no floor. Per-key failures are
// logged and skipped; a crashed sweep is recovered by the next scheduled run
// since decrements carry no ordering dependency across users.
func (s *Store) DecayAll(ctx context.Context, amount int64) error {
	entry := s.getLogEntry().WithField("method", "DecayAll")
	decayed := 0
	err := s.store.IterateKeys(ctx, store.UserPrefix+"*", func(key string) error {
		if _, err := s.store.HIncrBy(ctx, key, store.FieldRep, -amount); err != nil {
			entry.WithField("key", key).WithField("error", err.Error()).Warn("cant decay user, skipping")
			return nil
		}
		decayed++
		return nil
	})
	if err != nil {
		return err
	}
	entry.WithField("decayed", decayed).Debug("decay sweep finished")
	return nil
}

func (s *Store) getLogEntry() *log.Entry {
	return log.WithField("object", "ReputationStore")
}
