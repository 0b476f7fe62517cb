package detect

import (
	"context"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/modcore/internal/config"
	"github.com/iamwavecut/modcore/internal/store"
)

type counterStore interface {
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)
	HIncrByWindowed(ctx context.Context, key, field string, n int64, window time.Duration) (int64, error)
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key string, values ...any) error
	HSetNX(ctx context.Context, key, field, value string) (bool, error)
}

// RateLimiter maintains the flood and repeat counters of the per-user record.
// Every store failure degrades to an untriggered signal; message delivery is
// never blocked on the substrate.
type RateLimiter struct {
	store           counterStore
	floodThreshold  int64
	floodWindow     time.Duration
	repeatThreshold int64
	weights         map[string]float64
}

func NewRateLimiter(s counterStore, thresholds config.Thresholds, weights map[string]float64) *RateLimiter {
	return &RateLimiter{
		store:           s,
		floodThreshold:  int64(thresholds.Flood),
		floodWindow:     thresholds.FloodWindow,
		repeatThreshold: int64(thresholds.Repeat),
		weights:         weights,
	}
}

// Gates carries the chat's detector toggles. A gated-off detector performs
// none of its counter writes and cannot fire.
type Gates struct {
	Flood  bool
	Repeat bool
}

// RecordMessage updates the windowed flood counter and the consecutive-repeat
// counter for the sender and reports both signals. When either fires, the
// chat's spam_count is incremented. Seen timestamps are bookkeeping and are
// touched regardless of the gates.
func (r *RateLimiter) RecordMessage(ctx context.Context, userID, chatID int64, text string, now time.Time, gates Gates) (flood, repeat Signal) {
	flood = Signal{Name: SignalFlood, Weight: r.weights[SignalFlood]}
	repeat = Signal{Name: SignalRepeat, Weight: r.weights[SignalRepeat]}
	userKey := store.UserKey(userID)
	entry := r.getLogEntry().WithField("user_id", userID).WithField("chat_id", chatID)

	r.touchSeen(ctx, userKey, now)

	if gates.Flood {
		count, err := r.store.HIncrByWindowed(ctx, userKey, store.FieldFlood, 1, r.floodWindow)
		if err != nil {
			entry.WithField("error", err.Error()).Warn("flood counter unavailable, skipping signal")
		} else if count > r.floodThreshold {
			flood.Triggered = true
		}
	}

	if gates.Repeat {
		last, err := r.store.HGet(ctx, userKey, store.FieldLastMsg)
		if err != nil {
			entry.WithField("error", err.Error()).Warn("last message unavailable, skipping repeat signal")
		} else if last != "" && last == text {
			repeats, err := r.store.HIncrBy(ctx, userKey, store.FieldEqMsgCount, 1)
			if err != nil {
				entry.WithField("error", err.Error()).Warn("repeat counter unavailable, skipping signal")
			} else if repeats >= r.repeatThreshold {
				// eq_msg_count counts duplicates beyond the first occurrence,
				// so the threshold-th duplicate is the threshold+1-th identical
				// message overall.
				repeat.Triggered = true
			}
		} else {
			if err := r.store.HSet(ctx, userKey, store.FieldEqMsgCount, 0); err != nil {
				entry.WithField("error", err.Error()).Warn("cant reset repeat counter")
			}
		}

		// The overwrite is unconditional; the narrow compare-then-write race
		// is accepted, a missed repeat detection costs less than a per-user
		// lock on the hot path.
		if err := r.store.HSet(ctx, userKey, store.FieldLastMsg, text); err != nil {
			entry.WithField("error", err.Error()).Warn("cant store last message")
		}
	}

	if flood.Triggered || repeat.Triggered {
		if _, err := r.store.HIncrBy(ctx, store.ChatKey(chatID), store.FieldSpamCount, 1); err != nil {
			entry.WithField("error", err.Error()).Warn("cant increment chat spam count")
		}
	}
	return flood, repeat
}

func (r *RateLimiter) touchSeen(ctx context.Context, userKey string, now time.Time) {
	ts := strconv.FormatInt(now.Unix(), 10)
	if _, err := r.store.HSetNX(ctx, userKey, store.FieldFirstSeen, ts); err != nil {
		r.getLogEntry().WithField("error", err.Error()).Debug("cant set first seen")
	}
	if err := r.store.HSet(ctx, userKey, store.FieldLastSeen, ts); err != nil {
		r.getLogEntry().WithField("error", err.Error()).Debug("cant set last seen")
	}
}

func (r *RateLimiter) getLogEntry() *log.Entry {
	return log.WithField("object", "RateLimiter")
}
