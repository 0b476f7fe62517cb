package escalation

import (
	"context"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/modcore/internal/config"
	"github.com/iamwavecut/modcore/internal/detect"
	"github.com/iamwavecut/modcore/internal/store"
)

// Tier is the per-user enforcement state. PERM_BANNED is terminal.
type Tier int

const (
	TierNormal Tier = iota
	TierSuspicious
	TierTempBanned
	TierPermBanned
)

func (t Tier) String() string {
	switch t {
	case TierSuspicious:
		return "suspicious"
	case TierTempBanned:
		return "temp_banned"
	case TierPermBanned:
		return "perm_banned"
	default:
		return "normal"
	}
}

type escalationStore interface {
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)
	HGetInt(ctx context.Context, key, field string) (int64, error)
	HGet(ctx context.Context, key, field string) (string, error)
	HSetNX(ctx context.Context, key, field, value string) (bool, error)
	HSetWithFieldTTL(ctx context.Context, key, field, value string, ttl time.Duration) error
}

type reputationStore interface {
	ApplyDelta(ctx context.Context, userID int64, delta int64) (int64, error)
	GetReputation(ctx context.Context, userID int64) (int64, error)
}

// Outcome reports the tier reached by one evaluation pass, the reputation
// after all deltas, and any escalation signals raised on the way.
type Outcome struct {
	Tier       Tier
	Reputation int64
	Fired      []detect.Signal
}

// Engine walks the tier checks for one message in fixed order:
// FLOOD → REPEAT → SUSPICIOUS → TEMP_BAN → PERM_BAN. Each check applies its
// own atomic mutations; a failed store write aborts only that tier, the
// finalized lower state is never rolled back.
type Engine struct {
	store      escalationStore
	reps       reputationStore
	thresholds config.Thresholds
	weights    map[string]float64
}

func NewEngine(s escalationStore, reps reputationStore, thresholds config.Thresholds, weights map[string]float64) *Engine {
	return &Engine{store: s, reps: reps, thresholds: thresholds, weights: weights}
}

// IsPermBanned reports whether the user has reached the terminal tier. The
// check runs ahead of everything else so perm-banned users are never
// re-evaluated through lower tiers.
func (e *Engine) IsPermBanned(ctx context.Context, userID int64) (bool, error) {
	flag, err := e.store.HGet(ctx, store.UserKey(userID), store.FieldPermBanned)
	if err != nil {
		return false, err
	}
	if flag != "" {
		return true, nil
	}
	// ban_count >= perm_ban_threshold escalates even when the flag write was
	// lost earlier.
	banCount, err := e.store.HGetInt(ctx, store.UserKey(userID), store.FieldBannedQ)
	if err != nil {
		return false, err
	}
	return banCount >= int64(e.thresholds.PermBan), nil
}

// IsTempBanned reports whether the user's ban flag is still alive. The flag
// expires via field TTL; expiry is the implicit return to NORMAL.
func (e *Engine) IsTempBanned(ctx context.Context, userID int64) (bool, error) {
	flag, err := e.store.HGet(ctx, store.UserKey(userID), store.FieldBanned)
	return flag != "", err
}

// Gates carries the feature-gate resolution for the tier checks. A gated-off
// tier contributes nothing, it is not merely down-weighted.
type Gates struct {
	Suspicious bool
	Ban        bool
	PermBan    bool
}

// Run applies the signal deltas in their fixed order and then evaluates the
// tier transitions against the updated reputation. A content score at or
// above the ban score also reaches TEMP_BANNED so the oracle's reject verdict
// shares the ban accounting with reputation-driven bans.
func (e *Engine) Run(ctx context.Context, userID, chatID int64, fired []detect.Signal, score float64, gates Gates) Outcome {
	entry := e.getLogEntry().WithField("user_id", userID).WithField("chat_id", chatID)
	out := Outcome{Tier: TierNormal}

	rep, err := e.reps.GetReputation(ctx, userID)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant read reputation, assuming zero")
	}
	out.Reputation = rep

	for _, signal := range fired {
		if !signal.Triggered {
			continue
		}
		delta := int64(math.Round(signal.Weight))
		if delta == 0 {
			continue
		}
		newRep, err := e.reps.ApplyDelta(ctx, userID, delta)
		if err != nil {
			entry.WithField("signal", signal.Name).WithField("error", err.Error()).Warn("cant apply signal delta, skipping")
			continue
		}
		out.Reputation = newRep
	}

	if gates.Suspicious && out.Reputation > int64(e.thresholds.Suspicious) {
		out.Tier = TierSuspicious
		out.Fired = append(out.Fired, detect.Signal{
			Name:      detect.SignalSuspicious,
			Triggered: true,
			Weight:    e.weights[detect.SignalSuspicious],
		})
		newRep, err := e.reps.ApplyDelta(ctx, userID, 1)
		if err != nil {
			entry.WithField("error", err.Error()).Warn("cant apply suspicious increment")
		} else {
			out.Reputation = newRep
		}
	}

	if gates.Ban && (out.Reputation > int64(e.thresholds.Ban) || score >= e.thresholds.BanScore) {
		out.Tier = TierTempBanned
		out.Fired = append(out.Fired, detect.Signal{Name: detect.SignalBan, Triggered: true})
		e.applyTempBan(ctx, userID, chatID, &out, entry)
	}

	banCount, err := e.store.HGetInt(ctx, store.UserKey(userID), store.FieldBannedQ)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant read ban count")
	} else if gates.PermBan && banCount >= int64(e.thresholds.PermBan) {
		out.Tier = TierPermBanned
		out.Fired = append(out.Fired, detect.Signal{Name: detect.SignalPermBan, Triggered: true})
		e.applyPermBan(ctx, userID, chatID, entry)
	}

	return out
}

func (e *Engine) applyTempBan(ctx context.Context, userID, chatID int64, out *Outcome, entry *log.Entry) {
	userKey := store.UserKey(userID)
	if _, err := e.store.HIncrBy(ctx, store.ChatKey(chatID), store.FieldBannedCount, 1); err != nil {
		entry.WithField("error", err.Error()).Warn("cant increment chat banned count")
	}
	if err := e.store.HSetWithFieldTTL(ctx, userKey, store.FieldBanned, "1", e.thresholds.BanTTL); err != nil {
		entry.WithField("error", err.Error()).Warn("cant set ban flag")
	}
	// The ban carries partial redemption; the user does not stay above the
	// ban threshold forever on reputation alone.
	if newRep, err := e.reps.ApplyDelta(ctx, userID, -5); err != nil {
		entry.WithField("error", err.Error()).Warn("cant apply ban redemption delta")
	} else {
		out.Reputation = newRep
	}
	if _, err := e.store.HIncrBy(ctx, userKey, store.FieldBannedQ, 1); err != nil {
		entry.WithField("error", err.Error()).Warn("cant increment ban count")
	}
}

func (e *Engine) applyPermBan(ctx context.Context, userID, chatID int64, entry *log.Entry) {
	created, err := e.store.HSetNX(ctx, store.UserKey(userID), store.FieldPermBanned, "1")
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant set perm ban flag")
		return
	}
	if !created {
		return
	}
	if _, err := e.store.HIncrBy(ctx, store.ChatKey(chatID), store.FieldPermBannedCount, 1); err != nil {
		entry.WithField("error", err.Error()).Warn("cant increment chat perm banned count")
	}
	entry.Info("user permanently banned")
}

func (e *Engine) getLogEntry() *log.Entry {
	return log.WithField("object", "EscalationEngine")
}
