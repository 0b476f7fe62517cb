package features

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/modcore/internal/store"
)

// Defaults is the feature set seeded into the global enabled set on first
// start. It covers every detector the pipeline knows about.
var Defaults = []string{
	"flood",
	"repeat",
	"suspicious",
	"ban",
	"perm_ban",

	"link_spam",
	"mentions",
	"caps",
	"emoji_spam",

	"first_fast",
	"first_slow",
	"silent",

	"invite_link",
	"phone_spam",
	"spam_chat",
	"shortener",
	"gibberish",
}

type featureStore interface {
	HMGet(ctx context.Context, key string, fields ...string) ([]any, error)
	HSet(ctx context.Context, key string, values ...any) error
	HDel(ctx context.Context, key string, fields ...string) error
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Gate resolves detector toggles. Resolution order is fixed: an explicit
// per-chat flag short-circuits, else membership in the global enabled set,
// else disabled. A lookup never yields an undefined state.
type Gate struct {
	store featureStore
}

func NewGate(s featureStore) *Gate {
	return &Gate{store: s}
}

// Resolved is a chat's flag snapshot, taken once per evaluation so detectors
// never re-fetch mid-message.
type Resolved struct {
	flags map[string]bool
}

func (r Resolved) IsEnabled(feature string) bool {
	return r.flags[feature]
}

// ResolvedFromFlags builds a snapshot from explicit flags, bypassing the
// store. Missing features resolve to disabled.
func ResolvedFromFlags(flags map[string]bool) Resolved {
	snapshot := make(map[string]bool, len(flags))
	for feature, enabled := range flags {
		snapshot[feature] = enabled
	}
	return Resolved{flags: snapshot}
}

// Resolve snapshots the given features for a chat. On store failure the
// affected feature resolves to disabled, which keeps the pipeline fail-open:
// a gated-off detector simply contributes no signal.
func (g *Gate) Resolve(ctx context.Context, chatID int64, features []string) Resolved {
	entry := g.getLogEntry().WithField("chat_id", chatID)
	resolved := Resolved{flags: make(map[string]bool, len(features))}

	fields := make([]string, len(features))
	for i, feature := range features {
		fields[i] = store.FeatureField(feature)
	}
	overrides, err := g.store.HMGet(ctx, store.ChatKey(chatID), fields...)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant read chat feature flags")
		overrides = make([]any, len(features))
	}

	for i, feature := range features {
		if len(overrides) > i && overrides[i] != nil {
			if flag, ok := overrides[i].(string); ok {
				resolved.flags[feature] = flag == "1"
				continue
			}
		}
		enabled, err := g.store.SIsMember(ctx, store.EnabledFeaturesKey, feature)
		if err != nil {
			entry.WithField("feature", feature).WithField("error", err.Error()).Warn("cant read global feature set")
			continue
		}
		resolved.flags[feature] = enabled
	}
	return resolved
}

// IsEnabled resolves a single feature, chat override first.
func (g *Gate) IsEnabled(ctx context.Context, chatID int64, feature string) bool {
	return g.Resolve(ctx, chatID, []string{feature}).IsEnabled(feature)
}

// SetChatFeature writes an explicit per-chat override.
func (g *Gate) SetChatFeature(ctx context.Context, chatID int64, feature string, enabled bool) error {
	flag := "0"
	if enabled {
		flag = "1"
	}
	return g.store.HSet(ctx, store.ChatKey(chatID), store.FeatureField(feature), flag)
}

// ClearChatFeature drops the override so the chat inherits the global set.
func (g *Gate) ClearChatFeature(ctx context.Context, chatID int64, feature string) error {
	return g.store.HDel(ctx, store.ChatKey(chatID), store.FeatureField(feature))
}

func (g *Gate) EnableGlobal(ctx context.Context, feature string) error {
	return g.store.SAdd(ctx, store.EnabledFeaturesKey, feature)
}

func (g *Gate) DisableGlobal(ctx context.Context, feature string) error {
	return g.store.SRem(ctx, store.EnabledFeaturesKey, feature)
}

// SeedDefaults populates the global enabled set on first start.
func (g *Gate) SeedDefaults(ctx context.Context) error {
	exists, err := g.store.Exists(ctx, store.EnabledFeaturesKey)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := g.store.SAdd(ctx, store.EnabledFeaturesKey, Defaults...); err != nil {
		return err
	}
	g.getLogEntry().WithField("features", len(Defaults)).Info("seeded default feature set")
	return nil
}

func (g *Gate) getLogEntry() *log.Entry {
	return log.WithField("object", "FeatureGate")
}
