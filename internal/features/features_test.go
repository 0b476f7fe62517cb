package features

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/iamwavecut/modcore/internal/store"
)

type fakeFeatureStore struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	sets   map[string]map[string]bool
	fail   bool
}

func newFakeFeatureStore() *fakeFeatureStore {
	return &fakeFeatureStore{
		hashes: map[string]map[string]string{},
		sets:   map[string]map[string]bool{},
	}
}

func (f *fakeFeatureStore) hash(key string) map[string]string {
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	return h
}

func (f *fakeFeatureStore) set(key string) map[string]bool {
	s, ok := f.sets[key]
	if !ok {
		s = map[string]bool{}
		f.sets[key] = s
	}
	return s
}

func (f *fakeFeatureStore) HMGet(ctx context.Context, key string, fields ...string) ([]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("store down")
	}
	h := f.hash(key)
	out := make([]any, len(fields))
	for i, field := range fields {
		if v, ok := h[field]; ok {
			out[i] = v
		}
	}
	return out, nil
}

func (f *fakeFeatureStore) HSet(ctx context.Context, key string, values ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("store down")
	}
	h := f.hash(key)
	for i := 0; i+1 < len(values); i += 2 {
		h[fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	return nil
}

func (f *fakeFeatureStore) HDel(ctx context.Context, key string, fields ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.hash(key)
	for _, field := range fields {
		delete(h, field)
	}
	return nil
}

func (f *fakeFeatureStore) SAdd(ctx context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("store down")
	}
	s := f.set(key)
	for _, m := range members {
		s[m] = true
	}
	return nil
}

func (f *fakeFeatureStore) SRem(ctx context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.set(key)
	for _, m := range members {
		delete(s, m)
	}
	return nil
}

func (f *fakeFeatureStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, errors.New("store down")
	}
	return f.set(key)[member], nil
}

func (f *fakeFeatureStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, errors.New("store down")
	}
	return len(f.set(key)) > 0, nil
}

func TestResolvePrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		override string
		global   bool
		want     bool
	}{
		{name: "no override, globally enabled", global: true, want: true},
		{name: "no override, globally disabled", want: false},
		{name: "override on beats global off", override: "1", want: true},
		{name: "override off beats global on", override: "0", global: true, want: false},
	}

	for i, tt := range tests {
		chatID := int64(200 + i)
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fake := newFakeFeatureStore()
			if tt.override != "" {
				fake.hash(store.ChatKey(chatID))[store.FeatureField("flood")] = tt.override
			}
			if tt.global {
				fake.set(store.EnabledFeaturesKey)["flood"] = true
			}
			gate := NewGate(fake)
			if got := gate.IsEnabled(context.Background(), chatID, "flood"); got != tt.want {
				t.Fatalf("IsEnabled = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveDisablesOnStoreFailure(t *testing.T) {
	t.Parallel()

	fake := newFakeFeatureStore()
	fake.fail = true
	gate := NewGate(fake)

	resolved := gate.Resolve(context.Background(), 1, Defaults)
	for _, feature := range Defaults {
		if resolved.IsEnabled(feature) {
			t.Fatalf("feature %q resolved enabled on a failing store", feature)
		}
	}
}

func TestSetAndClearChatFeature(t *testing.T) {
	t.Parallel()

	fake := newFakeFeatureStore()
	fake.set(store.EnabledFeaturesKey)["caps"] = true
	gate := NewGate(fake)
	ctx := context.Background()

	if err := gate.SetChatFeature(ctx, 7, "caps", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gate.IsEnabled(ctx, 7, "caps") {
		t.Fatal("chat override off did not win")
	}
	if err := gate.ClearChatFeature(ctx, 7, "caps"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gate.IsEnabled(ctx, 7, "caps") {
		t.Fatal("clearing the override did not restore the global default")
	}
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	t.Parallel()

	fake := newFakeFeatureStore()
	gate := NewGate(fake)
	ctx := context.Background()

	if err := gate.SeedDefaults(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, feature := range Defaults {
		if !fake.set(store.EnabledFeaturesKey)[feature] {
			t.Fatalf("feature %q not seeded", feature)
		}
	}

	if err := gate.DisableGlobal(ctx, "gibberish"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := gate.SeedDefaults(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.set(store.EnabledFeaturesKey)["gibberish"] {
		t.Fatal("second seed overwrote an operator change")
	}
}
