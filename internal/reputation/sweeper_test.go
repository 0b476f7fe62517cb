package reputation

import (
	"context"
	"testing"
	"time"

	"github.com/iamwavecut/modcore/internal/config"
	"github.com/iamwavecut/modcore/internal/store"
)

func TestSweeperDecaysOnInterval(t *testing.T) {
	t.Parallel()

	fake := newFakeRepStore()
	fake.reps[store.UserKey(1)] = 100
	sweeper := NewSweeper(NewStore(fake), config.Decay{Interval: 10 * time.Millisecond, Amount: 1})

	ctx := context.Background()
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("start sweeper: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fake.mu.Lock()
		rep := fake.reps[store.UserKey(1)]
		fake.mu.Unlock()
		if rep < 100 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := sweeper.Stop(ctx); err != nil {
		t.Fatalf("stop sweeper: %v", err)
	}
	fake.mu.Lock()
	rep := fake.reps[store.UserKey(1)]
	fake.mu.Unlock()
	if rep >= 100 {
		t.Fatalf("reputation = %d, want decayed below 100", rep)
	}
}

func TestSweeperStartIsIdempotent(t *testing.T) {
	t.Parallel()

	sweeper := NewSweeper(NewStore(newFakeRepStore()), config.Decay{Interval: time.Hour, Amount: 1})
	ctx := context.Background()
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("start sweeper: %v", err)
	}
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if err := sweeper.Stop(ctx); err != nil {
		t.Fatalf("stop sweeper: %v", err)
	}
	if err := sweeper.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
