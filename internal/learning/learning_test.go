package learning

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/iamwavecut/modcore/internal/config"
	apperrors "github.com/iamwavecut/modcore/internal/errors"
	"github.com/iamwavecut/modcore/internal/store"
)

type fakeLearnStore struct {
	mu       sync.Mutex
	records  map[string]string
	counters map[string]int64
	setExErr error
}

func newFakeLearnStore() *fakeLearnStore {
	return &fakeLearnStore{records: map[string]string{}, counters: map[string]int64{}}
}

func (f *fakeLearnStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[key]
	return ok, nil
}

func (f *fakeLearnStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setExErr != nil {
		return f.setExErr
	}
	f.records[key] = value
	return nil
}

func (f *fakeLearnStore) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]++
	return f.counters[key], nil
}

func (f *fakeLearnStore) GetInt(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[key], nil
}

type fakeLearner struct {
	mu   sync.Mutex
	spam int
	ham  int
	err  error
}

func (f *fakeLearner) LearnSpam(ctx context.Context, messageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.spam++
	return nil
}

func (f *fakeLearner) LearnHam(ctx context.Context, messageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ham++
	return nil
}

func testLearningConfig() config.Learning {
	return config.Learning{MinSpam: 200, MinHam: 200, DedupTTL: 24 * time.Hour}
}

func TestLearnRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	coordinator := NewCoordinator(newFakeLearnStore(), &fakeLearner{}, testLearningConfig())
	ctx := context.Background()

	if err := coordinator.Learn(ctx, "", LabelSpam, "text"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("empty message id: err = %v, want invalid input", err)
	}
	if err := coordinator.Learn(ctx, "m1", Label("weird"), "text"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("unknown label: err = %v, want invalid input", err)
	}
}

func TestLearnIsIdempotent(t *testing.T) {
	t.Parallel()

	fake := newFakeLearnStore()
	learner := &fakeLearner{}
	coordinator := NewCoordinator(fake, learner, testLearningConfig())
	ctx := context.Background()

	if err := coordinator.Learn(ctx, "m1", LabelSpam, "spam text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := coordinator.Learn(ctx, "m1", LabelSpam, "spam text"); err != nil {
		t.Fatalf("unexpected error on duplicate: %v", err)
	}
	if learner.spam != 1 {
		t.Fatalf("engine received %d submissions, want 1", learner.spam)
	}
	if got := fake.counters[store.LearnedSpamCounterKey]; got != 1 {
		t.Fatalf("spam counter = %d, want 1", got)
	}

	label, err := coordinator.IsLearned(ctx, "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != LabelSpam {
		t.Fatalf("IsLearned = %q, want spam", label)
	}
}

func TestLearnStaysRetryableAfterEngineFailure(t *testing.T) {
	t.Parallel()

	fake := newFakeLearnStore()
	learner := &fakeLearner{err: errors.New("engine down")}
	coordinator := NewCoordinator(fake, learner, testLearningConfig())
	ctx := context.Background()

	if err := coordinator.Learn(ctx, "m2", LabelHam, "ham text"); err == nil {
		t.Fatal("expected error from a failing engine")
	}
	if len(fake.records) != 0 {
		t.Fatal("dedup record written despite a failed submission")
	}
	if got := fake.counters[store.LearnedHamCounterKey]; got != 0 {
		t.Fatalf("ham counter = %d after failure, want 0", got)
	}

	learner.err = nil
	if err := coordinator.Learn(ctx, "m2", LabelHam, "ham text"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if learner.ham != 1 {
		t.Fatalf("engine received %d submissions after retry, want 1", learner.ham)
	}
}

func TestLearnCountsCorpusWhenDedupWriteFails(t *testing.T) {
	t.Parallel()

	fake := newFakeLearnStore()
	fake.setExErr = errors.New("store down")
	learner := &fakeLearner{}
	coordinator := NewCoordinator(fake, learner, testLearningConfig())

	if err := coordinator.Learn(context.Background(), "m3", LabelSpam, "spam text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if learner.spam != 1 {
		t.Fatalf("engine received %d submissions, want 1", learner.spam)
	}
	if got := fake.counters[store.LearnedSpamCounterKey]; got != 1 {
		t.Fatalf("spam counter = %d with a lost dedup record, want 1", got)
	}
}

func TestStatsAndReadiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		spam      int64
		ham       int64
		wantReady bool
		wantRatio int64
	}{
		{name: "empty corpus", wantReady: false},
		{name: "asymmetric corpus not ready", spam: 199, ham: 300, wantReady: false, wantRatio: 39},
		{name: "both minimums met", spam: 200, ham: 200, wantReady: true, wantRatio: 50},
		{name: "large corpus", spam: 900, ham: 300, wantReady: true, wantRatio: 75},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fake := newFakeLearnStore()
			fake.counters[store.LearnedSpamCounterKey] = tt.spam
			fake.counters[store.LearnedHamCounterKey] = tt.ham
			coordinator := NewCoordinator(fake, &fakeLearner{}, testLearningConfig())

			stats, err := coordinator.Stats(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stats.Ready != tt.wantReady {
				t.Fatalf("ready = %v, want %v", stats.Ready, tt.wantReady)
			}
			if stats.SpamRatioPercent != tt.wantRatio {
				t.Fatalf("ratio = %d, want %d", stats.SpamRatioPercent, tt.wantRatio)
			}
			if stats.TotalMessages != tt.spam+tt.ham {
				t.Fatalf("total = %d, want %s", stats.TotalMessages, strconv.FormatInt(tt.spam+tt.ham, 10))
			}

			ready, err := coordinator.IsReady(context.Background())
			if err != nil || ready != tt.wantReady {
				t.Fatalf("IsReady = (%v,%v), want %v", ready, err, tt.wantReady)
			}
		})
	}
}
