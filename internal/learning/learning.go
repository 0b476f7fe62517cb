package learning

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/modcore/internal/classify"
	"github.com/iamwavecut/modcore/internal/config"
	apperrors "github.com/iamwavecut/modcore/internal/errors"
	"github.com/iamwavecut/modcore/internal/store"
)

type Label string

const (
	LabelSpam Label = "spam"
	LabelHam  Label = "ham"
)

type learnStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	GetInt(ctx context.Context, key string) (int64, error)
}

// Coordinator guards the adaptive classifier's feedback loop: it deduplicates
// submissions within a bounded window and gates readiness on minimum corpus
// sizes for both labels.
type Coordinator struct {
	store    learnStore
	learner  classify.Learner
	minSpam  int64
	minHam   int64
	dedupTTL time.Duration
}

func NewCoordinator(s learnStore, learner classify.Learner, cfg config.Learning) *Coordinator {
	return &Coordinator{
		store:    s,
		learner:  learner,
		minSpam:  int64(cfg.MinSpam),
		minHam:   int64(cfg.MinHam),
		dedupTTL: cfg.DedupTTL,
	}
}

// Learn submits the message to the classification engine under the given
// label. A message already learned within the dedup window is a no-op
// success. The dedup record is written only after a successful submission so
// a failed submission stays retryable.
func (c *Coordinator) Learn(ctx context.Context, messageID string, label Label, text string) error {
	if messageID == "" {
		return apperrors.ErrInvalidInput
	}
	if label != LabelSpam && label != LabelHam {
		return errors.Wrapf(apperrors.ErrInvalidInput, "unknown label %q", label)
	}

	learned, err := c.IsLearned(ctx, messageID)
	if err != nil {
		return err
	}
	if learned != "" {
		c.getLogEntry().WithField("message_id", messageID).WithField("label", string(learned)).Debug("already learned, skipping")
		return nil
	}

	switch label {
	case LabelSpam:
		err = c.learner.LearnSpam(ctx, messageID, text)
	case LabelHam:
		err = c.learner.LearnHam(ctx, messageID, text)
	}
	if err != nil {
		return errors.Wrap(err, "submit to classification engine")
	}

	// The submission went through, so it counts toward the corpus even when
	// the dedup record below is lost. A lost record only allows an extra
	// submission after the fact, which the engine tolerates.
	counterKey := store.LearnedSpamCounterKey
	if label == LabelHam {
		counterKey = store.LearnedHamCounterKey
	}
	if _, err := c.store.Incr(ctx, counterKey); err != nil {
		c.getLogEntry().WithField("message_id", messageID).WithField("error", err.Error()).Warn("cant increment corpus counter")
	}
	if err := c.store.SetEx(ctx, store.LearnedKey(string(label), messageID), "1", c.dedupTTL); err != nil {
		c.getLogEntry().WithField("message_id", messageID).WithField("error", err.Error()).Warn("cant write dedup record")
	}
	c.getLogEntry().WithField("message_id", messageID).WithField("label", string(label)).Info("learned message")
	return nil
}

// IsLearned returns the label a message was learned under, empty when the
// dedup window holds no record.
func (c *Coordinator) IsLearned(ctx context.Context, messageID string) (Label, error) {
	spam, err := c.store.Exists(ctx, store.LearnedKey(string(LabelSpam), messageID))
	if err != nil {
		return "", err
	}
	if spam {
		return LabelSpam, nil
	}
	ham, err := c.store.Exists(ctx, store.LearnedKey(string(LabelHam), messageID))
	if err != nil {
		return "", err
	}
	if ham {
		return LabelHam, nil
	}
	return "", nil
}

// IsReady reports whether both corpora have reached their configured
// minimums. An asymmetric corpus is never ready.
func (c *Coordinator) IsReady(ctx context.Context) (bool, error) {
	stats, err := c.Stats(ctx)
	if err != nil {
		return false, err
	}
	return stats.Ready, nil
}

// Stats describes the accumulated learning corpus.
type Stats struct {
	SpamMessages     int64 `json:"spam_messages"`
	HamMessages      int64 `json:"ham_messages"`
	TotalMessages    int64 `json:"total_messages"`
	SpamRatioPercent int64 `json:"spam_ratio_percent"`
	Ready            bool  `json:"ready"`
}

func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	spam, err := c.store.GetInt(ctx, store.LearnedSpamCounterKey)
	if err != nil {
		return Stats{}, err
	}
	ham, err := c.store.GetInt(ctx, store.LearnedHamCounterKey)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		SpamMessages:  spam,
		HamMessages:   ham,
		TotalMessages: spam + ham,
		Ready:         spam >= c.minSpam && ham >= c.minHam,
	}
	if stats.TotalMessages > 0 {
		stats.SpamRatioPercent = spam * 100 / stats.TotalMessages
	}
	return stats, nil
}

func (c *Coordinator) getLogEntry() *log.Entry {
	return log.WithField("object", "LearningCoordinator")
}
