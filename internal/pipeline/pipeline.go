package pipeline

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/modcore/internal/audit"
	"github.com/iamwavecut/modcore/internal/classify"
	"github.com/iamwavecut/modcore/internal/config"
	"github.com/iamwavecut/modcore/internal/detect"
	"github.com/iamwavecut/modcore/internal/escalation"
	"github.com/iamwavecut/modcore/internal/features"
	"github.com/iamwavecut/modcore/internal/infra"
	"github.com/iamwavecut/modcore/internal/learning"
	"github.com/iamwavecut/modcore/internal/observability"
	"github.com/iamwavecut/modcore/internal/store"
)

type Decision string

const (
	DecisionAllow   Decision = "allow"
	DecisionWarn    Decision = "warn"
	DecisionDelete  Decision = "delete"
	DecisionTempBan Decision = "temp_ban"
	DecisionPermBan Decision = "perm_ban"
)

// Result is the outcome of one evaluation.
type Result struct {
	Decision   Decision
	Tier       escalation.Tier
	Score      float64
	Reputation int64
	Signals    []string
	Ignored    bool
}

// Reputation adjustments the oracle's standing symbols carry into the score,
// matching the classic reject/greylist calibration.
const (
	badReputationPenalty = 5.0
	goodReputationCredit = 1.0
)

const learnTimeout = 30 * time.Second

type rateLimiter interface {
	RecordMessage(ctx context.Context, userID, chatID int64, text string, now time.Time, gates detect.Gates) (flood, repeat detect.Signal)
}

type escalator interface {
	IsPermBanned(ctx context.Context, userID int64) (bool, error)
	Run(ctx context.Context, userID, chatID int64, fired []detect.Signal, score float64, gates escalation.Gates) escalation.Outcome
}

type featureResolver interface {
	Resolve(ctx context.Context, chatID int64, names []string) features.Resolved
}

type chatStore interface {
	HIncrBy(ctx context.Context, key, field string, n int64) (int64, error)
}

type learner interface {
	Learn(ctx context.Context, messageID string, label learning.Label, text string) error
}

type auditRecorder interface {
	Record(action audit.Action)
}

// Pipeline is the per-message orchestrator. Rate limiting and the content
// scan run concurrently; everything downstream is sequential in the fixed
// tier order, serialized per user.
type Pipeline struct {
	limiter    rateLimiter
	scanner    classify.Scanner
	engine     escalator
	gate       featureResolver
	chats      chatStore
	learner    learner
	recorder   auditRecorder
	thresholds config.Thresholds
	weights    map[string]float64
	locks      *userLocks
}

func New(
	limiter rateLimiter,
	scanner classify.Scanner,
	engine escalator,
	gate featureResolver,
	chats chatStore,
	thresholds config.Thresholds,
	weights map[string]float64,
) *Pipeline {
	return &Pipeline{
		limiter:    limiter,
		scanner:    scanner,
		engine:     engine,
		gate:       gate,
		chats:      chats,
		thresholds: thresholds,
		weights:    weights,
		locks:      newUserLocks(),
	}
}

// WithLearner attaches the asynchronous training feedback loop.
func (p *Pipeline) WithLearner(l learner) *Pipeline {
	p.learner = l
	return p
}

// WithRecorder attaches the RecordModerationAction sink.
func (p *Pipeline) WithRecorder(r auditRecorder) *Pipeline {
	p.recorder = r
	return p
}

// Evaluate decides the enforcement action for one message. Per-signal
// failures are isolated and degrade to "no signal"; the call itself never
// fails once the pipeline has started.
func (p *Pipeline) Evaluate(ctx context.Context, userID, chatID int64, messageID, text string, ts time.Time) Result {
	done := observability.StartEvaluation()
	ctx, span := otel.Tracer("moderation-pipeline").Start(ctx, "evaluate")
	defer span.End()

	entry := p.getLogEntry().WithField("user_id", userID).WithField("chat_id", chatID)

	if userID == 0 || chatID == 0 {
		entry.Debug("missing user or chat id, ignoring message")
		done("ignored")
		return Result{Decision: DecisionAllow, Ignored: true}
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	unlock := p.locks.lock(userID)
	defer unlock()

	// Terminal tier first: a permanently banned user never reaches the
	// lower checks again.
	if banned, err := p.engine.IsPermBanned(ctx, userID); err != nil {
		entry.WithField("error", err.Error()).Warn("cant check perm ban state")
	} else if banned {
		result := Result{Decision: DecisionPermBan, Tier: escalation.TierPermBanned}
		p.finish(result, userID, chatID, messageID, done)
		return result
	}

	resolved := p.gate.Resolve(ctx, chatID, features.Defaults)

	var flood, repeat detect.Signal
	var scan *classify.ScanResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		flood, repeat = p.limiter.RecordMessage(gctx, userID, chatID, text, ts, detect.Gates{
			Flood:  resolved.IsEnabled("flood"),
			Repeat: resolved.IsEnabled("repeat"),
		})
		return nil
	})
	g.Go(func() error {
		res, err := p.scanner.Scan(gctx, classify.Message{
			ID:        messageID,
			UserID:    userID,
			ChatID:    chatID,
			Text:      text,
			Timestamp: ts,
		})
		if err != nil {
			entry.WithField("error", err.Error()).Warn("content scan unavailable, treating as no signal")
			return nil
		}
		scan = res
		return nil
	})
	_ = g.Wait()

	fired := make([]detect.Signal, 0, 8)
	if flood.Triggered {
		fired = append(fired, flood)
	}
	if repeat.Triggered {
		fired = append(fired, repeat)
	}
	contentFired, score := p.contentSignals(scan, resolved)
	fired = append(fired, contentFired...)

	outcome := p.engine.Run(ctx, userID, chatID, fired, score, escalation.Gates{
		Suspicious: resolved.IsEnabled("suspicious"),
		Ban:        resolved.IsEnabled("ban"),
		PermBan:    resolved.IsEnabled("perm_ban"),
	})
	for _, signal := range outcome.Fired {
		score += signal.Weight
	}
	fired = append(fired, outcome.Fired...)

	result := Result{
		Decision:   p.decide(outcome.Tier, score),
		Tier:       outcome.Tier,
		Score:      score,
		Reputation: outcome.Reputation,
	}
	for _, signal := range fired {
		result.Signals = append(result.Signals, signal.Name)
		observability.RecordSignalFire(signal.Name)
	}

	if result.Decision == DecisionDelete {
		if _, err := p.chats.HIncrBy(ctx, store.ChatKey(chatID), store.FieldDeleted, 1); err != nil {
			entry.WithField("error", err.Error()).Warn("cant increment chat deleted count")
		}
	}

	if p.learner != nil && messageID != "" && result.Decision != DecisionAllow && result.Decision != DecisionWarn {
		p.enqueueLearn(messageID, text)
	}

	p.finish(result, userID, chatID, messageID, done)
	return result
}

// contentSignals translates the oracle's symbols into gated signals. A
// disabled detector's contribution is subtracted from the raw score so
// gating removes the detector entirely rather than down-weighting it.
func (p *Pipeline) contentSignals(scan *classify.ScanResult, resolved features.Resolved) ([]detect.Signal, float64) {
	if scan == nil {
		return nil, 0
	}
	score := scan.Score
	fired := make([]detect.Signal, 0, len(scan.Symbols))
	for name, symbol := range scan.Symbols {
		switch name {
		case detect.SignalReputationBad:
			score += badReputationPenalty
			continue
		case detect.SignalReputationGood:
			score -= goodReputationCredit
			continue
		case detect.SignalFlood, detect.SignalRepeat, detect.SignalSuspicious, detect.SignalBan, detect.SignalPermBan:
			// Behavioral tiers are computed locally, never trusted from the
			// oracle echo.
			score -= symbol.Score
			continue
		}
		feature, ok := detect.FeatureFor(name)
		if !ok {
			continue
		}
		if !resolved.IsEnabled(feature) {
			score -= symbol.Score
			continue
		}
		weight := p.weights[name]
		if weight == 0 {
			weight = symbol.Score
		}
		fired = append(fired, detect.Signal{Name: name, Triggered: true, Weight: weight})
	}
	return fired, score
}

func (p *Pipeline) decide(tier escalation.Tier, score float64) Decision {
	switch tier {
	case escalation.TierPermBanned:
		return DecisionPermBan
	case escalation.TierTempBanned:
		return DecisionTempBan
	}
	switch {
	case score >= p.thresholds.DeleteScore:
		return DecisionDelete
	case score >= p.thresholds.WarnScore:
		return DecisionWarn
	}
	return DecisionAllow
}

func (p *Pipeline) enqueueLearn(messageID, text string) {
	go infra.GoRecoverable(1, "learn-"+messageID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), learnTimeout)
		defer cancel()
		if err := p.learner.Learn(ctx, messageID, learning.LabelSpam, text); err != nil {
			p.getLogEntry().WithField("message_id", messageID).WithField("error", err.Error()).Warn("learning deferred")
		}
	})
}

func (p *Pipeline) finish(result Result, userID, chatID int64, messageID string, done func(status string)) {
	observability.RecordDecision(string(result.Decision))
	if p.recorder != nil {
		p.recorder.Record(audit.Action{
			UserID:     userID,
			ChatID:     chatID,
			MessageID:  messageID,
			Decision:   string(result.Decision),
			Tier:       result.Tier.String(),
			Score:      result.Score,
			Reputation: result.Reputation,
			Signals:    audit.JoinSignals(result.Signals),
		})
	}
	done(string(result.Decision))
}

func (p *Pipeline) getLogEntry() *log.Entry {
	return log.WithField("object", "ModerationPipeline")
}
