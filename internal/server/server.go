package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	apperrors "github.com/iamwavecut/modcore/internal/errors"
	"github.com/iamwavecut/modcore/internal/learning"
	"github.com/iamwavecut/modcore/internal/pipeline"
)

const requestTimeout = 10 * time.Second

type evaluator interface {
	Evaluate(ctx context.Context, userID, chatID int64, messageID, text string, ts time.Time) pipeline.Result
}

type trainer interface {
	Learn(ctx context.Context, messageID string, label learning.Label, text string) error
	Stats(ctx context.Context) (learning.Stats, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// EvaluateRequest is the wire form the host platform submits per message.
type EvaluateRequest struct {
	UserID    int64  `json:"user_id"`
	ChatID    int64  `json:"chat_id"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type EvaluateResponse struct {
	Decision   string   `json:"decision"`
	Tier       string   `json:"tier"`
	Score      float64  `json:"score"`
	Reputation int64    `json:"reputation"`
	Signals    []string `json:"signals,omitempty"`
	Ignored    bool     `json:"ignored,omitempty"`
}

type learnRequest struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// Server exposes the moderation pipeline over HTTP as a lifecycle component.
type Server struct {
	addr    string
	eval    evaluator
	trainer trainer
	pinger  pinger

	mu      sync.Mutex
	started bool
	srv     *http.Server
}

func New(addr string, eval evaluator, trainer trainer, pinger pinger) *Server {
	return &Server{addr: addr, eval: eval, trainer: trainer, pinger: pinger}
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/evaluate", s.handleEvaluate)
	mux.HandleFunc("/learn/spam", s.handleLearn(learning.LabelSpam))
	mux.HandleFunc("/learn/ham", s.handleLearn(learning.LabelHam))
	mux.HandleFunc("/learn/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout,
	}
	s.started = true
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("api server failed")
		}
	}()
	s.getLogEntry().WithField("addr", s.addr).Info("api server listening")
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, errors.Wrap(apperrors.ErrInvalidInput, err.Error()).Error(), http.StatusBadRequest)
		return
	}

	var ts time.Time
	if req.Timestamp > 0 {
		ts = time.Unix(req.Timestamp, 0)
	}
	result := s.eval.Evaluate(r.Context(), req.UserID, req.ChatID, req.MessageID, req.Text, ts)

	writeJSON(w, http.StatusOK, EvaluateResponse{
		Decision:   string(result.Decision),
		Tier:       result.Tier.String(),
		Score:      result.Score,
		Reputation: result.Reputation,
		Signals:    result.Signals,
		Ignored:    result.Ignored,
	})
}

func (s *Server) handleLearn(label learning.Label) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.trainer == nil {
			http.Error(w, "learning disabled", http.StatusServiceUnavailable)
			return
		}
		var req learnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, errors.Wrap(apperrors.ErrInvalidInput, err.Error()).Error(), http.StatusBadRequest)
			return
		}
		if err := s.trainer.Learn(r.Context(), req.MessageID, label, req.Text); err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, apperrors.ErrInvalidInput) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.trainer == nil {
		http.Error(w, "learning disabled", http.StatusServiceUnavailable)
		return
	}
	stats, err := s.trainer.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("cant write response")
	}
}

func (s *Server) getLogEntry() *log.Entry {
	return log.WithField("object", "Server")
}
