package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/modcore/internal/audit"
	"github.com/iamwavecut/modcore/internal/classify"
	"github.com/iamwavecut/modcore/internal/config"
	"github.com/iamwavecut/modcore/internal/detect"
	"github.com/iamwavecut/modcore/internal/escalation"
	"github.com/iamwavecut/modcore/internal/event"
	"github.com/iamwavecut/modcore/internal/features"
	"github.com/iamwavecut/modcore/internal/infra"
	"github.com/iamwavecut/modcore/internal/learning"
	"github.com/iamwavecut/modcore/internal/lifecycle"
	"github.com/iamwavecut/modcore/internal/observability"
	"github.com/iamwavecut/modcore/internal/pipeline"
	"github.com/iamwavecut/modcore/internal/reputation"
	"github.com/iamwavecut/modcore/internal/server"
	"github.com/iamwavecut/modcore/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetFormatter(&config.McFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := observability.Init(ctx); err != nil {
		log.WithError(err).Fatalln("cant initialize observability")
	}

	st, err := store.NewClient(cfg.RedisURL, cfg.StoreTimeout)
	if err != nil {
		log.WithError(err).Fatalln("cant initialize key value store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Errorln("cant close key value store")
		}
	}()
	if err := st.Ping(ctx); err != nil {
		log.WithError(err).Errorln("key value store unreachable")
		time.Sleep(1 * time.Second)
		log.Fatalln("exiting")
	}

	weights, err := cfg.LoadWeights(detect.DefaultWeights())
	if err != nil {
		log.WithError(err).Fatalln("cant load signal weights")
	}

	oracle := classify.NewClient(cfg.Classifier)

	gate := features.NewGate(st)
	if err := gate.SeedDefaults(ctx); err != nil {
		log.WithError(err).Errorln("cant seed default features")
	}

	reps := reputation.NewStore(st)
	limiter := detect.NewRateLimiter(st, cfg.Thresholds, weights)
	engine := escalation.NewEngine(st, reps, cfg.Thresholds, weights)
	coordinator := learning.NewCoordinator(st, oracle, cfg.Learning)

	auditDB, err := audit.NewSQLiteClient(cfg.AuditDBPath)
	if err != nil {
		log.WithError(err).Fatalln("cant initialize audit store")
	}
	defer func() {
		if err := auditDB.Close(); err != nil {
			log.WithError(err).Errorln("cant close audit store")
		}
	}()

	worker := event.NewWorker()
	writer := audit.NewWriter(auditDB, worker)

	pipe := pipeline.New(limiter, oracle, engine, gate, st, cfg.Thresholds, weights).
		WithLearner(coordinator).
		WithRecorder(writer)

	runtime := lifecycle.NewRuntime(
		worker,
		writer,
		reputation.NewSweeper(reps, cfg.Decay),
		observability.NewMetricsServer(cfg.MetricsAddr),
		server.New(cfg.ListenAddr, pipe, coordinator, st),
	)
	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start components")
	}
	log.Infoln("moderation core started")

	select {
	case <-ctx.Done():
		log.Infoln("shutdown signal received")
	case <-infra.MonitorExecutable(ctx):
		log.Errorln("executable file was modified")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := runtime.Stop(stopCtx); err != nil {
		log.WithError(err).Errorln("cant stop components cleanly")
	}
}
