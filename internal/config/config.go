package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

type (
	Config struct {
		RedisURL     string `env:"REDIS_URL,default=redis://127.0.0.1:6379/0"`
		ListenAddr   string `env:"LISTEN_ADDR,default=:8080"`
		MetricsAddr  string `env:"METRICS_ADDR,default=:2112"`
		LogLevel     int    `env:"LOG_LEVEL,default=4"`
		DotPath      string `env:"DOT_PATH,default=~/.modcore"`
		WeightsFile  string `env:"WEIGHTS_FILE"`
		AuditDBPath  string `env:"AUDIT_DB_PATH,default=audit.db"`
		StoreTimeout time.Duration `env:"STORE_TIMEOUT,default=1s"`

		Thresholds Thresholds
		Classifier Classifier
		Learning   Learning
		Decay      Decay
	}

	Thresholds struct {
		Flood       int           `env:"FLOOD_THRESHOLD,default=30"`
		FloodWindow time.Duration `env:"FLOOD_WINDOW,default=1m"`
		Repeat      int           `env:"REPEAT_THRESHOLD,default=6"`
		Suspicious  int           `env:"SUSPICIOUS_THRESHOLD,default=10"`
		Ban         int           `env:"BAN_THRESHOLD,default=20"`
		PermBan     int           `env:"PERM_BAN_THRESHOLD,default=3"`
		BanTTL      time.Duration `env:"BAN_TTL,default=1h"`

		WarnScore   float64 `env:"WARN_SCORE,default=5"`
		DeleteScore float64 `env:"DELETE_SCORE,default=10"`
		BanScore    float64 `env:"BAN_SCORE,default=15"`
	}

	Classifier struct {
		BaseURL  string        `env:"CLASSIFIER_URL,default=http://127.0.0.1:11333"`
		Password string        `env:"CLASSIFIER_PASSWORD"`
		Timeout  time.Duration `env:"CLASSIFIER_TIMEOUT,default=10s"`
	}

	Learning struct {
		MinSpam  int           `env:"LEARN_MIN_SPAM,default=200"`
		MinHam   int           `env:"LEARN_MIN_HAM,default=200"`
		DedupTTL time.Duration `env:"LEARN_DEDUP_TTL,default=24h"`
	}

	Decay struct {
		Interval time.Duration `env:"DECAY_INTERVAL,default=1h"`
		Amount   int           `env:"DECAY_AMOUNT,default=1"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("MOD_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		dotPath, err := homedir.Expand(cfg.DotPath)
		if err != nil {
			globalErr = fmt.Errorf("expand dot path: %w", err)
			return
		}
		cfg.DotPath = dotPath
		if !filepath.IsAbs(cfg.AuditDBPath) {
			cfg.AuditDBPath = filepath.Join(cfg.DotPath, cfg.AuditDBPath)
		}
		if err := cfg.Validate(); err != nil {
			globalErr = err
			return
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}

// Validate rejects threshold combinations the pipeline cannot start with.
func (c *Config) Validate() error {
	t := c.Thresholds
	switch {
	case t.Flood <= 0:
		return fmt.Errorf("configuration: flood threshold must be positive, got %d", t.Flood)
	case t.FloodWindow <= 0:
		return fmt.Errorf("configuration: flood window must be positive, got %s", t.FloodWindow)
	case t.Repeat <= 0:
		return fmt.Errorf("configuration: repeat threshold must be positive, got %d", t.Repeat)
	case t.PermBan <= 0:
		return fmt.Errorf("configuration: perm ban threshold must be positive, got %d", t.PermBan)
	case t.Suspicious >= t.Ban:
		return fmt.Errorf("configuration: suspicious threshold %d must be below ban threshold %d", t.Suspicious, t.Ban)
	case t.BanTTL <= 0:
		return fmt.Errorf("configuration: ban ttl must be positive, got %s", t.BanTTL)
	case t.WarnScore >= t.DeleteScore || t.DeleteScore >= t.BanScore:
		return fmt.Errorf("configuration: score tiers must be ascending, got warn=%v delete=%v ban=%v", t.WarnScore, t.DeleteScore, t.BanScore)
	}
	if c.Learning.MinSpam <= 0 || c.Learning.MinHam <= 0 {
		return fmt.Errorf("configuration: learning minimums must be positive, got spam=%d ham=%d", c.Learning.MinSpam, c.Learning.MinHam)
	}
	if c.Learning.DedupTTL <= 0 {
		return fmt.Errorf("configuration: learning dedup ttl must be positive, got %s", c.Learning.DedupTTL)
	}
	if c.Decay.Interval <= 0 || c.Decay.Amount <= 0 {
		return fmt.Errorf("configuration: decay interval and amount must be positive, got %s/%d", c.Decay.Interval, c.Decay.Amount)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("configuration: store timeout must be positive, got %s", c.StoreTimeout)
	}
	return nil
}

// LoadWeights returns the signal weight table, overlaying the optional YAML
// override file on top of the passed defaults.
func (c *Config) LoadWeights(defaults map[string]float64) (map[string]float64, error) {
	weights := make(map[string]float64, len(defaults))
	for name, weight := range defaults {
		weights[name] = weight
	}
	if c.WeightsFile == "" {
		return weights, nil
	}
	path := c.WeightsFile
	if strings.HasPrefix(path, "~") {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("expand weights file path: %w", err)
		}
		path = expanded
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights file: %w", err)
	}
	overrides := map[string]float64{}
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse weights file: %w", err)
	}
	for name, weight := range overrides {
		weights[name] = weight
	}
	return weights, nil
}
