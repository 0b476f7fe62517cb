package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		RedisURL:     "redis://127.0.0.1:6379/0",
		StoreTimeout: time.Second,
		Thresholds: Thresholds{
			Flood:       30,
			FloodWindow: time.Minute,
			Repeat:      6,
			Suspicious:  10,
			Ban:         20,
			PermBan:     3,
			BanTTL:      time.Hour,
			WarnScore:   5,
			DeleteScore: 10,
			BanScore:    15,
		},
		Learning: Learning{MinSpam: 200, MinHam: 200, DedupTTL: 24 * time.Hour},
		Decay:    Decay{Interval: time.Hour, Amount: 1},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero flood threshold", mutate: func(c *Config) { c.Thresholds.Flood = 0 }},
		{name: "negative flood window", mutate: func(c *Config) { c.Thresholds.FloodWindow = -time.Second }},
		{name: "zero repeat threshold", mutate: func(c *Config) { c.Thresholds.Repeat = 0 }},
		{name: "zero perm ban threshold", mutate: func(c *Config) { c.Thresholds.PermBan = 0 }},
		{name: "suspicious above ban", mutate: func(c *Config) { c.Thresholds.Suspicious = 25 }},
		{name: "suspicious equal to ban", mutate: func(c *Config) { c.Thresholds.Suspicious = 20 }},
		{name: "zero ban ttl", mutate: func(c *Config) { c.Thresholds.BanTTL = 0 }},
		{name: "warn above delete", mutate: func(c *Config) { c.Thresholds.WarnScore = 11 }},
		{name: "delete above ban score", mutate: func(c *Config) { c.Thresholds.DeleteScore = 16 }},
		{name: "zero learning minimum", mutate: func(c *Config) { c.Learning.MinHam = 0 }},
		{name: "zero dedup ttl", mutate: func(c *Config) { c.Learning.DedupTTL = 0 }},
		{name: "zero decay amount", mutate: func(c *Config) { c.Decay.Amount = 0 }},
		{name: "zero store timeout", mutate: func(c *Config) { c.StoreTimeout = 0 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestLoadWeightsWithoutFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	defaults := map[string]float64{"TG_FLOOD": 3, "TG_CAPS": 1}
	weights, err := cfg.LoadWeights(defaults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if weights["TG_FLOOD"] != 3 || weights["TG_CAPS"] != 1 {
		t.Fatalf("weights = %v, want the defaults untouched", weights)
	}

	// The returned table is a copy; mutating it must not leak back.
	weights["TG_FLOOD"] = 99
	if defaults["TG_FLOOD"] != 3 {
		t.Fatal("defaults mutated through the returned table")
	}
}

func TestLoadWeightsOverlaysFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "weights.yml")
	if err := os.WriteFile(path, []byte("TG_FLOOD: 7.5\nTG_GIBBERISH: 0.1\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := validConfig()
	cfg.WeightsFile = path
	weights, err := cfg.LoadWeights(map[string]float64{"TG_FLOOD": 3, "TG_CAPS": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if weights["TG_FLOOD"] != 7.5 {
		t.Fatalf("TG_FLOOD = %v, want the file override 7.5", weights["TG_FLOOD"])
	}
	if weights["TG_CAPS"] != 1 {
		t.Fatalf("TG_CAPS = %v, want the default kept", weights["TG_CAPS"])
	}
	if weights["TG_GIBBERISH"] != 0.1 {
		t.Fatalf("TG_GIBBERISH = %v, want the new entry added", weights["TG_GIBBERISH"])
	}
}

func TestLoadWeightsRejectsMissingFile(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.WeightsFile = filepath.Join(t.TempDir(), "absent.yml")
	if _, err := cfg.LoadWeights(nil); err == nil {
		t.Fatal("expected an error for a missing weights file")
	}
}
