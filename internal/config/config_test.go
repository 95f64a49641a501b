package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.SQLiteDBPath != "./data/skarbnik.db" {
		t.Errorf("SQLiteDBPath = %q", cfg.SQLiteDBPath)
	}
	if cfg.TimeZone != "Europe/Warsaw" {
		t.Errorf("TimeZone = %q", cfg.TimeZone)
	}
	if cfg.OverdueMinAge != 35*24*time.Hour {
		t.Errorf("OverdueMinAge = %v", cfg.OverdueMinAge)
	}
	if cfg.PostponeInterval != 77*time.Hour {
		t.Errorf("PostponeInterval = %v", cfg.PostponeInterval)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("OVERDUE_MIN_AGE", "840h")
	t.Setenv("AMQP_INGEST_QUEUE", "transactions-test")

	cfg := Load()
	if cfg.TimeZone != "UTC" {
		t.Errorf("TimeZone = %q, want UTC", cfg.TimeZone)
	}
	if cfg.OverdueMinAge != 840*time.Hour {
		t.Errorf("OverdueMinAge = %v, want 840h", cfg.OverdueMinAge)
	}
	if cfg.IngestQueue != "transactions-test" {
		t.Errorf("IngestQueue = %q", cfg.IngestQueue)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad time zone",
			mutate:  func(c *Config) { c.TimeZone = "Mars/Olympus" },
			wantErr: "invalid time zone",
		},
		{
			name:    "bad AMQP scheme",
			mutate:  func(c *Config) { c.AMQPURL = "http://localhost" },
			wantErr: "invalid AMQP URL scheme",
		},
		{
			name:    "overdue window inverted",
			mutate:  func(c *Config) { c.OverdueMaxAge = c.OverdueMinAge },
			wantErr: "overdue maximum age",
		},
		{
			name:    "missing queue with AMQP configured",
			mutate:  func(c *Config) { c.IngestQueue = "" },
			wantErr: "ingest queue",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			cfg.SQLiteDBPath = filepath.Join(t.TempDir(), "skarbnik.db")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	content := `{
		"category_rules": [
			{"pattern": "czynsz", "label": "Czynsz"},
			{"pattern": "czynsz.*kaucja", "label": "Kaucje"}
		],
		"account_labels": {"acc-org": "Konto stowarzyszenia"},
		"corrections": {
			"by_account_label": {"Konto stowarzyszenia": -727.53},
			"monthly_income": {"2020-04": {"Suma": 200.0}}
		},
		"reservations": [
			{"label": "czynsz", "start_date": "2020-11-24", "amount": 200.0}
		]
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	rules, err := LoadRules(path, time.UTC)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	if len(rules.CategoryRules) != 2 {
		t.Fatalf("got %d category rules, want 2", len(rules.CategoryRules))
	}
	// Order must survive parsing: first match wins downstream.
	if rules.CategoryRules[0].Label != "Czynsz" || rules.CategoryRules[1].Label != "Kaucje" {
		t.Errorf("rule order = %q, %q", rules.CategoryRules[0].Label, rules.CategoryRules[1].Label)
	}
	if rules.AccountLabels["acc-org"] != "Konto stowarzyszenia" {
		t.Errorf("account labels = %v", rules.AccountLabels)
	}
	if got := rules.Corrections.ByAccountLabel["Konto stowarzyszenia"].Cents; got != -72753 {
		t.Errorf("account correction = %d, want -72753", got)
	}
	if len(rules.Reservations) != 1 || rules.Reservations[0].Amount.Cents != 20000 {
		t.Errorf("reservations = %+v", rules.Reservations)
	}
	want := time.Date(2020, 11, 24, 0, 0, 0, 0, time.UTC)
	if !rules.Reservations[0].StartDate.Equal(want) {
		t.Errorf("reservation start = %v, want %v", rules.Reservations[0].StartDate, want)
	}

	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.json"), time.UTC); err == nil {
		t.Fatal("LoadRules on missing file: want error")
	}
}
