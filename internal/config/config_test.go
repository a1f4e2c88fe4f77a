package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_WRITER_SECRET", "")
	t.Setenv("POLL_WAIT_TIME", "")
	t.Setenv("SCHEDULER_MAX_ROUNDS", "")

	cfg := Load()
	if cfg.Port != "8008" {
		t.Errorf("Port = %q, want 8008", cfg.Port)
	}
	if cfg.SchedulerMaxRound != 64 {
		t.Errorf("SchedulerMaxRound = %d, want 64", cfg.SchedulerMaxRound)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %s, want 30s", cfg.PollInterval)
	}
	if cfg.Writer.Port != 5432 || cfg.Writer.Host != "localhost" {
		t.Errorf("Writer = %+v, want localhost:5432", cfg.Writer)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadWriterSecret(t *testing.T) {
	t.Setenv("DB_WRITER_SECRET", `{"host":"db.internal","port":6543,"dbname":"geo","username":"writer","password":"s3cret"}`)
	t.Setenv("DB_USER", "override")

	cfg := Load()
	want := DBSecret{Host: "db.internal", Port: 6543, DBName: "geo", Username: "override", Password: "s3cret"}
	if cfg.Writer != want {
		t.Errorf("Writer = %+v, want %+v", cfg.Writer, want)
	}
}

func TestPollIntervalFormats(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"45s", 45 * time.Second},
		{"2", 2 * time.Second},
		{"soon", 30 * time.Second},
	}
	for _, tt := range tests {
		t.Setenv("POLL_WAIT_TIME", tt.value)
		if got := Load().PollInterval; got != tt.want {
			t.Errorf("POLL_WAIT_TIME=%q: PollInterval = %s, want %s", tt.value, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"chunk size", func(c *Config) { c.ChunkSize = 0 }},
		{"round cap", func(c *Config) { c.SchedulerMaxRound = -1 }},
		{"poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"poll cycles", func(c *Config) { c.PollCyclesPerRun = 0 }},
		{"driver", func(c *Config) { c.DatabaseDriver = "mysql" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() succeeded, want error")
			}
		})
	}
}
