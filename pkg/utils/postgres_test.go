package utils

import "testing"

func TestPostgresPoolDefaults(t *testing.T) {
	cfg := PostgresPoolConfig{}.withDefaults()
	if cfg.MaxOpenConns <= 0 || cfg.ConnMaxLifetime <= 0 || cfg.PingTimeout <= 0 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestPostgresPoolDefaultsKeepExplicitValues(t *testing.T) {
	cfg := PostgresPoolConfig{MaxOpenConns: 5}.withDefaults()
	if cfg.MaxOpenConns != 5 {
		t.Fatalf("explicit value overwritten: %d", cfg.MaxOpenConns)
	}
}
