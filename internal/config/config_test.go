package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Name != "stock-ledger" {
		t.Errorf("App.Name = %q, want stock-ledger", cfg.App.Name)
	}
	if cfg.Inventory.MaxRetryAttempts != 3 {
		t.Errorf("MaxRetryAttempts = %d, want 3", cfg.Inventory.MaxRetryAttempts)
	}
	if cfg.Inventory.ReserveRateAlgorithm != "token_bucket" {
		t.Errorf("ReserveRateAlgorithm = %q, want token_bucket", cfg.Inventory.ReserveRateAlgorithm)
	}
}

func TestLoad_ReserveRateAlgorithmFromEnv(t *testing.T) {
	t.Setenv("INVENTORY_RESERVE_RATE_ALGORITHM", "sliding_window")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Inventory.ReserveRateAlgorithm != "sliding_window" {
		t.Errorf("ReserveRateAlgorithm = %q, want sliding_window", cfg.Inventory.ReserveRateAlgorithm)
	}
}

func TestLoad_RejectsUnknownReserveRateAlgorithm(t *testing.T) {
	t.Setenv("INVENTORY_RESERVE_RATE_ALGORITHM", "leaky_bucket")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for unknown rate limit algorithm")
	}
}

func TestLoad_RejectsInvalidEnv(t *testing.T) {
	t.Setenv("APP_ENV", "staging")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for unknown APP_ENV")
	}
}
