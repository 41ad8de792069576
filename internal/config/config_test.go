package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// chdir keeps a stray ./config.* in the working directory out of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(prev)
	})
}

func TestLoadPoolFromFlagsAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AMMPOOL_ASSET_B", "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	t.Setenv("AMMPOOL_RETRY_BACKOFF", "2s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("asset-a", "", "")
	flags.String("ledger", LedgerMemory, "")
	if err := flags.Parse([]string{"--asset-a", " 0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa "}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AssetA != "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" || cfg.AssetB != "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb" {
		t.Fatalf("assets mismatch: %+v", cfg)
	}
	if cfg.RetryBackoff != 2*time.Second || cfg.MaxRetries != 5 || cfg.Ledger != LedgerMemory {
		t.Fatalf("defaults mismatch: %+v", cfg)
	}
}

func TestLoadPoolRejectsLedger(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("AMMPOOL_LEDGER", "postgres")
	if _, err := Load("", nil); err == nil {
		t.Fatalf("expected error for postgres ledger without dsn")
	}

	t.Setenv("AMMPOOL_LEDGER", "redis")
	if _, err := Load("", nil); err == nil {
		t.Fatalf("expected error for unknown ledger")
	}
}

func TestLoadReplayFromFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "ammpool.yaml")
	content := "in: ops.jsonl\nbatch-size: 7\nstop-on-error: true\nstate-file: state.json\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadReplay(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.In != "ops.jsonl" || cfg.BatchSize != 7 || !cfg.StopOnError || cfg.StateFile != "state.json" {
		t.Fatalf("replay config mismatch: %+v", cfg)
	}
	if !cfg.CheckpointEnabled || cfg.Checkpoint == "" {
		t.Fatalf("checkpoint defaults mismatch: %+v", cfg)
	}
}

func TestLoadDecodePools(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AMMPOOL_POOLS", "0xa=0xb, 0xc = 0xd ,broken")

	cfg, err := LoadDecode("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Pools) != 2 || cfg.Pools["0xa"] != "0xb" || cfg.Pools["0xc"] != "0xd" {
		t.Fatalf("pools mismatch: %+v", cfg.Pools)
	}
}

func TestAggregateWindowAndTimestamp(t *testing.T) {
	cases := []struct {
		window  string
		want    uint64
		wantErr bool
	}{
		{"5m", 300, false},
		{"1h", 3600, false},
		{"500ms", 0, true},
		{"-1m", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.window, func(t *testing.T) {
			got, err := AggregateConfig{Window: tc.window}.WindowSeconds()
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("window = %d, %v; want %d", got, err, tc.want)
			}
		})
	}

	ts, err := ParseTimestamp("2023-11-14T22:13:20Z")
	if err != nil || ts != 1700000000 {
		t.Fatalf("rfc3339 = %d, %v", ts, err)
	}
	ts, err = ParseTimestamp("1700000000")
	if err != nil || ts != 1700000000 {
		t.Fatalf("unix = %d, %v", ts, err)
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for bad timestamp")
	}
}
