package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadReplayDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := LoadReplay("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 1000 || cfg.MaxRetries != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RetryBackoff != 500*time.Millisecond {
		t.Fatalf("unexpected backoff: %s", cfg.RetryBackoff)
	}
	if cfg.Snapshot != "./data/snapshot.json" || cfg.SnapshotName != "default" {
		t.Fatalf("unexpected snapshot settings: %+v", cfg)
	}
}

func TestLoadReplayPrecedence(t *testing.T) {
	dir := chdirTemp(t)
	cfgFile := filepath.Join(dir, "stakepool.yaml")
	body := "in: ops.jsonl\nbatch-size: 50\ncustody-key: a, b\n"
	if err := os.WriteFile(cfgFile, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STAKEPOOL_BATCH_SIZE", "25")

	flags := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	flags.String("in", "", "")
	if err := flags.Parse([]string{"--in", "cli.jsonl"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadReplay(cfgFile, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Input != "cli.jsonl" {
		t.Fatalf("flag should win, got %q", cfg.Input)
	}
	if cfg.BatchSize != 25 {
		t.Fatalf("env should beat config file, got %d", cfg.BatchSize)
	}
	if len(cfg.CustodyKeys) != 2 || cfg.CustodyKeys[1] != "b" {
		t.Fatalf("unexpected custody keys: %v", cfg.CustodyKeys)
	}
}

func TestLoadReplayRejectsZeroBatch(t *testing.T) {
	chdirTemp(t)
	t.Setenv("STAKEPOOL_BATCH_SIZE", "0")
	if _, err := LoadReplay("", nil); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}

func TestParseTimestamp(t *testing.T) {
	if _, ok, err := ParseTimestamp(" "); err != nil || ok {
		t.Fatalf("empty input: ok=%v err=%v", ok, err)
	}
	ts, ok, err := ParseTimestamp("604800")
	if err != nil || !ok || ts != 604800 {
		t.Fatalf("unix input: ts=%d ok=%v err=%v", ts, ok, err)
	}
	ts, ok, err = ParseTimestamp("2024-01-01T00:00:00Z")
	if err != nil || !ok || ts != 1704067200 {
		t.Fatalf("rfc3339 input: ts=%d ok=%v err=%v", ts, ok, err)
	}
	if _, _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected parse error")
	}
}
