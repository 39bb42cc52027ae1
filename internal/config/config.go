package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "STAKEPOOL"

// ReplayConfig holds settings for the replay command.
type ReplayConfig struct {
	Input        string
	Journal      string
	Failures     string
	Snapshot     string
	SnapshotName string
	PGDSN        string
	BatchSize    int
	MaxRetries   int
	RetryBackoff time.Duration
	MetricsAddr  string
	RPCURL       string
	ChainID      uint64
	Token        string
	CustodyKeys  []string
	GasLimit     uint64
	PollInterval time.Duration
	LogLevel     string
}

// InspectConfig holds settings for the inspect command.
type InspectConfig struct {
	Snapshot     string
	SnapshotName string
	PGDSN        string
	At           string
	Pools        []string
	RPCURL       string
	Token        string
	LogLevel     string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"journal":       "./data/events.jsonl",
		"failures":      "./data/failures.jsonl",
		"snapshot":      "./data/snapshot.json",
		"snapshot-name": "default",
		"batch-size":    1000,
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"gas-limit":     uint64(100_000),
		"poll-interval": time.Second,
		"log-level":     "info",
	})
	if err != nil {
		return ReplayConfig{}, err
	}

	cfg := ReplayConfig{
		Input:        v.GetString("in"),
		Journal:      v.GetString("journal"),
		Failures:     v.GetString("failures"),
		Snapshot:     v.GetString("snapshot"),
		SnapshotName: v.GetString("snapshot-name"),
		PGDSN:        v.GetString("pg-dsn"),
		BatchSize:    v.GetInt("batch-size"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		MetricsAddr:  v.GetString("metrics-addr"),
		RPCURL:       v.GetString("rpc"),
		ChainID:      v.GetUint64("chain-id"),
		Token:        v.GetString("token"),
		CustodyKeys:  getStringSlice(v, "custody-key"),
		GasLimit:     v.GetUint64("gas-limit"),
		PollInterval: v.GetDuration("poll-interval"),
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.BatchSize <= 0 {
		return ReplayConfig{}, fmt.Errorf("batch size must be greater than zero")
	}
	return cfg, nil
}

// LoadInspect merges config file, environment variables, and flags into InspectConfig.
func LoadInspect(cfgFile string, flags *pflag.FlagSet) (InspectConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"snapshot":      "./data/snapshot.json",
		"snapshot-name": "default",
		"log-level":     "info",
	})
	if err != nil {
		return InspectConfig{}, err
	}

	return InspectConfig{
		Snapshot:     v.GetString("snapshot"),
		SnapshotName: v.GetString("snapshot-name"),
		PGDSN:        v.GetString("pg-dsn"),
		At:           v.GetString("at"),
		Pools:        getStringSlice(v, "pool"),
		RPCURL:       v.GetString("rpc"),
		Token:        v.GetString("token"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}

func load(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339). An
// empty input returns ok=false.
func ParseTimestamp(input string) (int64, bool, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, false, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return 0, false, err
		}
		return val, true, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, false, err
	}
	return tm.Unix(), true, nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
