package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "AMMPOOL"

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerPostgres = "postgres"
)

// PoolConfig holds the settings every pool command needs.
type PoolConfig struct {
	AssetA       string
	AssetB       string
	StateFile    string
	PGDSN        string
	Ledger       string
	Events       string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// Load merges config file, environment variables, and flags into PoolConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (PoolConfig, error) {
	v, err := newViper(cfgFile, flags, setPoolDefaults)
	if err != nil {
		return PoolConfig{}, err
	}
	return poolConfig(v)
}

func setPoolDefaults(v *viper.Viper) {
	v.SetDefault("state-file", "./data/pool.json")
	v.SetDefault("ledger", LedgerMemory)
	v.SetDefault("events", "./data/events.jsonl")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")
}

func poolConfig(v *viper.Viper) (PoolConfig, error) {
	cfg := PoolConfig{
		AssetA:       strings.TrimSpace(v.GetString("asset-a")),
		AssetB:       strings.TrimSpace(v.GetString("asset-b")),
		StateFile:    v.GetString("state-file"),
		PGDSN:        v.GetString("pg-dsn"),
		Ledger:       strings.ToLower(strings.TrimSpace(v.GetString("ledger"))),
		Events:       v.GetString("events"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}

	switch cfg.Ledger {
	case LedgerMemory:
		if cfg.StateFile == "" {
			return PoolConfig{}, fmt.Errorf("state-file is required with the memory ledger")
		}
	case LedgerPostgres:
		if cfg.PGDSN == "" {
			return PoolConfig{}, fmt.Errorf("pg-dsn is required with the postgres ledger")
		}
	default:
		return PoolConfig{}, fmt.Errorf("unknown ledger %q (want %s or %s)", cfg.Ledger, LedgerMemory, LedgerPostgres)
	}

	return cfg, nil
}

// newViper builds a viper instance reading AMMPOOL_* env, flags and an
// optional config file.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if defaults != nil {
		defaults(v)
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
