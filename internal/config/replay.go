package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ReplayConfig holds configuration for the replay command.
type ReplayConfig struct {
	PoolConfig
	In                string
	BatchSize         uint64
	Checkpoint        string
	CheckpointEnabled bool
	StopOnError       bool
	Results           string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		setPoolDefaults(v)
		v.SetDefault("batch-size", uint64(100))
		v.SetDefault("checkpoint", "./data/replay_checkpoint.json")
		v.SetDefault("checkpoint-enabled", true)
		v.SetDefault("stop-on-error", false)
		v.SetDefault("results", "./data/replay_results.jsonl")
	})
	if err != nil {
		return ReplayConfig{}, err
	}

	pool, err := poolConfig(v)
	if err != nil {
		return ReplayConfig{}, err
	}

	return ReplayConfig{
		PoolConfig:        pool,
		In:                v.GetString("in"),
		BatchSize:         v.GetUint64("batch-size"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		StopOnError:       v.GetBool("stop-on-error"),
		Results:           v.GetString("results"),
	}, nil
}
