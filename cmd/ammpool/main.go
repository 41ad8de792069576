package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "ammpool",
		Short:        "Two-asset constant-product pool",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(
		poolCommand(&cobra.Command{
			Use:   "init",
			Short: "Create an empty pool for asset-a/asset-b",
			Args:  cobra.NoArgs,
			RunE:  runInit,
		}),
		poolCommand(&cobra.Command{
			Use:   "fund <account> <a|b|asset> <amount>",
			Short: "Credit a ledger balance to an account",
			Args:  cobra.ExactArgs(3),
			RunE:  runFund,
		}),
		poolCommand(&cobra.Command{
			Use:   "add <provider> <amount-a> <amount-b>",
			Short: "Deposit both assets and mint pool shares",
			Args:  cobra.ExactArgs(3),
			RunE:  runAdd,
		}),
		poolCommand(&cobra.Command{
			Use:   "remove <provider> <shares>",
			Short: "Burn pool shares and withdraw both assets",
			Args:  cobra.ExactArgs(2),
			RunE:  runRemove,
		}),
		poolCommand(&cobra.Command{
			Use:   "swap <a-for-b|b-for-a> <trader> <amount-in>",
			Short: "Swap an exact input amount of one asset for the other",
			Args:  cobra.ExactArgs(3),
			RunE:  runSwap,
		}),
		poolCommand(&cobra.Command{
			Use:   "quote <a-for-b|b-for-a> <amount-in>",
			Short: "Quote the output of a swap without executing it",
			Args:  cobra.ExactArgs(2),
			RunE:  runQuote,
		}),
		poolCommand(&cobra.Command{
			Use:   "price",
			Short: "Print the spot price of asset A in units of asset B, scaled by 1e18",
			Args:  cobra.NoArgs,
			RunE:  runPrice,
		}),
		poolCommand(&cobra.Command{
			Use:   "reserves",
			Short: "Print pool reserves, total shares and nonce",
			Args:  cobra.NoArgs,
			RunE:  runReserves,
		}),
		poolCommand(&cobra.Command{
			Use:   "shares <owner>",
			Short: "Print the share balance of an owner",
			Args:  cobra.ExactArgs(1),
			RunE:  runShares,
		}),
		poolCommand(&cobra.Command{
			Use:   "balance <account> <a|b|asset>",
			Short: "Print the ledger balance of an account",
			Args:  cobra.ExactArgs(2),
			RunE:  runBalance,
		}),
		replayCommand(),
		decodeCommand(),
		aggregateCommand(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// poolCommand adds the flags shared by every command that opens the pool.
func poolCommand(cmd *cobra.Command) *cobra.Command {
	addPoolFlags(cmd.Flags())
	return cmd
}

func addPoolFlags(flags *pflag.FlagSet) {
	flags.String("asset-a", "", "asset A address")
	flags.String("asset-b", "", "asset B address")
	flags.String("state-file", "./data/pool.json", "pool state file (memory ledger)")
	flags.String("pg-dsn", "", "Postgres DSN (postgres ledger)")
	flags.String("ledger", "memory", "ledger backend (memory, postgres)")
	flags.String("events", "./data/events.jsonl", "event log JSONL path, empty to disable")
	flags.Int("max-retries", 5, "maximum retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
