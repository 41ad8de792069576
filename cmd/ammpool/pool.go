package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammPool/internal/amm"
	"ammPool/internal/config"
	"ammPool/internal/model"
	"ammPool/internal/replay"
)

// withPool loads config, opens the pool and runs fn against it.
func withPool(cmd *cobra.Command, mode openMode, fn func(ctx context.Context, env *poolEnv) error) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := openPool(ctx, cfg, logger, mode)
	if err != nil {
		return err
	}
	defer env.Close()

	logger.Debug("pool open",
		zap.String("pool", env.pool.Address().Hex()),
		zap.String("ledger", cfg.Ledger),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("nonce", env.pool.Nonce()),
	)

	return fn(ctx, env)
}

// applyAndSave runs one operation, persists the pool and prints the result.
// Events of the operation are written only after the pool is saved.
func applyAndSave(cmd *cobra.Command, op model.Operation) error {
	return withPool(cmd, openExisting, func(ctx context.Context, env *poolEnv) error {
		result, err := env.apply(ctx, op)
		if err != nil {
			env.logger.Warn("operation rejected", zap.String("op", op.Op), zap.String("account", op.Account), zap.Error(err))
			return err
		}
		if err := env.save(ctx); err != nil {
			return fmt.Errorf("save pool state: %w", err)
		}
		env.logger.Info("operation applied", zap.String("op", op.Op), zap.Uint64("nonce", result.Nonce))
		return printJSON(cmd.OutOrStdout(), result)
	})
}

func runInit(cmd *cobra.Command, _ []string) error {
	return withPool(cmd, openNew, func(ctx context.Context, env *poolEnv) error {
		if err := env.save(ctx); err != nil {
			return fmt.Errorf("save pool state: %w", err)
		}
		env.logger.Info("pool created", zap.String("pool", env.pool.Address().Hex()))
		return printJSON(cmd.OutOrStdout(), reservesView(env.pool))
	})
}

func runFund(cmd *cobra.Command, args []string) error {
	return applyAndSave(cmd, model.Operation{Op: model.OpFund, Account: args[0], Asset: args[1], Amount: args[2]})
}

func runAdd(cmd *cobra.Command, args []string) error {
	return applyAndSave(cmd, model.Operation{Op: model.OpAdd, Account: args[0], AmountA: args[1], AmountB: args[2]})
}

func runRemove(cmd *cobra.Command, args []string) error {
	return applyAndSave(cmd, model.Operation{Op: model.OpRemove, Account: args[0], Shares: args[1]})
}

func runSwap(cmd *cobra.Command, args []string) error {
	op, err := swapOp(args[0])
	if err != nil {
		return err
	}
	return applyAndSave(cmd, model.Operation{Op: op, Account: args[1], Amount: args[2]})
}

func runQuote(cmd *cobra.Command, args []string) error {
	op, err := swapOp(args[0])
	if err != nil {
		return err
	}
	amountIn, err := amm.ParseAmount(args[1])
	if err != nil {
		return err
	}
	return withPool(cmd, openExisting, func(_ context.Context, env *poolEnv) error {
		reserveA, reserveB := env.pool.Reserves()
		reserveIn, reserveOut := reserveA, reserveB
		if op == model.OpSwapBForA {
			reserveIn, reserveOut = reserveB, reserveA
		}
		amountOut, err := amm.QuoteOutput(amountIn, reserveIn, reserveOut)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]string{
			"direction":  args[0],
			"amount_in":  amm.FormatAmount(amountIn),
			"amount_out": amm.FormatAmount(amountOut),
		})
	})
}

func runPrice(cmd *cobra.Command, _ []string) error {
	return withPool(cmd, openExisting, func(_ context.Context, env *poolEnv) error {
		price, err := env.pool.Price()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]string{
			"price": amm.FormatAmount(price),
			"scale": amm.FormatAmount(amm.PricePrecision),
		})
	})
}

func runReserves(cmd *cobra.Command, _ []string) error {
	return withPool(cmd, openExisting, func(_ context.Context, env *poolEnv) error {
		return printJSON(cmd.OutOrStdout(), reservesView(env.pool))
	})
}

func runShares(cmd *cobra.Command, args []string) error {
	owner, err := amm.ParseAddress(args[0])
	if err != nil {
		return err
	}
	return withPool(cmd, openExisting, func(_ context.Context, env *poolEnv) error {
		return printJSON(cmd.OutOrStdout(), map[string]string{
			"owner":        owner.Hex(),
			"shares":       amm.FormatAmount(env.pool.SharesOf(owner)),
			"total_shares": amm.FormatAmount(env.pool.TotalShares()),
		})
	})
}

func runBalance(cmd *cobra.Command, args []string) error {
	account, err := amm.ParseAddress(args[0])
	if err != nil {
		return err
	}
	return withPool(cmd, openExisting, func(ctx context.Context, env *poolEnv) error {
		asset, err := replay.ResolveAsset(env.pool, args[1])
		if err != nil {
			return err
		}
		balance, err := env.balanceOf(ctx, asset, account)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]string{
			"account": account.Hex(),
			"asset":   asset.Hex(),
			"balance": amm.FormatAmount(balance),
		})
	})
}

func swapOp(direction string) (string, error) {
	switch direction {
	case "a-for-b":
		return model.OpSwapAForB, nil
	case "b-for-a":
		return model.OpSwapBForA, nil
	default:
		return "", fmt.Errorf("unknown swap direction %q (want a-for-b or b-for-a)", direction)
	}
}

func reservesView(pool *amm.Pool) map[string]interface{} {
	assetA, assetB := pool.Assets()
	reserveA, reserveB := pool.Reserves()
	return map[string]interface{}{
		"pool":         pool.Address().Hex(),
		"asset_a":      assetA.Hex(),
		"asset_b":      assetB.Hex(),
		"reserve_a":    amm.FormatAmount(reserveA),
		"reserve_b":    amm.FormatAmount(reserveB),
		"total_shares": amm.FormatAmount(pool.TotalShares()),
		"nonce":        pool.Nonce(),
	}
}

func printJSON(w io.Writer, value interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
