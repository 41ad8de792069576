package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ammPool/internal/amm"
	"ammPool/internal/model"
)

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	ScriptPath        string
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	StopOnError       bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// ErrAborted marks a step failure that ends the run instead of being
// recorded as a rejected operation.
var ErrAborted = errors.New("replay aborted")

// SaveFunc persists the pool and its ledger.
type SaveFunc func(ctx context.Context) error

// StepFunc applies one operation. The default step is Apply.
type StepFunc func(ctx context.Context, op model.Operation) (model.OperationResult, error)

// ResultSink receives the outcome of every processed operation.
type ResultSink interface {
	PutResults(results []model.OperationResult) error
}

// Summary counts what a run did.
type Summary struct {
	Lines    uint64
	Applied  uint64
	Rejected uint64
	Nonce    uint64
}

// Runner applies a script of operations to a pool in batches.
type Runner struct {
	cfg        RunConfig
	pool       *amm.Pool
	funder     Funder
	save       SaveFunc
	results    ResultSink
	logger     *zap.Logger
	checkpoint *CheckpointStore
	step       StepFunc
}

// NewRunner builds a Runner. funder, save and results may be nil.
func NewRunner(cfg RunConfig, pool *amm.Pool, funder Funder, save SaveFunc, results ResultSink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:        cfg,
		pool:       pool,
		funder:     funder,
		save:       save,
		results:    results,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
	r.step = func(ctx context.Context, op model.Operation) (model.OperationResult, error) {
		return Apply(ctx, r.pool, r.funder, op)
	}
	return r
}

// WithStep replaces the function that applies each operation.
func (r *Runner) WithStep(step StepFunc) *Runner {
	if step != nil {
		r.step = step
	}
	return r
}

// Run executes the replay loop.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	if r.pool == nil {
		return summary, fmt.Errorf("pool is nil")
	}
	if r.cfg.BatchSize == 0 {
		return summary, fmt.Errorf("batch size must be greater than zero")
	}

	script, err := ReadScript(r.cfg.ScriptPath)
	if err != nil {
		return summary, err
	}
	summary.Lines = script.Lines()
	summary.Nonce = r.pool.Nonce()

	from := uint64(1)
	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return summary, err
	}
	if ok && cp.Script == script.Path {
		if cp.PoolNonce != r.pool.Nonce() {
			return summary, fmt.Errorf("checkpoint taken at pool nonce %d but pool is at %d", cp.PoolNonce, r.pool.Nonce())
		}
		from = cp.LastAppliedLine + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_applied", cp.LastAppliedLine), zap.Uint64("from", from))
	}

	to := script.Lines()
	if from > to {
		r.logger.Info("nothing to replay", zap.Uint64("from", from), zap.Uint64("to", to))
		return summary, nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return summary, err
	}

	for _, lineRange := range ranges {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		results := make([]model.OperationResult, 0, lineRange.To-lineRange.From+1)
		for line := lineRange.From; line <= lineRange.To; line++ {
			op := script.Ops[line]
			if op == nil {
				continue
			}

			if err := ctx.Err(); err != nil {
				return summary, r.interrupt(ctx, &summary, script.Path, line, results, err)
			}

			result, err := r.step(ctx, *op)
			result.Line = line
			if err != nil {
				if stopsRun(err) {
					return summary, r.interrupt(ctx, &summary, script.Path, line, results, err)
				}
				result.Error = err.Error()
				results = append(results, result)
				summary.Rejected++
				r.logger.Warn("operation rejected", zap.Uint64("line", line), zap.String("op", op.Op), zap.String("account", op.Account), zap.Error(err))
				if r.cfg.StopOnError {
					if perr := r.persist(ctx, script.Path, line-1, results); perr != nil {
						return summary, perr
					}
					summary.Nonce = r.pool.Nonce()
					return summary, fmt.Errorf("line %d: %w", line, err)
				}
				continue
			}

			results = append(results, result)
			summary.Applied++
			r.logger.Debug("operation applied", zap.Uint64("line", line), zap.String("op", op.Op), zap.Uint64("nonce", result.Nonce))
		}

		if err := r.persist(ctx, script.Path, lineRange.To, results); err != nil {
			return summary, err
		}
		summary.Nonce = r.pool.Nonce()

		r.logger.Info("batch complete", zap.Int("operations", len(results)), zap.Uint64("from", lineRange.From), zap.Uint64("to", lineRange.To), zap.Uint64("nonce", summary.Nonce))
	}

	return summary, nil
}

// interrupt persists the lines before line and returns cause. Line itself
// is not recorded, so a resumed run starts with it.
func (r *Runner) interrupt(ctx context.Context, summary *Summary, scriptPath string, line uint64, results []model.OperationResult, cause error) error {
	r.logger.Warn("replay interrupted", zap.Uint64("line", line), zap.Error(cause))
	if err := r.persist(context.WithoutCancel(ctx), scriptPath, line-1, results); err != nil {
		return errors.Join(fmt.Errorf("line %d: %w", line, cause), err)
	}
	summary.Nonce = r.pool.Nonce()
	return fmt.Errorf("line %d: %w", line, cause)
}

func stopsRun(err error) bool {
	return errors.Is(err, ErrAborted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// persist checks the pool, saves it and records lastLine as applied. The
// save is not cut short by cancellation of ctx: operations already applied
// must reach storage.
func (r *Runner) persist(ctx context.Context, scriptPath string, lastLine uint64, results []model.OperationResult) error {
	ctx = context.WithoutCancel(ctx)
	if err := r.pool.CheckInvariants(); err != nil {
		return fmt.Errorf("after line %d: %w", lastLine, err)
	}

	if r.results != nil {
		if err := r.results.PutResults(results); err != nil {
			return fmt.Errorf("store results: %w", err)
		}
	}

	if r.save != nil {
		err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			err := r.save(ctx)
			if err != nil {
				r.logger.Warn("save pool state failed", zap.Error(err), zap.Uint64("line", lastLine))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("save pool state: %w", err)
		}
	}

	return r.checkpoint.Save(Checkpoint{
		Script:          scriptPath,
		LastAppliedLine: lastLine,
		PoolNonce:       r.pool.Nonce(),
	})
}
