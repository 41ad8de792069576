package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"ammPool/internal/amm"
	"ammPool/internal/model"
	"ammPool/internal/storage"
)

const feeMethodApprox = "approx_from_amount_in"

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Stats counts what a run did.
type Stats struct {
	Total   int
	Windows int
	Skipped int
	Failed  int
}

// Aggregator aggregates typed events into pool window metrics.
type Aggregator struct {
	cfg          Config
	sink         storage.MetricsSink
	logger       *zap.Logger
	accumulators map[string]*Accumulator
	poolSeen     map[string]model.Pool
}

func NewAggregator(cfg Config, sink storage.MetricsSink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
		poolSeen:     make(map[string]model.Pool),
	}
}

// Run executes aggregation over a typed events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) (Stats, error) {
	var stats Stats
	if a.sink == nil {
		return stats, fmt.Errorf("metrics sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return stats, fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return stats, err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return stats, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	pools := make([]model.Pool, 0, 16)
	lastTs := startTs

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.Failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			continue
		}

		if record.Timestamp <= startTs {
			stats.Skipped++
			continue
		}

		windowStart := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		accKey := poolKey(record.Address)
		acc := a.accumulators[accKey]
		if acc == nil {
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		} else if acc.WindowStart != windowStart {
			metrics, pool := a.flushAccumulator(acc)
			if metrics != nil {
				batch = append(batch, *metrics)
				stats.Windows++
			}
			if pool != nil {
				pools = append(pools, *pool)
			}
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			stats.Failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Address), zap.String("event", record.EventName))
			continue
		}

		if record.Timestamp > lastTs {
			lastTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flushBatches(ctx, batch, pools); err != nil {
				return stats, err
			}
			batch = batch[:0]
			pools = pools[:0]

			if err := a.saveState(ctx, a.safeTimestamp(startTs)); err != nil {
				return stats, err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}

	// Open windows may still grow, so the next run starts again at the
	// earliest of them.
	resumeTs := a.safeTimestamp(lastTs)

	for _, acc := range a.accumulators {
		metrics, pool := a.flushAccumulator(acc)
		if metrics != nil {
			batch = append(batch, *metrics)
			stats.Windows++
		}
		if pool != nil {
			pools = append(pools, *pool)
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 || len(pools) > 0 {
		if err := a.flushBatches(ctx, batch, pools); err != nil {
			return stats, err
		}
	}

	if err := a.saveState(ctx, resumeTs); err != nil {
		return stats, err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", stats.Total),
		zap.Int("windows", stats.Windows),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Uint64("resume_after", resumeTs),
	)

	return stats, nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// safeTimestamp is the last timestamp every event up to which has been
// flushed in a closed window; fallback applies when no window is open.
func (a *Aggregator) safeTimestamp(fallback uint64) uint64 {
	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs == 0 {
		return fallback
	}
	return safeTs - 1
}

func (a *Aggregator) saveState(ctx context.Context, ts uint64) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	return a.cfg.StateStore.Save(ctx, ts)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	if len(pools) > 0 {
		if err := a.sink.UpsertPools(ctx, pools); err != nil {
			return err
		}
	}
	if len(batch) > 0 {
		if err := a.sink.UpsertWindowMetrics(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(acc *Accumulator) (*model.PoolWindowMetrics, *model.Pool) {
	if acc == nil {
		return nil, nil
	}

	if !acc.PoolMeta.Complete() {
		a.logger.Warn("missing pool meta", zap.String("pool", acc.PoolAddress))
		return nil, nil
	}

	poolRecord := a.registerPool(acc)

	metrics := &model.PoolWindowMetrics{
		PoolAddress:    acc.PoolAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		SwapCount:      acc.SwapCount,
		VolumeA:        acc.VolumeA.String(),
		VolumeB:        acc.VolumeB.String(),
		FeeA:           acc.FeeA.String(),
		FeeB:           acc.FeeB.String(),
		AddCount:       acc.AddCount,
		RemoveCount:    acc.RemoveCount,
		SharesMinted:   acc.SharesMinted.String(),
		SharesBurned:   acc.SharesBurned.String(),
		NetFlowA:       acc.NetFlowA.String(),
		NetFlowB:       acc.NetFlowB.String(),
		FirstNonce:     acc.FirstNonce,
		LastNonce:      acc.LastNonce,
		FeeMethod:      feeMethodApprox,
	}

	return metrics, poolRecord
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	key := poolKey(acc.PoolAddress)
	pool := model.Pool{
		Address:        acc.PoolAddress,
		AssetA:         acc.PoolMeta.AssetA,
		AssetB:         acc.PoolMeta.AssetB,
		FeeNumerator:   amm.FeeNumerator,
		FeeDenominator: amm.FeeDenominator,
		FirstSeenNonce: acc.FirstNonce,
	}

	existing, ok := a.poolSeen[key]
	if ok {
		if existing.FirstSeenNonce <= pool.FirstSeenNonce {
			return nil
		}
	}

	a.poolSeen[key] = pool
	return &pool
}
