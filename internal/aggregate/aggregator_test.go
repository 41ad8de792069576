package aggregate

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"ammPool/internal/model"
	"ammPool/internal/storage"
)

const (
	testPool   = "0x5555555555555555555555555555555555555555"
	testAssetA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testAssetB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func typedRecord(t *testing.T, nonce, ts uint64, name string, decoded interface{}) model.TypedEventRecord {
	t.Helper()
	data, err := json.Marshal(decoded)
	if err != nil {
		t.Fatalf("marshal decoded: %v", err)
	}
	return model.TypedEventRecord{
		Nonce:     nonce,
		Address:   testPool,
		EventName: name,
		Timestamp: ts,
		Decoded:   data,
		PoolMeta:  model.PoolMeta{AssetA: testAssetA, AssetB: testAssetB},
	}
}

func writeRecords(t *testing.T, path string, records []model.TypedEventRecord, extra ...string) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create input: %v", err)
	}
	defer file.Close()
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			t.Fatalf("marshal record: %v", err)
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			t.Fatalf("write record: %v", err)
		}
	}
	for _, line := range extra {
		if _, err := file.WriteString(line + "\n"); err != nil {
			t.Fatalf("write line: %v", err)
		}
	}
}

func readMetrics(t *testing.T, path string) []model.PoolWindowMetrics {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open metrics: %v", err)
	}
	defer file.Close()

	var out []model.PoolWindowMetrics
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var m model.PoolWindowMetrics
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("unmarshal metrics: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func TestAggregatorWindows(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	input := filepath.Join(dir, "typed.jsonl")
	metricsPath := filepath.Join(dir, "metrics.jsonl")
	poolsPath := filepath.Join(dir, "pools.jsonl")

	writeRecords(t, input, []model.TypedEventRecord{
		typedRecord(t, 1, 36005, "LiquidityAdded", model.LiquidityAddedData{AmountA: "100", AmountB: "200", SharesMinted: "141"}),
		typedRecord(t, 2, 36010, "Swap", model.SwapEventData{AssetIn: testAssetA, AssetOut: testAssetB, AmountIn: "10", AmountOut: "18"}),
		typedRecord(t, 3, 36020, "Swap", model.SwapEventData{AssetIn: testAssetB, AssetOut: testAssetA, AmountIn: "1000", AmountOut: "5"}),
		typedRecord(t, 4, 39605, "LiquidityRemoved", model.LiquidityRemovedData{AmountA: "31", AmountB: "52", SharesBurned: "41"}),
	}, `{"broken"`)

	stateStore := &FileStateStore{Path: filepath.Join(dir, "state.json")}
	cfg := Config{WindowSeconds: 3600, BatchSize: 10, StateStore: stateStore}
	stats, err := NewAggregator(cfg, storage.NewJsonlMetrics(poolsPath, metricsPath), nil).Run(ctx, input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Total != 5 || stats.Windows != 2 || stats.Failed != 1 || stats.Skipped != 0 {
		t.Fatalf("stats mismatch: %+v", stats)
	}

	metrics := readMetrics(t, metricsPath)
	if len(metrics) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(metrics))
	}
	first := metrics[0]
	if first.WindowStart.Unix() != 36000 || first.WindowEnd.Unix() != 39600 {
		t.Fatalf("window mismatch: %v-%v", first.WindowStart, first.WindowEnd)
	}
	if first.SwapCount != 2 || first.VolumeA != "15" || first.VolumeB != "1018" {
		t.Fatalf("volume mismatch: %+v", first)
	}
	if first.FeeA != "0" || first.FeeB != "3" {
		t.Fatalf("fee mismatch: %+v", first)
	}
	if first.AddCount != 1 || first.SharesMinted != "141" || first.NetFlowA != "105" || first.NetFlowB != "1182" {
		t.Fatalf("liquidity mismatch: %+v", first)
	}
	if first.FirstNonce != 1 || first.LastNonce != 3 {
		t.Fatalf("nonce mismatch: %+v", first)
	}

	second := metrics[1]
	if second.RemoveCount != 1 || second.SharesBurned != "41" || second.NetFlowA != "-31" || second.NetFlowB != "-52" {
		t.Fatalf("second window mismatch: %+v", second)
	}

	last, ok, err := stateStore.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load state: ok=%v err=%v", ok, err)
	}
	if last != 39599 {
		t.Fatalf("state mismatch: %d", last)
	}

	pools, err := os.ReadFile(poolsPath)
	if err != nil {
		t.Fatalf("read pools: %v", err)
	}
	var pool model.Pool
	if err := json.Unmarshal(pools, &pool); err != nil {
		t.Fatalf("unmarshal pool: %v", err)
	}
	if pool.FirstSeenNonce != 1 || pool.FeeNumerator != 997 || pool.AssetA != testAssetA {
		t.Fatalf("pool mismatch: %+v", pool)
	}

	// The open window is recomputed on the next run, everything before it
	// is skipped.
	stats, err = NewAggregator(cfg, storage.NewJsonlMetrics("", metricsPath), nil).Run(ctx, input)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if stats.Skipped != 3 || stats.Windows != 1 {
		t.Fatalf("rerun stats mismatch: %+v", stats)
	}
	metrics = readMetrics(t, metricsPath)
	if got := metrics[len(metrics)-1]; got.RemoveCount != 1 || got.WindowStart.Unix() != 39600 {
		t.Fatalf("recomputed window mismatch: %+v", got)
	}
}

func TestAccumulatorRejectsForeignSwap(t *testing.T) {
	record := typedRecord(t, 1, 100, "Swap", model.SwapEventData{
		AssetIn:   testAssetA,
		AssetOut:  "0xcccccccccccccccccccccccccccccccccccccccc",
		AmountIn:  "1",
		AmountOut: "1",
	})
	acc := NewAccumulator(record, 0, 3600)
	if err := acc.AddEvent(record); err == nil {
		t.Fatalf("expected error for swap outside the pool pair")
	}

	record.PoolMeta = model.PoolMeta{}
	acc = NewAccumulator(record, 0, 3600)
	if err := acc.AddEvent(record); err == nil {
		t.Fatalf("expected error for unknown pool assets")
	}
	if acc.SwapCount != 0 {
		t.Fatalf("swap counted despite error")
	}
}

func TestFeeFromAmount(t *testing.T) {
	cases := map[string]string{
		"0":       "0",
		"333":     "0",
		"334":     "1",
		"1000000": "3000",
	}
	for in, want := range cases {
		amount, err := parseBigInt(in)
		if err != nil {
			t.Fatalf("parse %s: %v", in, err)
		}
		if got := feeFromAmount(amount).String(); got != want {
			t.Fatalf("fee(%s) = %s, want %s", in, got, want)
		}
	}
	if _, err := parseBigInt("-1"); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}
