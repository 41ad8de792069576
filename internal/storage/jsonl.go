package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ammPool/internal/model"
)

// JsonlStorage writes log records to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutLogBatch appends a batch of log records as JSON lines.
func (s *JsonlStorage) PutLogBatch(logs []model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLines(s.path, logs)
}

// JsonlMetrics appends pool records and window metrics to two JSONL files.
type JsonlMetrics struct {
	poolsPath   string
	metricsPath string
	mu          sync.Mutex
}

func NewJsonlMetrics(poolsPath, metricsPath string) *JsonlMetrics {
	return &JsonlMetrics{poolsPath: poolsPath, metricsPath: metricsPath}
}

func (s *JsonlMetrics) UpsertPools(_ context.Context, pools []model.Pool) error {
	if s.poolsPath == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLines(s.poolsPath, pools)
}

func (s *JsonlMetrics) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLines(s.metricsPath, metrics)
}

// JsonlResults appends replay operation results to a JSONL file.
type JsonlResults struct {
	path string
	mu   sync.Mutex
}

func NewJsonlResults(path string) *JsonlResults {
	return &JsonlResults{path: path}
}

func (s *JsonlResults) PutResults(results []model.OperationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLines(s.path, results)
}

func appendLines[T any](path string, values []T) error {
	if len(values) == 0 {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, value := range values {
		line, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
