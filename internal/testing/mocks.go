package testing

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/frontier/internal/domain"
)

// MockDataProvider serves a fixed return series from memory.
type MockDataProvider struct {
	mu     sync.RWMutex
	series *domain.ReturnSeries
	err    error
	calls  int
	starts map[int64]time.Time // first period with data, for assets listed late
}

// NewMockDataProvider creates a provider over series.
func NewMockDataProvider(series *domain.ReturnSeries) *MockDataProvider {
	return &MockDataProvider{series: series}
}

// SetError makes every call fail with err.
func (m *MockDataProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetHistoryStart gives assetID no data before from. Like the SQLite repository,
// ReturnSeries then keeps only periods where every requested asset has a value.
func (m *MockDataProvider) SetHistoryStart(assetID int64, from time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.starts == nil {
		m.starts = make(map[int64]time.Time)
	}
	m.starts[assetID] = from
}

// Calls returns how many ReturnSeries calls were made.
func (m *MockDataProvider) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Assets implements domain.DataProvider
func (m *MockDataProvider) Assets(ctx context.Context) ([]domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.Asset(nil), m.series.Assets...), nil
}

// ReturnSeries implements domain.DataProvider. Empty assetIDs selects every asset;
// unknown ids are dropped.
func (m *MockDataProvider) ReturnSeries(ctx context.Context, assetIDs []int64, until *time.Time) (*domain.ReturnSeries, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	column := make(map[int64]int, len(m.series.Assets))
	for j, a := range m.series.Assets {
		column[a.ID] = j
	}

	if len(assetIDs) == 0 {
		assetIDs = m.series.AssetIDs()
	}

	out := &domain.ReturnSeries{}
	var cols []int
	var from time.Time
	for _, id := range assetIDs {
		if j, ok := column[id]; ok {
			cols = append(cols, j)
			out.Assets = append(out.Assets, m.series.Assets[j])
			if start, ok := m.starts[id]; ok && start.After(from) {
				from = start
			}
		}
	}
	for t, date := range m.series.Dates {
		if until != nil && date.After(*until) {
			break
		}
		if date.Before(from) {
			continue
		}
		row := make([]float64, len(cols))
		for k, j := range cols {
			row[k] = m.series.Returns[t][j]
		}
		out.Dates = append(out.Dates, date)
		out.Returns = append(out.Returns, row)
	}
	return out, nil
}

// MockPersistenceSink records saved results.
type MockPersistenceSink struct {
	mu      sync.Mutex
	results []*domain.OptimizationResult
	err     error
}

// NewMockPersistenceSink creates an empty sink.
func NewMockPersistenceSink() *MockPersistenceSink {
	return &MockPersistenceSink{}
}

// SetError makes SaveOptimization fail with err.
func (m *MockPersistenceSink) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SaveOptimization implements domain.PersistenceSink
func (m *MockPersistenceSink) SaveOptimization(ctx context.Context, result *domain.OptimizationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.results = append(m.results, result)
	return nil
}

// Saved returns the results saved so far.
func (m *MockPersistenceSink) Saved() []*domain.OptimizationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.OptimizationResult(nil), m.results...)
}

// MockConfigSource returns a fixed hyperparameter config.
type MockConfigSource struct {
	Config *domain.HyperparameterConfig
	Err    error
}

// Lookup implements domain.ConfigSource
func (m *MockConfigSource) Lookup(ctx context.Context, assetCount int, profile domain.RiskProfile) (*domain.HyperparameterConfig, error) {
	return m.Config, m.Err
}
