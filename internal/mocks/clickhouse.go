package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Traviscatt/picknroll-sub000/internal/clickhouse"
	"github.com/Traviscatt/picknroll-sub000/internal/logger"
)

// MockClickHouseClient keeps score history in memory for local development
type MockClickHouseClient struct {
	mu     sync.RWMutex
	points map[string][]clickhouse.ScorePoint
}

// NewMockClickHouseClient creates a mock ClickHouse client
func NewMockClickHouseClient() *MockClickHouseClient {
	logger.Info("Using MOCK ClickHouse client for local development")
	return &MockClickHouseClient{points: make(map[string][]clickhouse.ScorePoint)}
}

// RecordScores appends one point per bracket
func (m *MockClickHouseClient) RecordScores(_ context.Context, poolID string, scores map[string]int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for bracketID, score := range scores {
		m.points[bracketID] = append(m.points[bracketID], clickhouse.ScorePoint{
			PoolID:     poolID,
			BracketID:  bracketID,
			Score:      score,
			RecordedAt: at.UTC(),
		})
	}
	return nil
}

// ScoreHistory returns the points recorded for a bracket, oldest first
func (m *MockClickHouseClient) ScoreHistory(_ context.Context, bracketID string) ([]clickhouse.ScorePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]clickhouse.ScorePoint{}, m.points[bracketID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

// Close is a no-op for mock client
func (m *MockClickHouseClient) Close() error {
	return nil
}
