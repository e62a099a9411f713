package mocks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Traviscatt/picknroll-sub000/internal/dal"
)

func TestMockClickHouseHistory(t *testing.T) {
	m := NewMockClickHouseClient()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.RecordScores(ctx, "pool_a", map[string]int{"b1": 10, "b2": 4}, t0))
	require.NoError(t, m.RecordScores(ctx, "pool_a", map[string]int{"b1": 22}, t0.Add(time.Hour)))

	points, err := m.ScoreHistory(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 10, points[0].Score)
	assert.Equal(t, 22, points[1].Score)
	assert.Equal(t, "pool_a", points[1].PoolID)

	empty, err := m.ScoreHistory(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMockPostgresDALSatisfiesPoolDAL(t *testing.T) {
	m, err := NewMockPostgresDAL(":memory:")
	require.NoError(t, err)
	defer m.Close()

	var d dal.PoolDAL = m
	pool, err := d.CreatePool("dev")
	require.NoError(t, err)

	pools, err := d.ListPools()
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, pool.ID, pools[0].ID)
}
