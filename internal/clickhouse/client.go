package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ScorePoint is one bracket total captured after a recalculation
type ScorePoint struct {
	PoolID     string    `json:"poolId"`
	BracketID  string    `json:"bracketId"`
	Score      int       `json:"score"`
	RecordedAt time.Time `json:"recordedAt"`
}

const schema = `
	CREATE TABLE IF NOT EXISTS bracket_score_history (
		pool_id     String,
		bracket_id  String,
		score       Int32,
		recorded_at DateTime64(3, 'UTC')
	)
	ENGINE = MergeTree
	ORDER BY (bracket_id, recorded_at)
`

// Client stores bracket score history in ClickHouse
type Client struct {
	conn driver.Conn
}

// NewClient creates a new ClickHouse client and ensures the history table exists
func NewClient(addr, database, username, password string) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if err := conn.Exec(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create bracket_score_history: %w", err)
	}

	return &Client{conn: conn}, nil
}

// RecordScores appends one row per bracket for a recalculation pass
func (c *Client) RecordScores(ctx context.Context, poolID string, scores map[string]int, at time.Time) error {
	if len(scores) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO bracket_score_history")
	if err != nil {
		return fmt.Errorf("failed to prepare history batch: %w", err)
	}

	for bracketID, score := range scores {
		if err := batch.Append(poolID, bracketID, int32(score), at.UTC()); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append history row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send history batch: %w", err)
	}
	return nil
}

// ScoreHistory returns the recorded totals for a bracket, oldest first
func (c *Client) ScoreHistory(ctx context.Context, bracketID string) ([]ScorePoint, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT pool_id, bracket_id, score, recorded_at
		FROM bracket_score_history
		WHERE bracket_id = ?
		ORDER BY recorded_at
	`, bracketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []ScorePoint{}
	for rows.Next() {
		var p ScorePoint
		var score int32
		if err := rows.Scan(&p.PoolID, &p.BracketID, &score, &p.RecordedAt); err != nil {
			return nil, err
		}
		p.Score = int(score)
		points = append(points, p)
	}
	return points, rows.Err()
}

// Close closes the ClickHouse connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
