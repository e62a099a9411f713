package dal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Traviscatt/picknroll-sub000/internal/logger"
	"github.com/Traviscatt/picknroll-sub000/internal/models"
)

// PostgresDAL implements PoolDAL using PostgreSQL
type PostgresDAL struct {
	db *sql.DB
}

// NewPostgresDAL creates a new PostgreSQL data access layer optimized for CloudNativePG
func NewPostgresDAL(connString string) (*PostgresDAL, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}

	// CloudNativePG: default max_connections is 100
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute) // recycle across failovers
	db.SetConnMaxIdleTime(1 * time.Minute)

	// Retry while cluster DNS settles
	maxRetries := 5
	retryDelay := 5 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		lastErr = db.PingContext(ctx)
		cancel()

		if lastErr == nil {
			break
		}
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("failed to ping postgres after %d retries: %w", maxRetries, lastErr)
	}

	dal := &PostgresDAL{db: db}

	if err := dal.initSchema(); err != nil {
		return nil, err
	}

	return dal, nil
}

// Close releases the connection pool
func (p *PostgresDAL) Close() error {
	return p.db.Close()
}

func (p *PostgresDAL) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pools (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS brackets (
		id TEXT PRIMARY KEY,
		pool_id TEXT NOT NULL REFERENCES pools(id) ON DELETE CASCADE,
		owner_name TEXT NOT NULL,
		name TEXT NOT NULL,
		picks JSONB NOT NULL DEFAULT '[]'::jsonb,
		legacy_picks JSONB,
		total_score INTEGER NOT NULL DEFAULT 0,
		submitted BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS game_results (
		game_id TEXT PRIMARY KEY,
		round INTEGER NOT NULL,
		winner TEXT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_brackets_pool_id ON brackets(pool_id);
	CREATE INDEX IF NOT EXISTS idx_brackets_leaderboard ON brackets(pool_id, total_score DESC) WHERE submitted;
	CREATE INDEX IF NOT EXISTS idx_game_results_round ON game_results(round);
	`

	if _, err := p.db.Exec(schema); err != nil {
		return err
	}

	// Add legacy_picks column to databases created before it existed
	_, err := p.db.Exec(`
		ALTER TABLE brackets
		ADD COLUMN IF NOT EXISTS legacy_picks JSONB
	`)
	if err != nil {
		return fmt.Errorf("failed to add legacy_picks column: %w", err)
	}

	return nil
}

func (p *PostgresDAL) CreatePool(name string) (*models.Pool, error) {
	pool := &models.Pool{ID: genID("pool"), Name: name}

	err := p.db.QueryRow(`INSERT INTO pools (id, name) VALUES ($1, $2) RETURNING created_at`,
		pool.ID, pool.Name).Scan(&pool.CreatedAt)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func (p *PostgresDAL) GetPool(id string) (*models.Pool, error) {
	var pool models.Pool
	err := p.db.QueryRow(`SELECT id, name, created_at FROM pools WHERE id = $1`, id).
		Scan(&pool.ID, &pool.Name, &pool.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

func (p *PostgresDAL) ListPools() ([]models.Pool, error) {
	rows, err := p.db.Query(`SELECT id, name, created_at FROM pools ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pools := []models.Pool{}
	for rows.Next() {
		var pool models.Pool
		if err := rows.Scan(&pool.ID, &pool.Name, &pool.CreatedAt); err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	return pools, rows.Err()
}

func (p *PostgresDAL) SaveBracket(b *models.Bracket) (*models.Bracket, error) {
	if _, err := p.GetPool(b.PoolID); err != nil {
		return nil, err
	}

	picks, err := encodePicks(b.Picks)
	if err != nil {
		return nil, err
	}

	id := b.ID
	if id == "" {
		id = genID("bracket")
	}

	_, err = p.db.Exec(`
		INSERT INTO brackets (id, pool_id, owner_name, name, picks, legacy_picks, submitted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			pool_id = EXCLUDED.pool_id,
			owner_name = EXCLUDED.owner_name,
			name = EXCLUDED.name,
			picks = EXCLUDED.picks,
			legacy_picks = EXCLUDED.legacy_picks,
			submitted = EXCLUDED.submitted,
			updated_at = now()
	`, id, b.PoolID, b.OwnerName, b.Name, picks, nullableJSON(b.LegacyPicks), b.Submitted)
	if err != nil {
		return nil, err
	}

	return p.GetBracket(id)
}

const postgresBracketColumns = `id, pool_id, owner_name, name, picks, COALESCE(legacy_picks::text, ''), total_score, submitted, created_at, updated_at`

func scanPostgresBracket(row interface{ Scan(...any) error }) (models.Bracket, error) {
	var b models.Bracket
	var picks, legacy string

	err := row.Scan(&b.ID, &b.PoolID, &b.OwnerName, &b.Name, &picks, &legacy,
		&b.TotalScore, &b.Submitted, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return b, err
	}

	if b.Picks, err = decodePicks(picks); err != nil {
		logger.Warn("Stored picks could not be decoded", "bracketId", b.ID, "error", err)
		b.Picks = nil
		b.PicksUnreadable = true
	}
	if legacy != "" {
		b.LegacyPicks = json.RawMessage(legacy)
	}
	return b, nil
}

func (p *PostgresDAL) GetBracket(id string) (*models.Bracket, error) {
	row := p.db.QueryRow(`SELECT `+postgresBracketColumns+` FROM brackets WHERE id = $1`, id)
	b, err := scanPostgresBracket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bracket %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (p *PostgresDAL) ListBrackets(poolID string) ([]models.Bracket, error) {
	rows, err := p.db.Query(`SELECT `+postgresBracketColumns+` FROM brackets WHERE pool_id = $1 ORDER BY created_at, id`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brackets := []models.Bracket{}
	for rows.Next() {
		b, err := scanPostgresBracket(rows)
		if err != nil {
			return nil, err
		}
		brackets = append(brackets, b)
	}
	return brackets, rows.Err()
}

func (p *PostgresDAL) RecordResult(r models.GameResult) (*models.GameResult, error) {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}

	_, err := p.db.Exec(`
		INSERT INTO game_results (game_id, round, winner, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (game_id) DO UPDATE SET
			round = EXCLUDED.round,
			winner = EXCLUDED.winner,
			recorded_at = EXCLUDED.recorded_at
	`, r.GameID, r.Round, r.Winner, r.RecordedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PostgresDAL) ClearResult(gameID string) error {
	res, err := p.db.Exec(`DELETE FROM game_results WHERE game_id = $1`, gameID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("result %s: %w", gameID, ErrNotFound)
	}
	return nil
}

func (p *PostgresDAL) ListResults() ([]models.GameResult, error) {
	rows, err := p.db.Query(`SELECT game_id, round, winner, recorded_at FROM game_results ORDER BY round, game_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.GameResult{}
	for rows.Next() {
		var r models.GameResult
		if err := rows.Scan(&r.GameID, &r.Round, &r.Winner, &r.RecordedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (p *PostgresDAL) UpdateScores(scores map[string]int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE brackets SET total_score = $1, updated_at = now() WHERE id = $2`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for id, score := range scores {
		if _, err := stmt.ExecContext(ctx, score, id); err != nil {
			return fmt.Errorf("failed to update score for %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (p *PostgresDAL) Leaderboard(poolID string) ([]models.LeaderboardEntry, error) {
	if _, err := p.GetPool(poolID); err != nil {
		return nil, err
	}

	rows, err := p.db.Query(`
		SELECT id, name, owner_name, total_score
		FROM brackets
		WHERE pool_id = $1 AND submitted
		ORDER BY total_score DESC, name, id
	`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.BracketID, &e.BracketName, &e.OwnerName, &e.Score); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankEntries(entries), nil
}

func (p *PostgresDAL) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.db.PingContext(ctx)
}
