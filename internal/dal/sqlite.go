package dal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Traviscatt/picknroll-sub000/internal/logger"
	"github.com/Traviscatt/picknroll-sub000/internal/models"
	"github.com/Traviscatt/picknroll-sub000/internal/scoring"
)

// SQLiteDAL implements PoolDAL using SQLite
type SQLiteDAL struct {
	db *sql.DB
}

// NewSQLiteDAL creates a new SQLite data access layer
func NewSQLiteDAL(dbPath string) (*SQLiteDAL, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// A single writer avoids "database is locked" under concurrent recalcs
	db.SetMaxOpenConns(1)

	dal := &SQLiteDAL{db: db}

	if err := dal.initSchema(); err != nil {
		return nil, err
	}

	return dal, nil
}

// Close releases the underlying database handle
func (s *SQLiteDAL) Close() error {
	return s.db.Close()
}

func (s *SQLiteDAL) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pools (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS brackets (
		id TEXT PRIMARY KEY,
		pool_id TEXT NOT NULL,
		owner_name TEXT NOT NULL,
		name TEXT NOT NULL,
		picks TEXT NOT NULL DEFAULT '[]',
		legacy_picks TEXT,
		total_score INTEGER NOT NULL DEFAULT 0,
		submitted INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (pool_id) REFERENCES pools(id)
	);

	CREATE TABLE IF NOT EXISTS game_results (
		game_id TEXT PRIMARY KEY,
		round INTEGER NOT NULL,
		winner TEXT NOT NULL,
		recorded_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_brackets_pool_id ON brackets(pool_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Add legacy_picks column to databases created before it existed
	var legacyExists int
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM pragma_table_info('brackets')
		WHERE name='legacy_picks'
	`).Scan(&legacyExists)
	if err != nil {
		return fmt.Errorf("failed to check legacy_picks column existence: %w", err)
	}

	if legacyExists == 0 {
		if _, err := s.db.Exec(`ALTER TABLE brackets ADD COLUMN legacy_picks TEXT`); err != nil {
			return fmt.Errorf("failed to add legacy_picks column: %w", err)
		}
	}

	return nil
}

func (s *SQLiteDAL) CreatePool(name string) (*models.Pool, error) {
	pool := &models.Pool{
		ID:        genID("pool"),
		Name:      name,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	_, err := s.db.Exec(`INSERT INTO pools (id, name, created_at) VALUES (?, ?, ?)`,
		pool.ID, pool.Name, pool.CreatedAt.UnixMilli())
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func (s *SQLiteDAL) GetPool(id string) (*models.Pool, error) {
	var pool models.Pool
	var created int64
	err := s.db.QueryRow(`SELECT id, name, created_at FROM pools WHERE id = ?`, id).
		Scan(&pool.ID, &pool.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	pool.CreatedAt = time.UnixMilli(created).UTC()
	return &pool, nil
}

func (s *SQLiteDAL) ListPools() ([]models.Pool, error) {
	rows, err := s.db.Query(`SELECT id, name, created_at FROM pools ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pools := []models.Pool{}
	for rows.Next() {
		var pool models.Pool
		var created int64
		if err := rows.Scan(&pool.ID, &pool.Name, &created); err != nil {
			return nil, err
		}
		pool.CreatedAt = time.UnixMilli(created).UTC()
		pools = append(pools, pool)
	}
	return pools, rows.Err()
}

func (s *SQLiteDAL) SaveBracket(b *models.Bracket) (*models.Bracket, error) {
	if _, err := s.GetPool(b.PoolID); err != nil {
		return nil, err
	}

	picks, err := encodePicks(b.Picks)
	if err != nil {
		return nil, err
	}

	saved := copyBracket(*b)
	if saved.ID == "" {
		saved.ID = genID("bracket")
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err = s.db.Exec(`
		INSERT INTO brackets (id, pool_id, owner_name, name, picks, legacy_picks, total_score, submitted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pool_id = excluded.pool_id,
			owner_name = excluded.owner_name,
			name = excluded.name,
			picks = excluded.picks,
			legacy_picks = excluded.legacy_picks,
			submitted = excluded.submitted,
			updated_at = excluded.updated_at
	`, saved.ID, saved.PoolID, saved.OwnerName, saved.Name, picks, nullableJSON(saved.LegacyPicks),
		saved.Submitted, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, err
	}

	return s.GetBracket(saved.ID)
}

const sqliteBracketColumns = `id, pool_id, owner_name, name, picks, legacy_picks, total_score, submitted, created_at, updated_at`

func scanSQLiteBracket(row interface{ Scan(...any) error }) (models.Bracket, error) {
	var b models.Bracket
	var picks string
	var legacy sql.NullString
	var created, updated int64

	err := row.Scan(&b.ID, &b.PoolID, &b.OwnerName, &b.Name, &picks, &legacy,
		&b.TotalScore, &b.Submitted, &created, &updated)
	if err != nil {
		return b, err
	}

	if b.Picks, err = decodePicks(picks); err != nil {
		logger.Warn("Stored picks could not be decoded", "bracketId", b.ID, "error", err)
		b.Picks = nil
		b.PicksUnreadable = true
	}
	if legacy.Valid && legacy.String != "" {
		b.LegacyPicks = json.RawMessage(legacy.String)
	}
	b.CreatedAt = time.UnixMilli(created).UTC()
	b.UpdatedAt = time.UnixMilli(updated).UTC()
	return b, nil
}

func (s *SQLiteDAL) GetBracket(id string) (*models.Bracket, error) {
	row := s.db.QueryRow(`SELECT `+sqliteBracketColumns+` FROM brackets WHERE id = ?`, id)
	b, err := scanSQLiteBracket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bracket %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *SQLiteDAL) ListBrackets(poolID string) ([]models.Bracket, error) {
	rows, err := s.db.Query(`SELECT `+sqliteBracketColumns+` FROM brackets WHERE pool_id = ? ORDER BY created_at, id`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brackets := []models.Bracket{}
	for rows.Next() {
		b, err := scanSQLiteBracket(rows)
		if err != nil {
			return nil, err
		}
		brackets = append(brackets, b)
	}
	return brackets, rows.Err()
}

func (s *SQLiteDAL) RecordResult(r models.GameResult) (*models.GameResult, error) {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	r.RecordedAt = r.RecordedAt.Truncate(time.Millisecond)

	_, err := s.db.Exec(`
		INSERT INTO game_results (game_id, round, winner, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(game_id) DO UPDATE SET
			round = excluded.round,
			winner = excluded.winner,
			recorded_at = excluded.recorded_at
	`, r.GameID, r.Round, r.Winner, r.RecordedAt.UnixMilli())
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteDAL) ClearResult(gameID string) error {
	res, err := s.db.Exec(`DELETE FROM game_results WHERE game_id = ?`, gameID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("result %s: %w", gameID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteDAL) ListResults() ([]models.GameResult, error) {
	rows, err := s.db.Query(`SELECT game_id, round, winner, recorded_at FROM game_results ORDER BY round, game_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.GameResult{}
	for rows.Next() {
		var r models.GameResult
		var recorded int64
		if err := rows.Scan(&r.GameID, &r.Round, &r.Winner, &recorded); err != nil {
			return nil, err
		}
		r.RecordedAt = time.UnixMilli(recorded).UTC()
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteDAL) UpdateScores(scores map[string]int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE brackets SET total_score = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixMilli()
	for id, score := range scores {
		if _, err := stmt.Exec(score, now, id); err != nil {
			return fmt.Errorf("failed to update score for %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteDAL) Leaderboard(poolID string) ([]models.LeaderboardEntry, error) {
	if _, err := s.GetPool(poolID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT id, name, owner_name, total_score
		FROM brackets
		WHERE pool_id = ? AND submitted = 1
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

func (s *SQLiteDAL) Ping() error {
	return s.db.Ping()
}

func encodePicks(picks []scoring.Pick) (string, error) {
	if picks == nil {
		picks = []scoring.Pick{}
	}
	data, err := json.Marshal(picks)
	if err != nil {
		return "", fmt.Errorf("failed to encode picks: %w", err)
	}
	return string(data), nil
}

func decodePicks(data string) ([]scoring.Pick, error) {
	if data == "" {
		return nil, nil
	}
	var picks []scoring.Pick
	if err := json.Unmarshal([]byte(data), &picks); err != nil {
		return nil, fmt.Errorf("failed to decode picks: %w", err)
	}
	return picks, nil
}

func nullableJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
