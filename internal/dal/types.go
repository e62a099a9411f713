package dal

import (
	"errors"

	"github.com/Traviscatt/picknroll-sub000/internal/models"
)

// ErrNotFound is returned when a pool, bracket or result does not exist
var ErrNotFound = errors.New("not found")

// PoolDAL defines the interface for data access layer
type PoolDAL interface {
	CreatePool(name string) (*models.Pool, error)
	GetPool(id string) (*models.Pool, error)
	ListPools() ([]models.Pool, error)

	SaveBracket(b *models.Bracket) (*models.Bracket, error)
	GetBracket(id string) (*models.Bracket, error)
	ListBrackets(poolID string) ([]models.Bracket, error)

	RecordResult(r models.GameResult) (*models.GameResult, error)
	ClearResult(gameID string) error
	ListResults() ([]models.GameResult, error)

	// UpdateScores writes the totals of one recalculation pass. Unknown
	// bracket ids are ignored.
	UpdateScores(scores map[string]int) error
	Leaderboard(poolID string) ([]models.LeaderboardEntry, error)

	Ping() error
}
