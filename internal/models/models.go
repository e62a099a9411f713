package models

import (
	"encoding/json"
	"time"

	"github.com/Traviscatt/picknroll-sub000/internal/scoring"
)

// Pool groups the brackets that compete on one leaderboard
type Pool struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Bracket is a stored player bracket
type Bracket struct {
	ID        string         `json:"id"`
	PoolID    string         `json:"poolId"`
	OwnerName string         `json:"ownerName"`
	Name      string         `json:"name"`
	Picks     []scoring.Pick `json:"picks"`
	// LegacyPicks is the picksData object kept for brackets created before
	// structured picks. It is only read when Picks is empty.
	LegacyPicks json.RawMessage `json:"legacyPicks,omitempty"`
	TotalScore  int             `json:"totalScore"`
	Submitted   bool            `json:"submitted"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	// PicksUnreadable is set by a store whose picks column failed to decode.
	// Picks is empty in that case and the bracket scores 0.
	PicksUnreadable bool `json:"-"`
}

// GameResult is a recorded outcome for one tournament game
type GameResult struct {
	GameID     string    `json:"gameId"`
	Round      int       `json:"round"`
	Winner     string    `json:"winner"`
	RecordedAt time.Time `json:"recordedAt"`
}

// LeaderboardEntry is one row of a pool standings table
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	BracketID   string `json:"bracketId"`
	BracketName string `json:"bracketName"`
	OwnerName   string `json:"ownerName"`
	Score       int    `json:"score"`
}

// Leaderboard is the standings of a pool
type Leaderboard struct {
	PoolID    string             `json:"poolId"`
	MaxPoints int                `json:"maxPoints"`
	Entries   []LeaderboardEntry `json:"entries"`
}
