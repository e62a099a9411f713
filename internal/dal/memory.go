package dal

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Traviscatt/picknroll-sub000/internal/models"
)

// MemoryDAL implements PoolDAL using in-memory storage
type MemoryDAL struct {
	mu       sync.RWMutex
	pools    []models.Pool
	brackets map[string]models.Bracket
	order    []string // bracket ids in insertion order
	results  map[string]models.GameResult
}

// NewMemoryDAL creates a new in-memory data access layer
func NewMemoryDAL() *MemoryDAL {
	return &MemoryDAL{
		brackets: make(map[string]models.Bracket),
		results:  make(map[string]models.GameResult),
	}
}

func (m *MemoryDAL) CreatePool(name string) (*models.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool := models.Pool{
		ID:        genID("pool"),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	m.pools = append(m.pools, pool)
	return &pool, nil
}

func (m *MemoryDAL) GetPool(id string) (*models.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.pools {
		if m.pools[i].ID == id {
			pool := m.pools[i]
			return &pool, nil
		}
	}
	return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
}

func (m *MemoryDAL) ListPools() ([]models.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pools := make([]models.Pool, len(m.pools))
	copy(pools, m.pools)
	return pools, nil
}

func (m *MemoryDAL) hasPool(id string) bool {
	for i := range m.pools {
		if m.pools[i].ID == id {
			return true
		}
	}
	return false
}

func (m *MemoryDAL) SaveBracket(b *models.Bracket) (*models.Bracket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasPool(b.PoolID) {
		return nil, fmt.Errorf("pool %s: %w", b.PoolID, ErrNotFound)
	}

	now := time.Now().UTC()
	saved := copyBracket(*b)

	if existing, ok := m.brackets[saved.ID]; ok && saved.ID != "" {
		saved.CreatedAt = existing.CreatedAt
		// Totals only change through UpdateScores
		saved.TotalScore = existing.TotalScore
	} else {
		if saved.ID == "" {
			saved.ID = genID("bracket")
		}
		saved.CreatedAt = now
		saved.TotalScore = 0
		m.order = append(m.order, saved.ID)
	}
	saved.UpdatedAt = now

	m.brackets[saved.ID] = saved

	out := copyBracket(saved)
	return &out, nil
}

func (m *MemoryDAL) GetBracket(id string) (*models.Bracket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.brackets[id]
	if !ok {
		return nil, fmt.Errorf("bracket %s: %w", id, ErrNotFound)
	}
	out := copyBracket(b)
	return &out, nil
}

func (m *MemoryDAL) ListBrackets(poolID string) ([]models.Bracket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	brackets := []models.Bracket{}
	for _, id := range m.order {
		b := m.brackets[id]
		if b.PoolID == poolID {
			brackets = append(brackets, copyBracket(b))
		}
	}
	return brackets, nil
}

func (m *MemoryDAL) RecordResult(r models.GameResult) (*models.GameResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	m.results[r.GameID] = r
	return &r, nil
}

func (m *MemoryDAL) ClearResult(gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.results[gameID]; !ok {
		return fmt.Errorf("result %s: %w", gameID, ErrNotFound)
	}
	delete(m.results, gameID)
	return nil
}

func (m *MemoryDAL) ListResults() ([]models.GameResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]models.GameResult, 0, len(m.results))
	for _, r := range m.results {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Round != results[j].Round {
			return results[i].Round < results[j].Round
		}
		return results[i].GameID < results[j].GameID
	})
	return results, nil
}

func (m *MemoryDAL) UpdateScores(scores map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for id, score := range scores {
		b, ok := m.brackets[id]
		if !ok {
			continue
		}
		b.TotalScore = score
		b.UpdatedAt = now
		m.brackets[id] = b
	}
	return nil
}

func (m *MemoryDAL) Leaderboard(poolID string) ([]models.LeaderboardEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.hasPool(poolID) {
		return nil, fmt.Errorf("pool %s: %w", poolID, ErrNotFound)
	}

	entries := []models.LeaderboardEntry{}
	for _, id := range m.order {
		b := m.brackets[id]
		if b.PoolID != poolID || !b.Submitted {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{
			BracketID:   b.ID,
			BracketName: b.Name,
			OwnerName:   b.OwnerName,
			Score:       b.TotalScore,
		})
	}
	return rankEntries(entries), nil
}

func (m *MemoryDAL) Ping() error {
	return nil
}
