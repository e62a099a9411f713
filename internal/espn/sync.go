package espn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Traviscatt/picknroll-sub000/internal/dal"
	"github.com/Traviscatt/picknroll-sub000/internal/logger"
	"github.com/Traviscatt/picknroll-sub000/internal/metrics"
	"github.com/Traviscatt/picknroll-sub000/internal/models"
	"github.com/Traviscatt/picknroll-sub000/internal/pubsub"
	"github.com/Traviscatt/picknroll-sub000/internal/scoring"
)

// TeamKey picks the identifier bracket choices use for a team
type TeamKey func(Team) string

// Abbreviation keys teams by their scoreboard abbreviation
func Abbreviation(t Team) string { return t.Abbreviation }

// Syncer records completed games from the feed as results
type Syncer struct {
	client   *Client
	dal      dal.PoolDAL
	events   pubsub.Publisher
	metrics  *metrics.Metrics
	gameIDs  map[string]string
	teamKey  TeamKey
	interval time.Duration
}

// Option configures a Syncer
type Option func(*Syncer)

// WithPublisher announces recorded results so pools get rescored
func WithPublisher(p pubsub.Publisher) Option {
	return func(s *Syncer) { s.events = p }
}

// WithMetrics counts polls and recorded results on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Syncer) { s.metrics = m }
}

// WithGameIDs maps feed event or competition ids onto bracket game ids
// for games whose notes carry no usable id
func WithGameIDs(ids map[string]string) Option {
	return func(s *Syncer) { s.gameIDs = ids }
}

// WithTeamKey overrides how a winner is turned into a team id
func WithTeamKey(k TeamKey) Option {
	return func(s *Syncer) { s.teamKey = k }
}

// WithInterval sets the polling period
func WithInterval(d time.Duration) Option {
	return func(s *Syncer) { s.interval = d }
}

// NewSyncer creates a feed syncer writing to d
func NewSyncer(client *Client, d dal.PoolDAL, opts ...Option) *Syncer {
	s := &Syncer{
		client:   client,
		dal:      d,
		teamKey:  Abbreviation,
		interval: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Results maps every completed tournament game on the board to a result.
// Games without a resolvable id or winner are skipped.
func (s *Syncer) Results(board *Scoreboard) []models.GameResult {
	var out []models.GameResult
	for _, event := range board.Events {
		for _, comp := range event.Competitions {
			if !comp.completed(event) {
				continue
			}
			gameID, round, ok := s.gameID(event, comp)
			if !ok {
				logger.Debug("Feed game has no bracket id", "eventId", event.ID, "name", event.Name)
				continue
			}
			winner, ok := comp.winner()
			if !ok {
				logger.Warn("Completed feed game has no winner", "eventId", event.ID, "gameId", gameID)
				continue
			}
			team := strings.TrimSpace(s.teamKey(winner.Team))
			if team == "" {
				continue
			}
			out = append(out, models.GameResult{GameID: gameID, Round: round, Winner: team})
		}
	}
	return out
}

func (s *Syncer) gameID(event Event, comp Competition) (string, int, bool) {
	candidates := make([]string, 0, len(comp.Notes)+2)
	if id, ok := s.gameIDs[comp.ID]; ok {
		candidates = append(candidates, id)
	}
	if id, ok := s.gameIDs[event.ID]; ok {
		candidates = append(candidates, id)
	}
	for _, note := range comp.Notes {
		candidates = append(candidates, note.Headline)
	}

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		round, ok := scoring.GameRound(c)
		if ok && round >= scoring.MinRound && round <= scoring.MaxRound {
			return c, round, true
		}
	}
	return "", 0, false
}

// Sync polls the feed once and records every result that is new or
// changed. It returns the number of results written.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	board, err := s.client.Fetch(ctx)
	if err != nil {
		return 0, err
	}

	existing, err := s.dal.ListResults()
	if err != nil {
		return 0, fmt.Errorf("failed to load results: %w", err)
	}
	known := make(map[string]string, len(existing))
	for _, r := range existing {
		known[r.GameID] = r.Winner
	}

	var changed []string
	for _, r := range s.Results(board) {
		if known[r.GameID] == r.Winner {
			continue
		}
		if _, err := s.dal.RecordResult(r); err != nil {
			return len(changed), fmt.Errorf("failed to record %s: %w", r.GameID, err)
		}
		s.metrics.ObserveResult("feed")
		logger.Info("Feed result recorded", "game_id", r.GameID, "round", r.Round, "winner", r.Winner, "previous", known[r.GameID])
		known[r.GameID] = r.Winner
		changed = append(changed, r.GameID)
	}

	if len(changed) > 0 && s.events != nil {
		s.events.Publish(pubsub.Event{
			Type: pubsub.EventResultsRecorded,
			Payload: map[string]interface{}{
				"source": "feed",
				"games":  changed,
			},
		})
	}
	return len(changed), nil
}

// Run polls the feed every interval until ctx is done
func (s *Syncer) Run(ctx context.Context) {
	logger.Info("Results feed started", "url", s.client.URL(), "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		n, err := s.Sync(ctx)
		s.metrics.ObservePoll(err)
		if err != nil {
			logger.Warn("Results feed poll failed", "error", err)
		} else if n > 0 {
			logger.Info("Results feed updated", "changed", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
