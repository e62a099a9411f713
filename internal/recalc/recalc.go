package recalc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Traviscatt/picknroll-sub000/internal/dal"
	"github.com/Traviscatt/picknroll-sub000/internal/logger"
	"github.com/Traviscatt/picknroll-sub000/internal/metrics"
	"github.com/Traviscatt/picknroll-sub000/internal/models"
	"github.com/Traviscatt/picknroll-sub000/internal/pubsub"
	"github.com/Traviscatt/picknroll-sub000/internal/scoring"
)

// History receives the totals written by each pass
type History interface {
	RecordScores(ctx context.Context, poolID string, scores map[string]int, at time.Time) error
}

// Summary describes one pool recalculation
type Summary struct {
	PoolID         string `json:"poolId"`
	Brackets       int    `json:"brackets"`
	Unscoreable    int    `json:"unscoreable"`
	LegacyFailures int    `json:"legacyFailures"`
	// UnreadablePicks counts brackets whose stored picks could not be decoded
	UnreadablePicks int            `json:"unreadablePicks"`
	Scores          map[string]int `json:"scores"`
	Duration        time.Duration  `json:"duration"`
}

// Service recomputes bracket totals from the stored picks and results
type Service struct {
	dal     dal.PoolDAL
	table   *scoring.RuleTable
	events  pubsub.Publisher
	history History
	metrics *metrics.Metrics
	workers int
	now     func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithPublisher announces each finished pass
func WithPublisher(p pubsub.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithHistory records every pass's totals
func WithHistory(h History) Option {
	return func(s *Service) { s.history = h }
}

// WithMetrics observes passes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithWorkers bounds how many brackets are scored at once. Zero or less
// means unbounded.
func WithWorkers(n int) Option {
	return func(s *Service) { s.workers = n }
}

// New creates a recalculation service
func New(d dal.PoolDAL, table *scoring.RuleTable, opts ...Option) *Service {
	s := &Service{
		dal:   d,
		table: table,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Table returns the rule table the service scores with
func (s *Service) Table() *scoring.RuleTable {
	return s.table
}

// snapshot reads the results once so every bracket in a pass sees the same state
func (s *Service) snapshot() (scoring.Results, error) {
	stored, err := s.dal.ListResults()
	if err != nil {
		return scoring.Results{}, fmt.Errorf("failed to load results: %w", err)
	}

	results := make([]scoring.GameResult, len(stored))
	for i, r := range stored {
		results[i] = scoring.GameResult{GameID: r.GameID, Round: r.Round, Winner: r.Winner}
	}
	return scoring.NewResults(results), nil
}

// engineBracket converts a stored bracket into the form the scoring engine
// reads. Structured picks win; the legacy blob is only consulted without them.
// A bracket whose picks could not be read from storage scores nothing.
func engineBracket(b models.Bracket) (scoring.Bracket, bool) {
	out := scoring.Bracket{ID: b.ID, Picks: b.Picks}
	if b.PicksUnreadable || len(b.Picks) > 0 || len(b.LegacyPicks) == 0 {
		return out, false
	}

	parsed, err := scoring.ParseLegacyPicks(b.LegacyPicks)
	if err != nil {
		logger.Warn("Legacy picks could not be parsed, bracket scores 0", "bracketId", b.ID, "error", err)
		return out, true
	}
	if parsed.Skipped > 0 {
		logger.Warn("Skipped unreadable legacy picks", "bracketId", b.ID, "skipped", parsed.Skipped)
	}
	out.Picks = parsed.Picks
	return out, false
}

// Recalculate rescores every bracket in a pool and persists the totals.
// Running it twice against unchanged data writes identical totals.
func (s *Service) Recalculate(ctx context.Context, poolID string) (*Summary, error) {
	if _, err := s.dal.GetPool(poolID); err != nil {
		return nil, err
	}

	results, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return s.recalculate(ctx, poolID, results)
}

// RecalculateAll rescores every pool against a single results snapshot.
// A failing pool does not stop the others; their errors are joined.
func (s *Service) RecalculateAll(ctx context.Context) ([]Summary, error) {
	pools, err := s.dal.ListPools()
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}

	results, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	var summaries []Summary
	var errs []error
	for _, pool := range pools {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}
		summary, err := s.recalculate(ctx, pool.ID, results)
		if err != nil {
			errs = append(errs, fmt.Errorf("pool %s: %w", pool.ID, err))
			continue
		}
		summaries = append(summaries, *summary)
	}
	return summaries, errors.Join(errs...)
}

func (s *Service) recalculate(ctx context.Context, poolID string, results scoring.Results) (summary *Summary, err error) {
	start := s.now()
	defer func() {
		if summary != nil {
			s.metrics.ObserveRecalc(metrics.Pass{
				Brackets:        summary.Brackets,
				Unscoreable:     summary.Unscoreable,
				LegacyFailures:  summary.LegacyFailures,
				UnreadablePicks: summary.UnreadablePicks,
				Duration:        summary.Duration,
			}, nil)
		} else {
			s.metrics.ObserveRecalc(metrics.Pass{}, err)
		}
	}()

	stored, err := s.dal.ListBrackets(poolID)
	if err != nil {
		return nil, fmt.Errorf("failed to load brackets: %w", err)
	}

	summary = &Summary{PoolID: poolID, Brackets: len(stored)}
	brackets := make([]scoring.Bracket, len(stored))
	for i, b := range stored {
		if b.PicksUnreadable {
			summary.UnreadablePicks++
		}
		var failed bool
		brackets[i], failed = engineBracket(b)
		if failed {
			summary.LegacyFailures++
		}
	}

	scores, err := scoring.ScorePool(ctx, s.table, brackets, results, s.workers)
	if err != nil {
		return nil, err
	}

	summary.Scores = make(map[string]int, len(scores))
	for _, score := range scores {
		summary.Scores[score.BracketID] = score.TotalScore
		if score.Unscoreable > 0 {
			logger.Warn("Bracket has picks in unconfigured rounds", "bracketId", score.BracketID, "unscoreable", score.Unscoreable)
			summary.Unscoreable += score.Unscoreable
		}
	}

	if err := s.dal.UpdateScores(summary.Scores); err != nil {
		return nil, fmt.Errorf("failed to persist scores: %w", err)
	}

	finished := s.now()
	summary.Duration = finished.Sub(start)

	if s.history != nil {
		if err := s.history.RecordScores(ctx, poolID, summary.Scores, finished); err != nil {
			logger.Warn("Failed to record score history", "poolId", poolID, "error", err)
		}
	}

	if s.events != nil {
		s.events.Publish(pubsub.Event{
			Type:   pubsub.EventScoresRecalculated,
			PoolID: poolID,
			Payload: map[string]interface{}{
				"brackets":    summary.Brackets,
				"unscoreable": summary.Unscoreable,
				"maxPoints":   s.table.MaxPointsTotal(),
			},
		})
	}

	logger.Info("Pool recalculated",
		"poolId", poolID,
		"brackets", summary.Brackets,
		"unscoreable", summary.Unscoreable,
		"legacyFailures", summary.LegacyFailures,
		"unreadablePicks", summary.UnreadablePicks,
		"duration", summary.Duration,
	)
	return summary, nil
}

// BracketScore computes the live breakdown of one bracket without writing anything
func (s *Service) BracketScore(ctx context.Context, bracketID string) (*scoring.BracketScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := s.dal.GetBracket(bracketID)
	if err != nil {
		return nil, err
	}

	results, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	eb, _ := engineBracket(*b)
	score := scoring.ScoreBracket(s.table, eb, results)
	return &score, nil
}

// Run recalculates every pool whenever a result is recorded or cleared,
// until ctx is done or events is closed. Events are read continuously so
// the subscription never backs up during a pass, and any result changes
// that arrive while a pass runs trigger exactly one more pass.
func (s *Service) Run(ctx context.Context, events <-chan pubsub.Event) {
	dirty := make(chan struct{}, 1)
	go func() {
		defer close(dirty)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if !isResultEvent(event) {
					continue
				}
				select {
				case dirty <- struct{}{}:
				default:
				}
			}
		}
	}()

	for range dirty {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.RecalculateAll(ctx); err != nil {
			logger.Error("Recalculation after result change failed", "error", err)
		}
	}
}

func isResultEvent(e pubsub.Event) bool {
	return e.Type == pubsub.EventResultsRecorded || e.Type == pubsub.EventResultsCleared
}
