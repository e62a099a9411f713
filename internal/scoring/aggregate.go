package scoring

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Bracket is the scoring view of a player's bracket
type Bracket struct {
	ID    string
	Picks []Pick
}

// RoundScore is the per-round breakdown of a bracket score
type RoundScore struct {
	Round     int    `json:"round"`
	RoundName string `json:"roundName"`
	Earned    int    `json:"earned"`
	Possible  int    `json:"possible"`
	Correct   int    `json:"correct"`
	Incorrect int    `json:"incorrect"`
	Pending   int    `json:"pending"`
}

// BracketScore is the full result of scoring one bracket
type BracketScore struct {
	BracketID   string       `json:"bracketId"`
	TotalScore  int          `json:"totalScore"`
	MaxPoints   int          `json:"maxPoints"`
	Rounds      []RoundScore `json:"rounds"`
	Picks       []PickScore  `json:"picks"`
	Unscoreable int          `json:"unscoreable"`
}

// ScoreBracket evaluates every pick in the bracket and sums the points.
// It never mutates its inputs, so repeated calls yield identical output.
func ScoreBracket(table *RuleTable, bracket Bracket, results Results) BracketScore {
	rules := table.Rules()
	rounds := make([]RoundScore, len(rules))
	index := make(map[int]int, len(rules))
	for i, r := range rules {
		rounds[i] = RoundScore{
			Round:     r.Round,
			RoundName: r.RoundName,
			Possible:  table.MaxPointsForRound(r.Round),
		}
		index[r.Round] = i
	}

	out := BracketScore{
		BracketID: bracket.ID,
		MaxPoints: table.MaxPointsTotal(),
		Picks:     make([]PickScore, 0, len(bracket.Picks)),
	}

	for _, pick := range bracket.Picks {
		ps := EvaluatePick(table, pick, results)
		out.Picks = append(out.Picks, ps)

		if ps.Status == StatusUnscoreable {
			out.Unscoreable++
			continue
		}

		rs := &rounds[index[ps.Round]]
		rs.Earned += ps.Points
		switch ps.Status {
		case StatusCorrect:
			rs.Correct++
		case StatusIncorrect:
			rs.Incorrect++
		case StatusPending:
			rs.Pending++
		}
		out.TotalScore += ps.Points
	}

	out.Rounds = rounds
	return out
}

// ScorePool scores brackets concurrently against a single results snapshot.
// The returned slice lines up with the input; workers <= 0 means one per bracket.
func ScorePool(ctx context.Context, table *RuleTable, brackets []Bracket, results Results, workers int) ([]BracketScore, error) {
	scores := make([]BracketScore, len(brackets))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i := range brackets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			scores[i] = ScoreBracket(table, brackets[i], results)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
