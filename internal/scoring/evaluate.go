package scoring

// Status describes where a pick stands against the known results
type Status string

const (
	StatusPending     Status = "pending"
	StatusCorrect     Status = "correct"
	StatusIncorrect   Status = "incorrect"
	StatusUnscoreable Status = "unscoreable"
)

// Pick is a player's ranked choices for a single game
type Pick struct {
	GameID        string   `json:"gameId"`
	Round         int      `json:"round"`
	RankedChoices []string `json:"rankedChoices"`
}

// GameResult records the winner of a game. An empty Winner means the game
// has not been decided yet.
type GameResult struct {
	GameID string `json:"gameId"`
	Round  int    `json:"round"`
	Winner string `json:"winner,omitempty"`
}

// Resolved reports whether a winner has been recorded
func (g GameResult) Resolved() bool {
	return g.Winner != ""
}

// Results is a point-in-time snapshot of game results keyed by game id
type Results struct {
	byGame map[string]GameResult
}

// NewResults copies the given results into a snapshot. Later entries for the
// same game replace earlier ones.
func NewResults(results []GameResult) Results {
	byGame := make(map[string]GameResult, len(results))
	for _, r := range results {
		byGame[r.GameID] = r
	}
	return Results{byGame: byGame}
}

// Winner returns the recorded winner for a game, if any
func (r Results) Winner(gameID string) (string, bool) {
	res, ok := r.byGame[gameID]
	if !ok || !res.Resolved() {
		return "", false
	}
	return res.Winner, true
}

// Len is the number of games in the snapshot, resolved or not
func (r Results) Len() int {
	return len(r.byGame)
}

// PickScore is the outcome of evaluating one pick
type PickScore struct {
	GameID string `json:"gameId"`
	Round  int    `json:"round"`
	Points int    `json:"points"`
	// Rank is the 0-indexed position of the winner in the ranked choices, -1 when absent
	Rank   int    `json:"rank"`
	Status Status `json:"status"`
}

// EvaluatePick scores a single pick against a results snapshot
func EvaluatePick(table *RuleTable, pick Pick, results Results) PickScore {
	score := PickScore{
		GameID: pick.GameID,
		Round:  pick.Round,
		Rank:   -1,
	}

	rule, ok := table.Rule(pick.Round)
	if !ok {
		score.Status = StatusUnscoreable
		return score
	}

	winner, ok := results.Winner(pick.GameID)
	if !ok {
		score.Status = StatusPending
		return score
	}

	score.Rank = rankOf(pick.RankedChoices, winner)
	if score.Rank < 0 {
		score.Status = StatusIncorrect
		return score
	}

	score.Status = StatusCorrect
	score.Points = rule.PointsForRank(score.Rank)
	return score
}

// rankOf returns the first position of team in choices
func rankOf(choices []string, team string) int {
	for i, c := range choices {
		if c == team {
			return i
		}
	}
	return -1
}
