package scoring

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var regions = []string{"East", "West", "South", "Midwest"}

// fullBracket builds a 63-pick bracket whose first choice for every game
// is "T-<gameID>".
func fullBracket(id string) Bracket {
	var picks []Pick
	add := func(region string, round, games, choices int) {
		for g := 1; g <= games; g++ {
			gameID := LegacyGameID(region, round, g)
			ranked := []string{"T-" + gameID}
			for c := 1; c < choices; c++ {
				ranked = append(ranked, fmt.Sprintf("Alt%d-%s", c, gameID))
			}
			picks = append(picks, Pick{GameID: gameID, Round: round, RankedChoices: ranked})
		}
	}

	for _, region := range regions {
		add(region, 1, 8, 1)
		add(region, 2, 4, 1)
		add(region, 3, 2, 2)
		add(region, 4, 1, 3)
	}
	add("FinalFour", 5, 2, 4)
	add("Championship", 6, 1, 5)

	return Bracket{ID: id, Picks: picks}
}

// roundOneResults resolves every first round game in favor of the bracket's top choice
func roundOneResults(b Bracket) Results {
	var results []GameResult
	for _, p := range b.Picks {
		if p.Round == 1 {
			results = append(results, GameResult{GameID: p.GameID, Round: 1, Winner: p.RankedChoices[0]})
		}
	}
	return NewResults(results)
}

func TestScoreBracketRoundOneOnly(t *testing.T) {
	table := DefaultRuleTable()
	bracket := fullBracket("b1")
	if len(bracket.Picks) != 63 {
		t.Fatalf("fixture has %d picks, want 63", len(bracket.Picks))
	}

	score := ScoreBracket(table, bracket, roundOneResults(bracket))

	if score.TotalScore != 64 {
		t.Errorf("TotalScore = %d, want 64", score.TotalScore)
	}
	if score.MaxPoints != 369 {
		t.Errorf("MaxPoints = %d, want 369", score.MaxPoints)
	}

	want := []RoundScore{
		{Round: 1, RoundName: "Round of 64", Earned: 64, Possible: 64, Correct: 32},
		{Round: 2, RoundName: "Round of 32", Possible: 80, Pending: 16},
		{Round: 3, RoundName: "Sweet 16", Possible: 80, Pending: 8},
		{Round: 4, RoundName: "Elite Eight", Possible: 60, Pending: 4},
		{Round: 5, RoundName: "Final Four", Possible: 50, Pending: 2},
		{Round: 6, RoundName: "Championship", Possible: 35, Pending: 1},
	}
	if diff := cmp.Diff(want, score.Rounds); diff != "" {
		t.Errorf("round breakdown mismatch (-want +got):\n%s", diff)
	}
}

func TestScoreBracketPerfect(t *testing.T) {
	table := DefaultRuleTable()
	bracket := fullBracket("perfect")

	var results []GameResult
	for _, p := range bracket.Picks {
		results = append(results, GameResult{GameID: p.GameID, Round: p.Round, Winner: p.RankedChoices[0]})
	}

	score := ScoreBracket(table, bracket, NewResults(results))
	if score.TotalScore != table.MaxPointsTotal() {
		t.Errorf("perfect bracket scored %d, want %d", score.TotalScore, table.MaxPointsTotal())
	}
}

func TestScoreBracketIdempotent(t *testing.T) {
	table := DefaultRuleTable()
	bracket := fullBracket("b1")
	results := roundOneResults(bracket)

	first := ScoreBracket(table, bracket, results)
	second := ScoreBracket(table, bracket, results)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated scoring differs (-first +second):\n%s", diff)
	}
}

func TestScoreBracketUnscoreable(t *testing.T) {
	table := DefaultRuleTable()
	bracket := Bracket{
		ID: "odd",
		Picks: []Pick{
			{GameID: "East-r1-g1", Round: 1, RankedChoices: []string{"A"}},
			{GameID: "Bonus-r7-g1", Round: 7, RankedChoices: []string{"A"}},
		},
	}
	results := NewResults([]GameResult{
		{GameID: "East-r1-g1", Round: 1, Winner: "A"},
		{GameID: "Bonus-r7-g1", Round: 7, Winner: "A"},
	})

	score := ScoreBracket(table, bracket, results)

	if score.TotalScore != 2 {
		t.Errorf("TotalScore = %d, want 2", score.TotalScore)
	}
	if score.Unscoreable != 1 {
		t.Errorf("Unscoreable = %d, want 1", score.Unscoreable)
	}
	if len(score.Picks) != 2 || score.Picks[1].Status != StatusUnscoreable {
		t.Errorf("expected second pick to be unscoreable, got %+v", score.Picks)
	}
}

func TestScoreBracketEmpty(t *testing.T) {
	score := ScoreBracket(DefaultRuleTable(), Bracket{ID: "empty"}, NewResults(nil))

	if score.TotalScore != 0 {
		t.Errorf("TotalScore = %d, want 0", score.TotalScore)
	}
	if len(score.Rounds) != MaxRound {
		t.Errorf("expected %d round entries, got %d", MaxRound, len(score.Rounds))
	}
}

func TestScoreBracketNeverExceedsMax(t *testing.T) {
	table := DefaultRuleTable()
	bracket := fullBracket("b1")

	// Every game won by the lowest ranked choice
	var results []GameResult
	for _, p := range bracket.Picks {
		results = append(results, GameResult{GameID: p.GameID, Round: p.Round, Winner: p.RankedChoices[len(p.RankedChoices)-1]})
	}

	score := ScoreBracket(table, bracket, NewResults(results))
	if score.TotalScore < 0 || score.TotalScore > score.MaxPoints {
		t.Errorf("TotalScore %d outside 0..%d", score.TotalScore, score.MaxPoints)
	}
	for _, rs := range score.Rounds {
		if rs.Earned > rs.Possible {
			t.Errorf("round %d earned %d of %d possible", rs.Round, rs.Earned, rs.Possible)
		}
	}
}

func TestScorePool(t *testing.T) {
	table := DefaultRuleTable()
	first := fullBracket("b1")
	results := roundOneResults(first)

	second := fullBracket("b2")
	for i := range second.Picks {
		if second.Picks[i].Round == 1 {
			second.Picks[i].RankedChoices = []string{"nobody"}
		}
	}

	brackets := []Bracket{first, second, {ID: "b3"}}

	for _, workers := range []int{0, 1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			scores, err := ScorePool(context.Background(), table, brackets, results, workers)
			if err != nil {
				t.Fatalf("ScorePool() failed: %v", err)
			}

			got := make(map[string]int)
			var order []string
			for _, s := range scores {
				got[s.BracketID] = s.TotalScore
				order = append(order, s.BracketID)
			}

			if diff := cmp.Diff([]string{"b1", "b2", "b3"}, order); diff != "" {
				t.Errorf("output order mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(map[string]int{"b1": 64, "b2": 0, "b3": 0}, got); diff != "" {
				t.Errorf("scores mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScorePoolMatchesSequential(t *testing.T) {
	table := DefaultRuleTable()
	var brackets []Bracket
	for i := 0; i < 20; i++ {
		brackets = append(brackets, fullBracket(fmt.Sprintf("b%d", i)))
	}
	results := roundOneResults(brackets[0])

	scores, err := ScorePool(context.Background(), table, brackets, results, 3)
	if err != nil {
		t.Fatalf("ScorePool() failed: %v", err)
	}

	for i, b := range brackets {
		want := ScoreBracket(table, b, results)
		if diff := cmp.Diff(want, scores[i]); diff != "" {
			t.Errorf("bracket %s differs from sequential score (-want +got):\n%s", b.ID, diff)
		}
	}
}

func TestScorePoolCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ScorePool(ctx, DefaultRuleTable(), []Bracket{fullBracket("b1")}, NewResults(nil), 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
