package scoring

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseLegacyPicks(t *testing.T) {
	raw := []byte(`{
		"South-r1-g3": "Duke",
		"East-r3-g1": ["UNC", "Kansas"],
		"Championship-r6-g1": ["Duke", "", "UConn"],
		"East-r1-g2": "",
		"bogus": "Duke",
		"West-r2-g1": 17
	}`)

	got, err := ParseLegacyPicks(raw)
	if err != nil {
		t.Fatalf("ParseLegacyPicks() failed: %v", err)
	}

	want := LegacyParse{
		Picks: []Pick{
			{GameID: "South-r1-g3", Round: 1, RankedChoices: []string{"Duke"}},
			{GameID: "East-r3-g1", Round: 3, RankedChoices: []string{"UNC", "Kansas"}},
			{GameID: "Championship-r6-g1", Round: 6, RankedChoices: []string{"Duke", "UConn"}},
		},
		Skipped: 2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseLegacyPicks() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseLegacyPicksEmpty(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte(""), []byte("  "), []byte("{}")} {
		got, err := ParseLegacyPicks(raw)
		if err != nil {
			t.Errorf("ParseLegacyPicks(%q) failed: %v", raw, err)
		}
		if len(got.Picks) != 0 || got.Skipped != 0 {
			t.Errorf("ParseLegacyPicks(%q) = %+v, want empty", raw, got)
		}
	}
}

func TestParseLegacyPicksMalformed(t *testing.T) {
	for _, raw := range []string{`{"South-r1-g3":`, `["Duke"]`, `"Duke"`} {
		_, err := ParseLegacyPicks([]byte(raw))
		if !errors.Is(err, ErrLegacyPicks) {
			t.Errorf("ParseLegacyPicks(%s): expected ErrLegacyPicks, got %v", raw, err)
		}
	}
}

func TestParseLegacyPicksScores(t *testing.T) {
	parsed, err := ParseLegacyPicks([]byte(`{"East-r3-g1": ["UNC", "Kansas"]}`))
	if err != nil {
		t.Fatalf("ParseLegacyPicks() failed: %v", err)
	}

	results := NewResults([]GameResult{{GameID: "East-r3-g1", Round: 3, Winner: "Kansas"}})
	score := ScoreBracket(DefaultRuleTable(), Bracket{ID: "legacy", Picks: parsed.Picks}, results)
	if score.TotalScore != 5 {
		t.Errorf("TotalScore = %d, want 5", score.TotalScore)
	}
}

func TestLegacyGameID(t *testing.T) {
	if got := LegacyGameID("Midwest", 2, 4); got != "Midwest-r2-g4" {
		t.Errorf("LegacyGameID() = %q", got)
	}
	if round, ok := legacyRound(LegacyGameID("Final Four", 5, 1)); !ok || round != 5 {
		t.Errorf("legacyRound() = %d, %v", round, ok)
	}
}
