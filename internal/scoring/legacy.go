package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrLegacyPicks is returned when a stored picks blob cannot be decoded
var ErrLegacyPicks = errors.New("malformed legacy picks")

// legacyKey matches keys like "South-r1-g3" or "FinalFour-r5-g1"
var legacyKey = regexp.MustCompile(`^([A-Za-z][A-Za-z ]*)-r(\d+)-g(\d+)$`)

// LegacyParse is the outcome of converting a picks blob
type LegacyParse struct {
	Picks []Pick
	// Skipped counts entries whose key or value could not be understood
	Skipped int
}

// ParseLegacyPicks converts the JSON object stored for brackets created
// before structured picks existed. Values may be a single team id or an
// ordered array of team ids.
func ParseLegacyPicks(raw []byte) (LegacyParse, error) {
	var out LegacyParse

	if len(strings.TrimSpace(string(raw))) == 0 {
		return out, nil
	}

	var blob map[string]json.RawMessage
	if err := json.Unmarshal(raw, &blob); err != nil {
		return out, fmt.Errorf("%w: %v", ErrLegacyPicks, err)
	}

	for key, value := range blob {
		round, ok := legacyRound(key)
		if !ok {
			out.Skipped++
			continue
		}

		choices, ok := legacyChoices(value)
		if !ok {
			out.Skipped++
			continue
		}
		if len(choices) == 0 {
			continue
		}

		out.Picks = append(out.Picks, Pick{
			GameID:        key,
			Round:         round,
			RankedChoices: choices,
		})
	}

	sort.Slice(out.Picks, func(i, j int) bool {
		if out.Picks[i].Round != out.Picks[j].Round {
			return out.Picks[i].Round < out.Picks[j].Round
		}
		return out.Picks[i].GameID < out.Picks[j].GameID
	})

	return out, nil
}

// LegacyGameID builds the key used by the picks blob for a game
func LegacyGameID(region string, round, game int) string {
	return fmt.Sprintf("%s-r%d-g%d", region, round, game)
}

// GameRound extracts the round from a game id of the form
// "<Region>-r<round>-g<game>"
func GameRound(gameID string) (int, bool) {
	return legacyRound(strings.TrimSpace(gameID))
}

func legacyRound(key string) (int, bool) {
	m := legacyKey.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	round, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	return round, true
}

func legacyChoices(value json.RawMessage) ([]string, bool) {
	var single string
	if err := json.Unmarshal(value, &single); err == nil {
		if single == "" {
			return nil, true
		}
		return []string{single}, true
	}

	var many []string
	if err := json.Unmarshal(value, &many); err != nil {
		return nil, false
	}

	choices := make([]string, 0, len(many))
	for _, c := range many {
		if c != "" {
			choices = append(choices, c)
		}
	}
	return choices, true
}
