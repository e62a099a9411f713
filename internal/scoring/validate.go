package scoring

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPick is returned for a pick that cannot be stored
var ErrInvalidPick = errors.New("invalid pick")

// ValidatePick checks a submitted pick against the table: the round must be
// configured, the choice count must fit the round and every team must be
// named once. A game id carrying a round must agree with the pick's round.
func (t *RuleTable) ValidatePick(p Pick) error {
	gameID := strings.TrimSpace(p.GameID)
	if gameID == "" {
		return fmt.Errorf("%w: gameId is required", ErrInvalidPick)
	}

	rule, ok := t.Rule(p.Round)
	if !ok {
		return fmt.Errorf("%w: game %s: round %d has no rule", ErrInvalidPick, gameID, p.Round)
	}
	if encoded, ok := GameRound(gameID); ok && encoded != p.Round {
		return fmt.Errorf("%w: game %s belongs to round %d, not %d", ErrInvalidPick, gameID, encoded, p.Round)
	}

	n := len(p.RankedChoices)
	if n == 0 {
		return fmt.Errorf("%w: game %s has no choices", ErrInvalidPick, gameID)
	}
	if n > rule.Choices {
		return fmt.Errorf("%w: game %s has %d choices, round %d allows %d", ErrInvalidPick, gameID, n, p.Round, rule.Choices)
	}

	seen := make(map[string]bool, n)
	for _, team := range p.RankedChoices {
		team = strings.TrimSpace(team)
		if team == "" {
			return fmt.Errorf("%w: game %s has an empty choice", ErrInvalidPick, gameID)
		}
		if seen[team] {
			return fmt.Errorf("%w: game %s ranks %s twice", ErrInvalidPick, gameID, team)
		}
		seen[team] = true
	}
	return nil
}

// ValidatePicks checks every pick and rejects a game picked more than once
func (t *RuleTable) ValidatePicks(picks []Pick) error {
	games := make(map[string]bool, len(picks))
	for _, p := range picks {
		if err := t.ValidatePick(p); err != nil {
			return err
		}
		gameID := strings.TrimSpace(p.GameID)
		if games[gameID] {
			return fmt.Errorf("%w: game %s picked twice", ErrInvalidPick, gameID)
		}
		games[gameID] = true
	}
	return nil
}
