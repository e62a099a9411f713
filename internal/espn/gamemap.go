package espn

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Traviscatt/picknroll-sub000/internal/scoring"
)

// LoadGameIDs reads a YAML mapping of feed event ids to bracket game ids:
//
//	"401638580": East-r1-g1
//	"401638581": East-r1-g2
func LoadGameIDs(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read game map: %w", err)
	}

	var ids map[string]string
	if err := yaml.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode game map: %w", err)
	}

	for feedID, gameID := range ids {
		if _, ok := scoring.GameRound(gameID); !ok {
			return nil, fmt.Errorf("game map entry %s: %q is not a bracket game id", feedID, gameID)
		}
		ids[feedID] = strings.TrimSpace(gameID)
	}
	return ids, nil
}
