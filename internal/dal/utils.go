package dal

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Traviscatt/picknroll-sub000/internal/models"
	"github.com/Traviscatt/picknroll-sub000/internal/scoring"
)

func genID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// rankEntries orders entries by score, then bracket name, and assigns
// competition ranks so tied scores share a rank (1, 1, 3).
func rankEntries(entries []models.LeaderboardEntry) []models.LeaderboardEntry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].BracketName != entries[j].BracketName {
			return entries[i].BracketName < entries[j].BracketName
		}
		return entries[i].BracketID < entries[j].BracketID
	})

	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
	return entries
}

// copyBracket detaches a bracket from storage so callers cannot mutate it
func copyBracket(b models.Bracket) models.Bracket {
	if b.Picks != nil {
		picks := make([]scoring.Pick, len(b.Picks))
		for i, p := range b.Picks {
			p.RankedChoices = append([]string(nil), p.RankedChoices...)
			picks[i] = p
		}
		b.Picks = picks
	}
	if b.LegacyPicks != nil {
		b.LegacyPicks = append([]byte(nil), b.LegacyPicks...)
	}
	return b
}
