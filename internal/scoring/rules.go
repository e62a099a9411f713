package scoring

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRule is returned when a rule table violates its invariants
var ErrInvalidRule = errors.New("invalid round rule")

const (
	// MinRound and MaxRound bound the tournament rounds a table must cover
	MinRound = 1
	MaxRound = 6

	// MaxChoices is the largest number of ranked choices any round may allow
	MaxChoices = 5
)

// RoundRule describes how a single round is scored
type RoundRule struct {
	Round           int    `json:"round" yaml:"round"`
	RoundName       string `json:"roundName" yaml:"roundName"`
	GamesInRound    int    `json:"gamesInRound" yaml:"gamesInRound"`
	Choices         int    `json:"choices" yaml:"choices"`
	PointsPerChoice []int  `json:"pointsPerChoice" yaml:"pointsPerChoice"`
}

// TopPoints is the reward for a correct first choice
func (r RoundRule) TopPoints() int {
	if len(r.PointsPerChoice) == 0 {
		return 0
	}
	return r.PointsPerChoice[0]
}

// PointsForRank returns the value of a correct pick at the given rank.
// Ranks outside the table are worth nothing.
func (r RoundRule) PointsForRank(rank int) int {
	if rank < 0 || rank >= len(r.PointsPerChoice) {
		return 0
	}
	return r.PointsPerChoice[rank]
}

func (r RoundRule) validate() error {
	if r.Round < MinRound || r.Round > MaxRound {
		return fmt.Errorf("%w: round %d outside %d..%d", ErrInvalidRule, r.Round, MinRound, MaxRound)
	}
	if r.GamesInRound <= 0 {
		return fmt.Errorf("%w: round %d must have at least one game", ErrInvalidRule, r.Round)
	}
	if r.Choices < 1 || r.Choices > MaxChoices {
		return fmt.Errorf("%w: round %d allows %d choices, want 1..%d", ErrInvalidRule, r.Round, r.Choices, MaxChoices)
	}
	if len(r.PointsPerChoice) != r.Choices {
		return fmt.Errorf("%w: round %d has %d point values for %d choices", ErrInvalidRule, r.Round, len(r.PointsPerChoice), r.Choices)
	}
	for i, pts := range r.PointsPerChoice {
		if pts <= 0 {
			return fmt.Errorf("%w: round %d choice %d is worth %d points", ErrInvalidRule, r.Round, i+1, pts)
		}
		if i > 0 && pts >= r.PointsPerChoice[i-1] {
			return fmt.Errorf("%w: round %d point values must be strictly decreasing", ErrInvalidRule, r.Round)
		}
	}
	return nil
}

// RuleTable is the immutable set of round rules used for a scoring pass
type RuleTable struct {
	rules map[int]RoundRule
	order []int
}

// NewRuleTable validates the given rules and builds a table from them.
// Rounds must be unique and cover MinRound..MaxRound without gaps.
func NewRuleTable(rules []RoundRule) (*RuleTable, error) {
	t := &RuleTable{rules: make(map[int]RoundRule, len(rules))}

	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, dup := t.rules[r.Round]; dup {
			return nil, fmt.Errorf("%w: round %d defined twice", ErrInvalidRule, r.Round)
		}
		// Own the slice so later edits by the caller cannot leak in
		r.PointsPerChoice = append([]int(nil), r.PointsPerChoice...)
		t.rules[r.Round] = r
		t.order = append(t.order, r.Round)
	}

	for round := MinRound; round <= MaxRound; round++ {
		if _, ok := t.rules[round]; !ok {
			return nil, fmt.Errorf("%w: round %d is not configured", ErrInvalidRule, round)
		}
	}

	sort.Ints(t.order)
	return t, nil
}

// DefaultRules returns the standard multi-choice scoring configuration
func DefaultRules() []RoundRule {
	return []RoundRule{
		{Round: 1, RoundName: "Round of 64", GamesInRound: 32, Choices: 1, PointsPerChoice: []int{2}},
		{Round: 2, RoundName: "Round of 32", GamesInRound: 16, Choices: 1, PointsPerChoice: []int{5}},
		{Round: 3, RoundName: "Sweet 16", GamesInRound: 8, Choices: 2, PointsPerChoice: []int{10, 5}},
		{Round: 4, RoundName: "Elite Eight", GamesInRound: 4, Choices: 3, PointsPerChoice: []int{15, 10, 5}},
		{Round: 5, RoundName: "Final Four", GamesInRound: 2, Choices: 4, PointsPerChoice: []int{25, 15, 10, 5}},
		{Round: 6, RoundName: "Championship", GamesInRound: 1, Choices: 5, PointsPerChoice: []int{35, 25, 15, 10, 5}},
	}
}

// DefaultRuleTable builds the table from DefaultRules. It panics only if the
// built-in configuration is broken.
func DefaultRuleTable() *RuleTable {
	t, err := NewRuleTable(DefaultRules())
	if err != nil {
		panic(err)
	}
	return t
}

// LoadRuleTable reads a YAML rule file of the form
//
//	rounds:
//	  - round: 1
//	    roundName: Round of 64
//	    gamesInRound: 32
//	    choices: 1
//	    pointsPerChoice: [2]
func LoadRuleTable(path string) (*RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	return ParseRuleTable(data)
}

// ParseRuleTable decodes and validates a YAML rule document
func ParseRuleTable(data []byte) (*RuleTable, error) {
	var doc struct {
		Rounds []RoundRule `yaml:"rounds"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode rule file: %w", err)
	}
	return NewRuleTable(doc.Rounds)
}

// Rule looks up the rule for a round. A miss means picks in that round
// cannot be scored.
func (t *RuleTable) Rule(round int) (RoundRule, bool) {
	r, ok := t.rules[round]
	return r, ok
}

// Rules returns the configured rules ordered by round
func (t *RuleTable) Rules() []RoundRule {
	out := make([]RoundRule, 0, len(t.order))
	for _, round := range t.order {
		r := t.rules[round]
		r.PointsPerChoice = append([]int(nil), r.PointsPerChoice...)
		out = append(out, r)
	}
	return out
}

// MaxPointsForRound is the score attainable if every top choice in the round is correct
func (t *RuleTable) MaxPointsForRound(round int) int {
	r, ok := t.rules[round]
	if !ok {
		return 0
	}
	return r.GamesInRound * r.TopPoints()
}

// MaxPointsTotal sums MaxPointsForRound across all configured rounds
func (t *RuleTable) MaxPointsTotal() int {
	total := 0
	for _, round := range t.order {
		total += t.MaxPointsForRound(round)
	}
	return total
}
