package espn

// Scoreboard is the subset of the ESPN scoreboard document the feed reads
type Scoreboard struct {
	Events []Event `json:"events"`
}

type Event struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Date         string        `json:"date"`
	Competitions []Competition `json:"competitions"`
	Status       Status        `json:"status"`
}

type Competition struct {
	ID          string       `json:"id"`
	Notes       []Note       `json:"notes"`
	Competitors []Competitor `json:"competitors"`
	Status      Status       `json:"status"`
}

type Note struct {
	Type     string `json:"type"`
	Headline string `json:"headline"`
}

type Competitor struct {
	ID       string `json:"id"`
	HomeAway string `json:"homeAway"`
	Winner   bool   `json:"winner"`
	Score    string `json:"score"`
	Team     Team   `json:"team"`
}

type Team struct {
	ID               string `json:"id"`
	Abbreviation     string `json:"abbreviation"`
	DisplayName      string `json:"displayName"`
	ShortDisplayName string `json:"shortDisplayName"`
	Location         string `json:"location"`
}

type Status struct {
	Type StatusType `json:"type"`
}

type StatusType struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Completed bool   `json:"completed"`
}

// completed reports whether either the event or the competition is final
func (c Competition) completed(event Event) bool {
	return c.Status.Type.Completed || event.Status.Type.Completed
}

func (c Competition) winner() (Competitor, bool) {
	for _, comp := range c.Competitors {
		if comp.Winner {
			return comp, true
		}
	}
	return Competitor{}, false
}
