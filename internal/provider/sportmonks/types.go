package sportmonks

// Wire types for the provider's fixtures endpoint. Only the fields the
// pipeline consumes are declared; everything else in the payload is ignored.

// Envelope is the top-level response shape with cursor pagination.
type Envelope struct {
	Data       []Fixture  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Pagination carries the provider's page cursor.
type Pagination struct {
	HasMore     bool   `json:"has_more"`
	CurrentPage int    `json:"current_page"`
	NextPage    string `json:"next_page"`
}

// Fixture is one fixture with the includes we request
// (scores;participants;state;league).
type Fixture struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	StartingAt   string        `json:"starting_at"` // "2006-01-02 15:04:05" UTC
	State        State         `json:"state"`
	League       League        `json:"league"`
	Participants []Participant `json:"participants"`
	Scores       []ScoreEntry  `json:"scores"`
}

// State is the provider's fixture state object.
type State struct {
	State  string `json:"state"`
	Minute int    `json:"minute"`
}

// League carries the league name.
type League struct {
	Name string `json:"name"`
}

// Participant is one of the two teams with its home/away location.
type Participant struct {
	Name string `json:"name"`
	Meta struct {
		Location string `json:"location"` // "home" | "away"
	} `json:"meta"`
}

// ScoreEntry is one period score. Description is one of CURRENT, 1ST_HALF,
// 2ND_HALF, ET, PEN.
type ScoreEntry struct {
	Description string `json:"description"`
	Score       struct {
		Participant string `json:"participant"` // "home" | "away"
		Goals       int    `json:"goals"`
	} `json:"score"`
}

// Score period descriptions used by the mapper.
const (
	scoreCurrent   = "CURRENT"
	scoreFirstHalf = "1ST_HALF"
	scoreExtraTime = "ET"
	scorePenalties = "PEN"
)
