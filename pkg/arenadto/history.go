package arenadto

import "time"

// MatchSummary is one archived match as served over HTTP.
type MatchSummary struct {
	SessionID    string    `json:"sessionId"`
	Mode         string    `json:"mode"`
	White        string    `json:"white"`
	Black        string    `json:"black"`
	Difficulty   int       `json:"difficulty,omitempty"`
	Result       string    `json:"result"`
	ResultMethod string    `json:"resultMethod"`
	MovesUCI     []string  `json:"movesUci"`
	MovesSAN     []string  `json:"movesSan"`
	PGN          string    `json:"pgn"`
	WhiteTimer   int       `json:"whiteTimer"`
	BlackTimer   int       `json:"blackTimer"`
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      time.Time `json:"endedAt"`
	DurationMs   int64     `json:"durationMs"`
}

type MatchList struct {
	Matches []MatchSummary `json:"matches"`
}

// Health answers GET /healthz.
type Health struct {
	Status       string `json:"status"`
	Sessions     int    `json:"sessions"`
	Queued       int    `json:"queued"`
	WaitingRooms int    `json:"waitingRooms"`
	Sockets      int    `json:"sockets"`
}
