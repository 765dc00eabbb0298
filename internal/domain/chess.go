package domain

import "time"

// MatchRecord is one finished match as archived.
type MatchRecord struct {
	SessionID    string
	Mode         string
	WhiteID      string
	BlackID      string
	Difficulty   int
	Result       string // white, black, draw or empty for aborted
	ResultMethod string
	MovesUCI     []string
	MovesSAN     []string
	PGN          string
	WhiteTimer   int
	BlackTimer   int
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     time.Duration
}

// Involves reports whether identity played in the match.
func (m *MatchRecord) Involves(identity string) bool {
	return identity != "" && (m.WhiteID == identity || m.BlackID == identity)
}
