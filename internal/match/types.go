package match

import (
	"strings"
	"time"
)

// Mode scopes identities and sessions.
type Mode string

const (
	ModeQuick    Mode = "quick"
	ModeRoom     Mode = "room"
	ModeComputer Mode = "computer"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeQuick:
		return ModeQuick, true
	case ModeRoom:
		return ModeRoom, true
	case ModeComputer:
		return ModeComputer, true
	}
	return "", false
}

// Color identifies chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Status is the single state tag of a session.
type Status string

const (
	StatusMatching    Status = "MATCHING"
	StatusActive      Status = "ACTIVE"
	StatusDrawPending Status = "DRAW_PENDING"
	StatusTerminal    Status = "TERMINAL"
)

type ResultKind string

const (
	ResultCheckmate   ResultKind = "checkmate"
	ResultStalemate   ResultKind = "stalemate"
	ResultResignation ResultKind = "resignation"
	ResultTimeout     ResultKind = "timeout"
	ResultDraw        ResultKind = "draw"
	ResultForfeit     ResultKind = "forfeit"
	ResultAborted     ResultKind = "aborted"
)

// Result is set once a session reaches TERMINAL. Winner is empty for draws.
type Result struct {
	Kind   ResultKind `json:"kind"`
	Winner Color      `json:"winner,omitempty"`
	// Method is the rule that ended a board result, e.g. insufficientmaterial.
	Method string     `json:"method,omitempty"`
}

type Players struct {
	White string `json:"white"`
	Black string `json:"black"`
}

// Of returns the identity playing c. The computer side is "".
func (p Players) Of(c Color) string {
	if c == White {
		return p.White
	}
	return p.Black
}

// Record is the persisted form of a session, written to the journal and archive.
type Record struct {
	ID         string    `json:"id"`
	Mode       Mode      `json:"mode"`
	White      string    `json:"white"`
	Black      string    `json:"black"`
	Difficulty int       `json:"difficulty,omitempty"`
	FEN        string    `json:"fen"`
	MovesUCI   []string  `json:"moves_uci"`
	MovesSAN   []string  `json:"moves_san"`
	Captured   []string  `json:"captured"`
	WhiteTimer int       `json:"white_timer"`
	BlackTimer int       `json:"black_timer"`
	Status     Status    `json:"status"`
	Result     *Result   `json:"result,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	EndedAt    time.Time `json:"ended_at,omitempty"`
}
