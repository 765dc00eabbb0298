package arenadto

// Move is one ply in coordinate form. Promotion is a lowercase piece letter.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// UCI renders the move as e2e4 / e7e8q.
func (m Move) UCI() string { return m.From + m.To + m.Promotion }

type InitRoomGame struct {
	RoomCode string `json:"roomCode"`
	Color    string `json:"color,omitempty"`
}

type InitComputerGame struct {
	Difficulty int    `json:"difficulty,omitempty"`
	Color      string `json:"color,omitempty"`
}

type Result struct {
	Kind   string `json:"kind"`
	Winner string `json:"winner,omitempty"`
}

// GameState is the resync snapshot for one participant.
type GameState struct {
	SessionID      string   `json:"sessionId,omitempty"`
	Mode           string   `json:"mode"`
	Status         string   `json:"status"`
	FEN            string   `json:"fen,omitempty"`
	Color          string   `json:"color,omitempty"`
	Turn           string   `json:"turn,omitempty"`
	Moves          []Move   `json:"moves"`
	CapturedPieces []string `json:"capturedPieces"`
	WhiteTimer     int      `json:"whiteTimer"`
	BlackTimer     int      `json:"blackTimer"`
	DrawPending    bool     `json:"drawPending"`
	DrawOfferedBy  string   `json:"drawOfferedBy,omitempty"`
	DrawOffersLeft int      `json:"drawOffersLeft"`
	Opponent       string   `json:"opponent,omitempty"`
	Difficulty     int      `json:"difficulty,omitempty"`
	Result         *Result  `json:"result,omitempty"`
}

// MoveRelay is broadcast after every accepted move. In computer mode the
// engine answer rides along in Reply.
type MoveRelay struct {
	FEN           string     `json:"fen"`
	Move          Move       `json:"move"`
	SAN           string     `json:"san,omitempty"`
	Color         string     `json:"color"`
	CapturedPiece string     `json:"capturedPiece,omitempty"`
	Check         bool       `json:"check,omitempty"`
	ValidMoves    []string   `json:"validMoves"`
	WhiteTimer    int        `json:"whiteTimer"`
	BlackTimer    int        `json:"blackTimer"`
	Turn          string     `json:"turn"`
	Reply         *MoveRelay `json:"reply,omitempty"`
}

type Timer struct {
	WhiteTimer int `json:"whiteTimer"`
	BlackTimer int `json:"blackTimer"`
}

type GameOver struct {
	Winner     string `json:"winner,omitempty"`
	Loser      string `json:"loser,omitempty"`
	Reason     string `json:"reason"`
	WhiteTimer int    `json:"whiteTimer"`
	BlackTimer int    `json:"blackTimer"`
}

type Draw struct {
	By         string `json:"by"`
	OffersLeft int    `json:"offersLeft"`
}

type Notice struct {
	Message  string `json:"message,omitempty"`
	RoomCode string `json:"roomCode,omitempty"`
	Seconds  int    `json:"seconds,omitempty"`
}
