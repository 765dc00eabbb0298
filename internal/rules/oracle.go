package rules

import (
	"fmt"
	"sort"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrIllegalMove = errf("illegal move")
	ErrInvalidFEN  = errf("invalid fen")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Terminal is the oracle's verdict on the position after a move.
type Terminal string

const (
	TerminalNone      Terminal = ""
	TerminalCheckmate Terminal = "checkmate"
	TerminalStalemate Terminal = "stalemate"
	// TerminalDraw covers automatic draws (insufficient material, fivefold, 75-move).
	TerminalDraw Terminal = "draw"
)

// Outcome describes an accepted move.
type Outcome struct {
	FEN      string
	UCI      string
	SAN      string
	Captured string // piece code like "bP"; empty when nothing was taken
	Check    bool
	Terminal Terminal
	Method   string
	Winner   string // "white", "black" or ""
	Turn     string // side to move after the move
}

// Oracle applies moves to positions. Implementations must be pure.
type Oracle interface {
	Apply(fen, uci string) (Outcome, error)
	ValidMoves(fen string) ([]string, error)
}

// Chess is the corentings/chess backed oracle. It holds no state.
type Chess struct{}

func New() *Chess { return &Chess{} }

func (Chess) Apply(fen, uci string) (Outcome, error) {
	game, err := load(fen)
	if err != nil {
		return Outcome{}, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return Outcome{}, ErrIllegalMove
	}
	pos := game.Position()
	text := strings.ToLower(strings.TrimSpace(uci))
	if text == "" {
		return Outcome{}, ErrIllegalMove
	}
	mv, err := nchess.UCINotation{}.Decode(pos, text)
	if err != nil {
		return Outcome{}, ErrIllegalMove
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := game.Move(mv, nil); err != nil {
		return Outcome{}, ErrIllegalMove
	}
	last := lastMove(game)
	if last == nil {
		return Outcome{}, ErrIllegalMove
	}

	out := Outcome{
		FEN:      game.FEN(),
		UCI:      text,
		SAN:      san,
		Captured: capturedPiece(pos, last),
		Check:    last.HasTag(nchess.Check),
		Turn:     colorName(game.Position().Turn()),
	}
	switch game.Outcome() {
	case nchess.WhiteWon:
		out.Winner = "white"
	case nchess.BlackWon:
		out.Winner = "black"
	}
	if game.Outcome() != nchess.NoOutcome {
		out.Method = strings.ToLower(game.Method().String())
		switch game.Method() {
		case nchess.Checkmate:
			out.Terminal = TerminalCheckmate
		case nchess.Stalemate:
			out.Terminal = TerminalStalemate
		default:
			out.Terminal = TerminalDraw
		}
	}
	return out, nil
}

// ValidMoves lists legal moves for the side to move in UCI, sorted.
func (Chess) ValidMoves(fen string) ([]string, error) {
	game, err := load(fen)
	if err != nil {
		return nil, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return []string{}, nil
	}
	moves := game.ValidMoves()
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, strings.ToLower(mv.String()))
	}
	sort.Strings(out)
	return out, nil
}

func load(fen string) (*nchess.Game, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return nchess.NewGame(opt), nil
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func colorName(c nchess.Color) string {
	if c == nchess.White {
		return "white"
	}
	return "black"
}
