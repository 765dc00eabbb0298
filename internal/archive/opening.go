package archive

import (
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// classifyOpening replays the UCI move list from the start position and
// returns the deepest ECO opening it reaches. Empty on unknown lines.
func classifyOpening(movesUCI []string) (code, title string) {
	if len(movesUCI) == 0 {
		return "", ""
	}
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })

	game := nchess.NewGame()
	for _, uci := range movesUCI {
		mv, err := nchess.UCINotation{}.Decode(game.Position(), strings.ToLower(strings.TrimSpace(uci)))
		if err != nil {
			break
		}
		if err := game.Move(mv, nil); err != nil {
			break
		}
	}
	if len(game.Moves()) == 0 {
		return "", ""
	}
	if eco := ecoBook.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}
