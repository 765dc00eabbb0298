package match

import (
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
)

var transitions = map[Status][]Status{
	StatusMatching:    {StatusActive, StatusTerminal},
	StatusActive:      {StatusDrawPending, StatusTerminal},
	StatusDrawPending: {StatusActive, StatusTerminal},
}

// CanTransition reports whether from -> to is allowed. TERMINAL is absorbing.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s *Session) transition(to Status) error {
	from := s.st.status
	if !CanTransition(from, to) {
		s.log.Warn("match_invalid_transition", zap.String("from", string(from)), zap.String("to", string(to)))
		return ErrInvalidTransition
	}
	s.st.status = to
	s.st.updatedAt = s.cfg.Now()
	if to != StatusDrawPending {
		s.st.drawBy = ""
		s.stopDrawTimer()
	}
	return nil
}

// finish moves the session to TERMINAL and emits the terminal event.
func (s *Session) finish(res Result) {
	if err := s.transition(StatusTerminal); err != nil {
		return
	}
	r := res
	s.st.result = &r
	s.st.endedAt = s.st.updatedAt
	s.terminal.Store(true)

	switch res.Kind {
	case ResultStalemate, ResultDraw:
		s.broadcast(arenadto.NewEnvelope(arenadto.TypeGameDrawn, arenadto.GameOver{
			Reason:     string(res.Kind),
			WhiteTimer: s.st.whiteTimer,
			BlackTimer: s.st.blackTimer,
		}))
	default:
		over := arenadto.GameOver{
			Reason:     string(res.Kind),
			WhiteTimer: s.st.whiteTimer,
			BlackTimer: s.st.blackTimer,
		}
		if res.Winner != "" {
			over.Winner = string(res.Winner)
			over.Loser = string(res.Winner.Opponent())
		}
		typ := arenadto.TypeGameOver
		if res.Kind == ResultTimeout {
			typ = arenadto.TypeTimeExceeded
		}
		s.broadcast(arenadto.NewEnvelope(typ, over))
	}

	rec := s.record()
	s.log.Info("match_terminal",
		zap.String("kind", string(res.Kind)),
		zap.String("method", res.Method),
		zap.String("winner", string(res.Winner)),
		zap.Int("moves", len(s.st.moves)),
	)
	s.journal.Record(rec)
	if s.onTerminal != nil {
		s.onTerminal(rec)
	}
}
