package match

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
)

type ply struct {
	relay *arenadto.MoveRelay
	out   rules.Outcome
}

// NormalizeMove lowercases and trims a move. ok is false when the squares
// or the promotion piece are malformed.
func NormalizeMove(mv arenadto.Move) (arenadto.Move, bool) {
	mv.From = strings.ToLower(strings.TrimSpace(mv.From))
	mv.To = strings.ToLower(strings.TrimSpace(mv.To))
	mv.Promotion = strings.ToLower(strings.TrimSpace(mv.Promotion))
	if !isSquare(mv.From) || !isSquare(mv.To) || mv.From == mv.To {
		return mv, false
	}
	switch mv.Promotion {
	case "", "q", "r", "b", "n":
	default:
		return mv, false
	}
	return mv, true
}

func isSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

func moveFromUCI(uci string) (arenadto.Move, bool) {
	uci = strings.ToLower(strings.TrimSpace(uci))
	if len(uci) != 4 && len(uci) != 5 {
		return arenadto.Move{}, false
	}
	return NormalizeMove(arenadto.Move{From: uci[0:2], To: uci[2:4], Promotion: uci[4:]})
}

func (s *Session) applyMove(identity string, mv arenadto.Move) error {
	mv, ok := NormalizeMove(mv)
	if !ok {
		return ErrInvalidMove
	}
	if s.st.status == StatusTerminal {
		return ErrMatchEnded
	}
	c, ok := s.colorOf(identity)
	if !ok {
		return ErrNotParticipant
	}
	if s.st.status == StatusDrawPending {
		return ErrDrawPending
	}
	if c != s.st.turn {
		return ErrWrongTurn
	}

	out, err := s.callOracle(mv.UCI())
	if err != nil {
		if errors.Is(err, rules.ErrIllegalMove) {
			return ErrIllegalMove
		}
		s.log.Error("oracle_failed", zap.String("move", mv.UCI()), zap.Error(err))
		return ErrServer
	}
	last := s.commit(c, mv, out)
	relay := last.relay
	stalled := false
	if last.out.Terminal == rules.TerminalNone && s.isComputer(s.st.turn) {
		if reply, ok := s.computerPly(); ok {
			relay.Reply = reply.relay
			last = reply
		} else {
			stalled = true
		}
	}
	s.publishMove(relay)
	if stalled {
		s.computerStalled()
		return nil
	}
	s.settle(last.out)
	return nil
}

// playComputer makes the engine move when it is the computer's turn
// outside a human move, i.e. when the computer plays white.
func (s *Session) playComputer() {
	p, ok := s.computerPly()
	if !ok {
		s.computerStalled()
		return
	}
	s.publishMove(p.relay)
	s.settle(p.out)
}

// commit applies an oracle-accepted move to the session state.
func (s *Session) commit(c Color, mv arenadto.Move, out rules.Outcome) ply {
	st := &s.st
	st.fen = out.FEN
	st.moves = append(st.moves, mv)
	st.san = append(st.san, out.SAN)
	if out.Captured != "" {
		st.captured = append(st.captured, out.Captured)
	}
	st.turn = c.Opponent()
	if t := Color(out.Turn); t == White || t == Black {
		st.turn = t
	}
	st.updatedAt = s.cfg.Now()

	valid := []string{}
	if out.Terminal == rules.TerminalNone {
		if vm, err := s.validMoves(); err == nil {
			valid = vm
		} else {
			s.log.Warn("valid_moves_failed", zap.Error(err))
		}
	}
	s.log.Debug("match_move",
		zap.String("color", string(c)),
		zap.String("uci", mv.UCI()),
		zap.String("san", out.SAN),
		zap.Int("ply", len(st.moves)),
	)
	return ply{
		out: out,
		relay: &arenadto.MoveRelay{
			FEN:           out.FEN,
			Move:          mv,
			SAN:           out.SAN,
			Color:         string(c),
			CapturedPiece: out.Captured,
			Check:         out.Check,
			ValidMoves:    valid,
			WhiteTimer:    st.whiteTimer,
			BlackTimer:    st.blackTimer,
			Turn:          string(st.turn),
		},
	}
}

// computerPly asks the engine for the computer's move, falling back to a
// random legal move when the engine fails or answers with an illegal move.
func (s *Session) computerPly() (ply, bool) {
	c := s.st.turn
	uci := ""
	if s.computer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.EngineTimeout)
		got, err := s.computer.Reply(ctx, s.st.fen, s.difficulty)
		cancel()
		if err != nil {
			s.log.Warn("engine_reply_failed", zap.Error(err))
		} else {
			uci = got
		}
	}
	if mv, ok := moveFromUCI(uci); ok {
		if out, err := s.callOracle(mv.UCI()); err == nil {
			return s.commit(c, mv, out), true
		}
		s.log.Warn("engine_move_rejected", zap.String("move", uci))
	}

	legal, err := s.validMoves()
	if err != nil || len(legal) == 0 {
		s.log.Error("computer_no_move", zap.Error(err))
		return ply{}, false
	}
	pick := legal[rand.IntN(len(legal))]
	mv, ok := moveFromUCI(pick)
	if !ok {
		return ply{}, false
	}
	out, err := s.callOracle(mv.UCI())
	if err != nil {
		s.log.Error("computer_fallback_failed", zap.String("move", pick), zap.Error(err))
		return ply{}, false
	}
	return s.commit(c, mv, out), true
}

// computerStalled aborts a computer game when no computer move can be made.
func (s *Session) computerStalled() {
	s.notifyColor(s.st.turn.Opponent(), arenadto.NewEnvelope(arenadto.TypeServerError, arenadto.DomainError{
		Code: arenadto.TypeServerError,
	}))
	s.finish(Result{Kind: ResultAborted})
}

func (s *Session) publishMove(relay *arenadto.MoveRelay) {
	s.broadcast(arenadto.NewEnvelope(arenadto.TypeMove, relay))
	check := relay.Check
	if relay.Reply != nil {
		check = relay.Reply.Check
	}
	if check {
		s.broadcast(arenadto.NewEnvelope(arenadto.TypeCheckMove, nil))
	}
}

// settle ends the match when the last applied move finished it.
func (s *Session) settle(out rules.Outcome) {
	switch out.Terminal {
	case rules.TerminalNone:
		s.journal.Record(s.record())
	case rules.TerminalCheckmate:
		s.finish(Result{Kind: ResultCheckmate, Winner: Color(out.Winner), Method: out.Method})
	case rules.TerminalStalemate:
		s.finish(Result{Kind: ResultStalemate, Method: out.Method})
	default:
		s.finish(Result{Kind: ResultDraw, Method: out.Method})
	}
}

func (s *Session) callOracle(uci string) (rules.Outcome, error) {
	fen := s.st.fen
	return bounded(s.cfg.OracleTimeout, func() (rules.Outcome, error) { return s.oracle.Apply(fen, uci) })
}

func (s *Session) validMoves() ([]string, error) {
	fen := s.st.fen
	return bounded(s.cfg.OracleTimeout, func() ([]string, error) { return s.oracle.ValidMoves(fen) })
}

var errOracleTimeout = errors.New("oracle timed out")

// bounded runs fn and gives up after d. The goroutine is left to finish on its own.
func bounded[T any](d time.Duration, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-t.C:
		var zero T
		return zero, errOracleTimeout
	}
}
