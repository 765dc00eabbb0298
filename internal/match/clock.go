package match

import "github.com/park285/cheese-arena/pkg/arenadto"

// tick advances the side-to-move clock by one second.
// The computer's clock never runs.
func (s *Session) tick() {
	st := &s.st
	if st.status != StatusActive && st.status != StatusDrawPending {
		return
	}
	if s.isComputer(st.turn) {
		return
	}
	clock := &st.whiteTimer
	if st.turn == Black {
		clock = &st.blackTimer
	}
	if *clock > 0 {
		*clock--
	}
	s.broadcast(arenadto.NewEnvelope(arenadto.TypeTimer, arenadto.Timer{
		WhiteTimer: st.whiteTimer,
		BlackTimer: st.blackTimer,
	}))
	if *clock > 0 {
		return
	}
	s.finish(Result{Kind: ResultTimeout, Winner: st.turn.Opponent()})
}
