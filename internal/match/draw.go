package match

import (
	"time"

	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
)

func (s *Session) offerDraw(identity string) error {
	st := &s.st
	if st.status == StatusTerminal {
		return ErrMatchEnded
	}
	c, ok := s.colorOf(identity)
	if !ok {
		return ErrNotParticipant
	}
	if s.mode == ModeComputer {
		return ErrUnsupported
	}
	if st.drawUsed[c] >= s.cfg.MaxDrawOffers {
		return ErrDrawLimitReached
	}
	now := s.cfg.Now()
	if last, ok := st.lastDrawAt[c]; ok && now.Sub(last) < s.cfg.DrawCooldown {
		return ErrDrawCooldown
	}
	if st.status == StatusDrawPending {
		return ErrDrawAlreadyPending
	}
	if err := s.transition(StatusDrawPending); err != nil {
		return err
	}
	st.drawUsed[c]++
	st.lastDrawAt[c] = now
	st.drawBy = c
	st.drawSeq++
	s.armDrawTimer(st.drawSeq)

	left := s.drawOffersLeft(c)
	s.log.Info("draw_offered", zap.String("by", string(c)), zap.Int("offers_left", left))
	payload := arenadto.Draw{By: string(c), OffersLeft: left}
	s.notifyColor(c.Opponent(), arenadto.NewEnvelope(arenadto.TypeDrawOffered, payload))
	s.notifyColor(c, arenadto.NewEnvelope(arenadto.TypeDrawOfferSent, payload))
	s.journal.Record(s.record())
	return nil
}

func (s *Session) respondDraw(identity string, accept bool) error {
	st := &s.st
	if st.status == StatusTerminal {
		return ErrMatchEnded
	}
	c, ok := s.colorOf(identity)
	if !ok {
		return ErrNotParticipant
	}
	if st.status != StatusDrawPending {
		return ErrNoDrawPending
	}
	if st.drawBy == c {
		return ErrDrawOwnOffer
	}
	if accept {
		s.broadcast(arenadto.NewEnvelope(arenadto.TypeDrawAccepted, arenadto.Draw{By: string(c)}))
		s.finish(Result{Kind: ResultDraw})
		return nil
	}
	s.rejectDraw(c)
	return nil
}

// rejectDraw returns to ACTIVE. by is the rejecting side.
func (s *Session) rejectDraw(by Color) {
	offerer := s.st.drawBy
	if err := s.transition(StatusActive); err != nil {
		return
	}
	s.log.Info("draw_rejected", zap.String("by", string(by)))
	payload := arenadto.Draw{By: string(by), OffersLeft: s.drawOffersLeft(offerer)}
	s.broadcast(arenadto.NewEnvelope(arenadto.TypeDrawRejected, payload))
	s.journal.Record(s.record())
}

// armDrawTimer schedules the auto-reject. A timer whose seq no longer
// matches the current offer does nothing.
func (s *Session) armDrawTimer(seq int) {
	s.stopDrawTimer()
	s.st.drawTimer = time.AfterFunc(s.cfg.DrawResponseTimeout, func() {
		s.post(func() {
			if s.st.status != StatusDrawPending || s.st.drawSeq != seq {
				return
			}
			s.rejectDraw(s.st.drawBy.Opponent())
		})
	})
}

func (s *Session) stopDrawTimer() {
	if s.st.drawTimer != nil {
		s.st.drawTimer.Stop()
		s.st.drawTimer = nil
	}
}

func (s *Session) drawOffersLeft(c Color) int {
	left := s.cfg.MaxDrawOffers - s.st.drawUsed[c]
	if left < 0 {
		return 0
	}
	return left
}
