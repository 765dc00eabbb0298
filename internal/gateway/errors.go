package gateway

import (
	"context"
	"errors"

	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/matchmaking"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/rooms"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// msgData carries every field the error and notice templates reference.
type msgData struct {
	Type    string
	Move    string
	Subject string
	Reason  string
	Code    string
	Limit   int
	Seconds int
}

// payloadError marks a frame whose payload could not be decoded.
type payloadError struct {
	typ string
	err error
}

func (e *payloadError) Error() string { return "malformed " + e.typ + " payload" }
func (e *payloadError) Unwrap() error { return e.err }

type wireRule struct {
	err       error
	typ       string
	key       string
	retryable bool
}

// 순서대로 errors.Is 로 비교한다. 먼저 걸린 규칙이 이긴다.
var wireRules = []wireRule{
	{match.ErrInvalidMove, arenadto.TypePayloadError, "payload_error", false},
	{arena.ErrInvalidArgs, arenadto.TypePayloadError, "payload_error", false},
	{rooms.ErrInvalidArgs, arenadto.TypePayloadError, "payload_error", false},
	{registry.ErrInvalidArgs, arenadto.TypePayloadError, "payload_error", false},
	{matchmaking.ErrInvalidArgs, arenadto.TypePayloadError, "payload_error", false},
	{match.ErrWrongTurn, arenadto.TypeWrongPlayerMove, "wrong_player_move", false},
	{match.ErrIllegalMove, arenadto.TypeIllegalMove, "illegal_move", false},
	{match.ErrNotParticipant, arenadto.TypeUnauthorized, "unauthorized", false},
	{rooms.ErrNotCreator, arenadto.TypeUnauthorized, "unauthorized", false},
	{rooms.ErrNotOccupant, arenadto.TypeUnauthorized, "unauthorized", false},
	{rooms.ErrRoomNotFound, arenadto.TypeNotFound, "room_not_found", false},
	{matchmaking.ErrNotQueued, arenadto.TypeNotFound, "not_found", false},
	{arena.ErrNoActiveSession, arenadto.TypeNoActiveSession, "no_active_session", false},
	{match.ErrClosed, arenadto.TypeNoActiveSession, "no_active_session", false},
	{match.ErrMatchEnded, arenadto.TypeMatchEnded, "match_ended", false},
	{match.ErrDrawLimitReached, arenadto.TypeDrawLimitReached, "draw_limit_reached", false},
	{match.ErrDrawCooldown, arenadto.TypeDrawCooldown, "draw_cooldown", true},
	{registry.ErrAlreadyInSession, arenadto.TypeConflict, "already_in_session", false},
	{rooms.ErrAlreadyHasRoom, arenadto.TypeConflict, "already_has_room", false},
	{rooms.ErrAlreadyInRoom, arenadto.TypeConflict, "conflict", false},
	{rooms.ErrRoomFull, arenadto.TypeConflict, "room_full", false},
	{rooms.ErrRoomNotReady, arenadto.TypeConflict, "room_not_ready", false},
	{rooms.ErrRoomActive, arenadto.TypeConflict, "conflict", false},
	{match.ErrDrawPending, arenadto.TypeConflict, "draw_pending", false},
	{match.ErrDrawAlreadyPending, arenadto.TypeConflict, "draw_pending", false},
	{match.ErrNoDrawPending, arenadto.TypeConflict, "no_draw_pending", false},
	{match.ErrDrawOwnOffer, arenadto.TypeConflict, "no_draw_pending", false},
	{match.ErrUnsupported, arenadto.TypeConflict, "unsupported", false},
	{match.ErrAbortTooLate, arenadto.TypeConflict, "conflict", false},
	{match.ErrInvalidTransition, arenadto.TypeConflict, "conflict", false},
	{context.DeadlineExceeded, arenadto.TypeServerError, "server_error", true},
}

// errorEnvelope maps err, raised while handling in, to its wire frame.
func (s *Server) errorEnvelope(err error, in arenadto.Envelope, ref string) arenadto.Envelope {
	rule := wireRule{typ: arenadto.TypeServerError, key: "server_error", retryable: true}
	var pe *payloadError
	if errors.As(err, &pe) {
		rule = wireRule{typ: arenadto.TypePayloadError, key: "payload_error"}
	} else {
		for _, r := range wireRules {
			if errors.Is(err, r.err) {
				rule = r
				break
			}
		}
	}
	mc := s.arena.MatchConfig()
	data := msgData{
		Type:    in.Type,
		Move:    ref,
		Subject: ref,
		Reason:  err.Error(),
		Code:    ref,
		Limit:   mc.MaxDrawOffers,
		Seconds: int(mc.DrawCooldown.Seconds()),
	}
	return arenadto.NewEnvelope(rule.typ, arenadto.DomainError{
		Code:      rule.typ,
		Message:   s.msgs.Text("errors."+rule.key, data, err.Error()),
		Retryable: rule.retryable,
	})
}
