package gateway

import (
	"context"
	"errors"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

var (
	errUnknownType = errors.New("unknown frame type")
	errWrongMode   = errors.New("frame not valid on this socket")
)

// dispatch routes one frame. ref names the move or room the frame was
// about, for error messages.
func (s *Server) dispatch(ctx context.Context, c *Conn, env arenadto.Envelope) (string, error) {
	id, mode := c.identity, c.mode
	switch env.Type {
	case arenadto.TypeInitGame:
		if mode != match.ModeQuick {
			return "", &payloadError{typ: env.Type, err: errWrongMode}
		}
		return "", s.arena.InitQuick(ctx, id)

	case arenadto.TypeCancelMatching:
		if mode != match.ModeQuick {
			return "", &payloadError{typ: env.Type, err: errWrongMode}
		}
		return "matchmaking", s.arena.CancelQuick(id)

	case arenadto.TypeInitRoomGame:
		if mode != match.ModeRoom {
			return "", &payloadError{typ: env.Type, err: errWrongMode}
		}
		var p arenadto.InitRoomGame
		if err := env.Decode(&p); err != nil {
			return "", &payloadError{typ: env.Type, err: err}
		}
		return p.RoomCode, s.arena.InitRoom(ctx, id, p.RoomCode)

	case arenadto.TypeInitComputerGame:
		if mode != match.ModeComputer {
			return "", &payloadError{typ: env.Type, err: errWrongMode}
		}
		var p arenadto.InitComputerGame
		if err := env.Decode(&p); err != nil {
			return "", &payloadError{typ: env.Type, err: err}
		}
		return "", s.arena.InitComputer(ctx, id, p.Difficulty, p.Color)

	case arenadto.TypeMove:
		var mv arenadto.Move
		if err := env.Decode(&mv); err != nil {
			return "", &payloadError{typ: env.Type, err: err}
		}
		return mv.From + mv.To + mv.Promotion, s.arena.Move(ctx, id, mode, mv)

	case arenadto.TypeOfferDraw:
		return "", s.arena.OfferDraw(ctx, id, mode)
	case arenadto.TypeAcceptDraw:
		return "", s.arena.RespondDraw(ctx, id, mode, true)
	case arenadto.TypeRejectDraw:
		return "", s.arena.RespondDraw(ctx, id, mode, false)
	case arenadto.TypeResign:
		return "", s.arena.Resign(ctx, id, mode)
	case arenadto.TypeAbort:
		return "", s.arena.Abort(ctx, id, mode)

	case arenadto.TypeLeaveRoom:
		return "", s.arena.Leave(ctx, id, mode)

	case arenadto.TypeReconnect:
		st, err := s.arena.Resync(ctx, id, mode)
		if err != nil {
			return "", err
		}
		c.Send(arenadto.NewEnvelope(arenadto.TypeExistingGameFound, st))
		return "", nil
	}
	return "", &payloadError{typ: env.Type, err: errUnknownType}
}
