package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/archive"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/rooms"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const HeaderUserID = "X-User-Id"

// Arena is the room and health surface served over HTTP.
type Arena interface {
	CreateRoom(identity, color string) (rooms.Room, error)
	JoinRoom(code, identity string) (rooms.Room, error)
	CancelRoom(code, identity string) (rooms.Room, error)
	Rematch(code, identity string) (rooms.Room, error)
	Rooms() *rooms.Manager
	Stats() arena.Stats
}

var _ Arena = (*arena.Service)(nil)

// JournalReader loads the last live snapshot of a match.
type JournalReader interface {
	LoadMatch(ctx context.Context, id string) (*match.Record, error)
}

type Options struct {
	// Archive serves match history. Nil disables the /matches routes.
	Archive archive.Repository
	// Journal answers /matches/{id} for matches not yet archived.
	Journal JournalReader
	// Sockets reports open game sockets for /healthz.
	Sockets      func() int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	HistoryLimit int
}

type Server struct {
	arena Arena
	opts  Options
	srv   *fasthttp.Server
	log   *zap.Logger
}

func NewServer(a Arena, opts Options) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	s := &Server{arena: a, opts: opts, log: obslog.Named("httpapi")}
	s.srv = &fasthttp.Server{
		Handler:      s.Handle,
		Name:         "cheese-arena",
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) ListenAndServe(addr string) error { return s.srv.ListenAndServe(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }

// Handle routes one request.
func (s *Server) Handle(ctx *fasthttp.RequestCtx) {
	path := strings.Trim(string(ctx.Path()), "/")
	parts := strings.Split(path, "/")
	get := ctx.IsGet()
	post := ctx.IsPost()

	switch {
	case path == "healthz" && get:
		s.health(ctx)
	case path == "rooms" && post:
		s.createRoom(ctx)
	case path == "rooms" && get:
		s.listRooms(ctx)
	case len(parts) == 2 && parts[0] == "rooms" && get:
		s.getRoom(ctx, parts[1])
	case len(parts) == 3 && parts[0] == "rooms" && post:
		s.roomAction(ctx, parts[1], parts[2])
	case len(parts) == 2 && parts[0] == "matches" && get:
		s.getMatch(ctx, parts[1])
	case len(parts) == 3 && parts[0] == "players" && parts[2] == "matches" && get:
		s.playerMatches(ctx, parts[1])
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not_found", "no route for "+string(ctx.Method())+" /"+path)
	}
}

func (s *Server) health(ctx *fasthttp.RequestCtx) {
	st := s.arena.Stats()
	h := arenadto.Health{Status: "ok", Sessions: st.Sessions, Queued: st.Queued, WaitingRooms: st.WaitingRooms}
	if s.opts.Sockets != nil {
		h.Sockets = s.opts.Sockets()
	}
	writeJSON(ctx, fasthttp.StatusOK, h)
}

type createRoomRequest struct {
	Color string `json:"color"`
}

func (s *Server) createRoom(ctx *fasthttp.RequestCtx) {
	identity, ok := requireIdentity(ctx)
	if !ok {
		return
	}
	var req createRoomRequest
	if body := ctx.PostBody(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "payload_error", "malformed room request")
			return
		}
	}
	room, err := s.arena.CreateRoom(identity, req.Color)
	if err != nil {
		s.fail(ctx, "create_room", err)
		return
	}
	s.log.Info("room_created", zap.String("code", room.Code), zap.String("creator", identity))
	writeJSON(ctx, fasthttp.StatusCreated, arenadto.CreateRoomResponse{RoomID: room.Code, Room: room.DTO()})
}

func (s *Server) listRooms(ctx *fasthttp.RequestCtx) {
	waiting := s.arena.Rooms().Waiting()
	out := arenadto.RoomList{Rooms: make([]arenadto.Room, 0, len(waiting))}
	for _, r := range waiting {
		out.Rooms = append(out.Rooms, r.DTO())
	}
	writeJSON(ctx, fasthttp.StatusOK, out)
}

func (s *Server) getRoom(ctx *fasthttp.RequestCtx, code string) {
	room, err := s.arena.Rooms().Get(code)
	if err != nil {
		s.fail(ctx, "get_room", err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, room.DTO())
}

func (s *Server) roomAction(ctx *fasthttp.RequestCtx, code, action string) {
	var run func(code, identity string) (rooms.Room, error)
	switch action {
	case "join":
		run = s.arena.JoinRoom
	case "cancel":
		run = s.arena.CancelRoom
	case "rematch":
		run = s.arena.Rematch
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not_found", "unknown room action "+action)
		return
	}
	identity, ok := requireIdentity(ctx)
	if !ok {
		return
	}
	room, err := run(code, identity)
	if err != nil {
		s.fail(ctx, action+"_room", err)
		return
	}
	dto := room.DTO()
	writeJSON(ctx, fasthttp.StatusOK, arenadto.RoomActionResponse{Success: true, Room: &dto})
}

func (s *Server) getMatch(ctx *fasthttp.RequestCtx, id string) {
	if s.opts.Archive == nil {
		writeError(ctx, fasthttp.StatusNotFound, "not_found", "match history is disabled")
		return
	}
	rec, err := s.opts.Archive.GetMatch(ctx, id)
	if err != nil {
		s.fail(ctx, "get_match", err)
		return
	}
	if rec == nil && s.opts.Journal != nil {
		live, err := s.opts.Journal.LoadMatch(ctx, id)
		if err != nil {
			s.fail(ctx, "load_journal", err)
			return
		}
		if live != nil {
			rec = archive.FromRecord(*live)
		}
	}
	if rec == nil {
		writeError(ctx, fasthttp.StatusNotFound, "not_found", "match "+id+" not found")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, summary(rec))
}

func (s *Server) playerMatches(ctx *fasthttp.RequestCtx, identity string) {
	if s.opts.Archive == nil {
		writeError(ctx, fasthttp.StatusNotFound, "not_found", "match history is disabled")
		return
	}
	limit := s.opts.HistoryLimit
	if v, err := strconv.Atoi(string(ctx.QueryArgs().Peek("limit"))); err == nil && v > 0 && v < limit {
		limit = v
	}
	recs, err := s.opts.Archive.RecentByPlayer(ctx, identity, limit)
	if err != nil {
		s.fail(ctx, "player_matches", err)
		return
	}
	out := arenadto.MatchList{Matches: make([]arenadto.MatchSummary, 0, len(recs))}
	for _, r := range recs {
		out.Matches = append(out.Matches, summary(r))
	}
	writeJSON(ctx, fasthttp.StatusOK, out)
}

func (s *Server) fail(ctx *fasthttp.RequestCtx, op string, err error) {
	status, code := classify(err)
	if status >= fasthttp.StatusInternalServerError {
		s.log.Error("http_request_failed", zap.String("op", op), zap.Error(err))
		writeError(ctx, status, code, "internal error")
		return
	}
	s.log.Debug("http_request_rejected", zap.String("op", op), zap.Error(err))
	writeError(ctx, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, rooms.ErrInvalidArgs), errors.Is(err, arena.ErrInvalidArgs):
		return fasthttp.StatusBadRequest, "payload_error"
	case errors.Is(err, rooms.ErrNotCreator), errors.Is(err, rooms.ErrNotOccupant):
		return fasthttp.StatusForbidden, "unauthorized"
	case errors.Is(err, rooms.ErrRoomNotFound):
		return fasthttp.StatusNotFound, "not_found"
	case errors.Is(err, rooms.ErrAlreadyHasRoom),
		errors.Is(err, rooms.ErrAlreadyInRoom),
		errors.Is(err, rooms.ErrRoomFull),
		errors.Is(err, rooms.ErrRoomNotReady),
		errors.Is(err, rooms.ErrRoomActive),
		errors.Is(err, registry.ErrAlreadyInSession):
		return fasthttp.StatusConflict, "conflict"
	}
	return fasthttp.StatusInternalServerError, "server_error"
}

func requireIdentity(ctx *fasthttp.RequestCtx) (string, bool) {
	id := strings.TrimSpace(string(ctx.Request.Header.Peek(HeaderUserID)))
	if id == "" {
		writeError(ctx, fasthttp.StatusUnauthorized, "unauthorized", "missing "+HeaderUserID)
		return "", false
	}
	return id, true
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		status = fasthttp.StatusInternalServerError
		b = []byte(`{"code":"server_error","message":"encode failed"}`)
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(b)
}

func writeError(ctx *fasthttp.RequestCtx, status int, code, msg string) {
	writeJSON(ctx, status, arenadto.DomainError{Code: code, Message: msg, Retryable: status >= fasthttp.StatusInternalServerError})
}

func summary(m *domain.MatchRecord) arenadto.MatchSummary {
	return arenadto.MatchSummary{
		SessionID:    m.SessionID,
		Mode:         m.Mode,
		White:        m.WhiteID,
		Black:        m.BlackID,
		Difficulty:   m.Difficulty,
		Result:       m.Result,
		ResultMethod: m.ResultMethod,
		MovesUCI:     append([]string{}, m.MovesUCI...),
		MovesSAN:     append([]string{}, m.MovesSAN...),
		PGN:          m.PGN,
		WhiteTimer:   m.WhiteTimer,
		BlackTimer:   m.BlackTimer,
		StartedAt:    m.StartedAt,
		EndedAt:      m.EndedAt,
		DurationMs:   m.Duration.Milliseconds(),
	}
}
