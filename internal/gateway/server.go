package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Arena is the player-facing surface the gateway routes frames to.
type Arena interface {
	InitQuick(ctx context.Context, identity string) error
	CancelQuick(identity string) error
	InitRoom(ctx context.Context, identity, code string) error
	InitComputer(ctx context.Context, identity string, difficulty int, color string) error
	Move(ctx context.Context, identity string, mode match.Mode, mv arenadto.Move) error
	OfferDraw(ctx context.Context, identity string, mode match.Mode) error
	RespondDraw(ctx context.Context, identity string, mode match.Mode, accept bool) error
	Resign(ctx context.Context, identity string, mode match.Mode) error
	Abort(ctx context.Context, identity string, mode match.Mode) error
	Leave(ctx context.Context, identity string, mode match.Mode) error
	Resync(ctx context.Context, identity string, mode match.Mode) (arenadto.GameState, error)
	MatchConfig() match.Config
	Connect(ctx context.Context, identity string, mode match.Mode)
	Disconnect(identity string, mode match.Mode)
}

var _ Arena = (*arena.Service)(nil)

type Options struct {
	OutboundQueue  int
	PingInterval   time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string
	// AllowGuests mints a guest identity and cookie for anonymous sockets.
	AllowGuests bool
}

func DefaultOptions() Options {
	return Options{
		OutboundQueue:  64,
		PingInterval:   30 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

// Server upgrades /ws/{mode} requests and pumps frames between the socket
// and the arena.
type Server struct {
	hub   *Hub
	arena Arena
	msgs  *msgcat.Catalog
	opts  Options
	log   *zap.Logger
}

func NewServer(hub *Hub, a Arena, opts Options) *Server {
	d := DefaultOptions()
	if opts.OutboundQueue <= 0 {
		opts.OutboundQueue = d.OutboundQueue
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = d.PingInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = d.RequestTimeout
	}
	return &Server{hub: hub, arena: a, msgs: hub.msgs, opts: opts, log: obslog.Named("gateway")}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/{mode}", s.handleWS)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	mode, ok := match.ParseMode(r.PathValue("mode"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	identity := IdentityFrom(r)
	if identity == "" && s.opts.AllowGuests {
		identity = issueGuest(w)
	}
	if identity == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.opts.AllowedOrigins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.log.Debug("gateway_accept_failed", zap.String("identity", identity), zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newConn(s.hub.nextID(), identity, mode, ws, s.opts.OutboundQueue, s.log)
	if prev := s.hub.register(c); prev != nil {
		c.log.Info("gateway_conn_replaced", zap.Uint64("previous", prev.id))
		go prev.Close(StatusReplaced, "replaced")
	}
	c.log.Info("gateway_connected")
	go c.writeLoop(ctx, s.opts.PingInterval)

	s.arena.Connect(ctx, identity, mode)
	s.readLoop(ctx, c)

	current := s.hub.unregister(c)
	c.Close(websocket.StatusNormalClosure, "")
	if current {
		s.arena.Disconnect(identity, mode)
	}
	c.log.Info("gateway_disconnected", zap.Bool("current", current))
}

func (s *Server) readLoop(ctx context.Context, c *Conn) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if st := websocket.CloseStatus(err); st == -1 {
				c.log.Debug("gateway_read_failed", zap.Error(err))
			}
			return
		}
		var env arenadto.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			c.Send(s.errorEnvelope(&payloadError{typ: "frame", err: err}, arenadto.Envelope{Type: "frame"}, ""))
			continue
		}
		s.handle(ctx, c, env)
	}
}

func (s *Server) handle(ctx context.Context, c *Conn, env arenadto.Envelope) {
	rctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()
	ref, err := s.dispatch(rctx, c, env)
	if err == nil {
		return
	}
	c.log.Debug("gateway_request_failed", zap.String("type", env.Type), zap.Error(err))
	c.Send(s.errorEnvelope(err, env, ref))
}
