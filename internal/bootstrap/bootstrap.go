package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/arena"
	"github.com/park285/cheese-arena/internal/archive"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/engine"
	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/gateway"
	"github.com/park285/cheese-arena/internal/httpapi"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/rooms"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
)

// App is the wired server. Close releases everything Build opened.
type App struct {
	Arena     *arena.Service
	Hub       *gateway.Hub
	WSHandler http.Handler
	HTTP      *httpapi.Server

	closers []func() error
	log     *zap.Logger
}

// Build wires the arena from cfg. Redis, Postgres, NATS and Stockfish are
// each optional; an unset URL or path selects the in-process fallback.
func Build(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{log: logger}
	fail := func(err error) (*App, error) {
		_ = app.Close()
		return nil, err
	}

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fail(fmt.Errorf("load messages: %w", err))
	}

	// Live state mirror (Redis optional)
	var journal match.Journal
	var journalReader httpapi.JournalReader
	mirrors := rooms.Mirrors{}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		st, err := store.Open(ctx, cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("init redis: %w", err))
		}
		w := store.NewWriter(st, 0)
		app.closers = append(app.closers, func() error { w.Close(); return st.Close() })
		journal = w
		journalReader = st
		mirrors = append(mirrors, w)
	} else {
		logger.Warn("redis_disabled", zap.String("reason", "REDIS_URL not set"))
	}

	// Archive (Postgres optional)
	var repo archive.Repository
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pg, err := archive.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("init postgres: %w", err))
		}
		app.closers = append(app.closers, pg.Close)
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = pg.EnsureSchema(sctx)
		cancel()
		if err != nil {
			return fail(fmt.Errorf("ensure schema: %w", err))
		}
		repo = pg
	} else {
		logger.Warn("archive_in_memory", zap.String("reason", "DATABASE_URL not set"))
		repo = archive.NewMemoryRepository()
	}

	// Events (NATS optional)
	var pub events.Publisher = events.Nop{}
	if strings.TrimSpace(cfg.NATSURL) != "" {
		np, err := events.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			return fail(fmt.Errorf("init nats: %w", err))
		}
		app.closers = append(app.closers, np.Close)
		pub = np
		mirrors = append(mirrors, events.RoomMirror{Publisher: np})
	}

	// Engine (Stockfish optional; without it the computer plays random legal moves)
	var mover engine.BestMover
	if strings.TrimSpace(cfg.StockfishPath) != "" {
		sf, err := engine.NewStockfish(cfg.StockfishPath, cfg.EnginePoolSize)
		if err != nil {
			return fail(fmt.Errorf("init engine: %w", err))
		}
		app.closers = append(app.closers, sf.Close)
		mover = sf
	} else {
		logger.Warn("engine_fallback_only", zap.String("reason", "STOCKFISH_PATH not set"))
	}
	computer := engine.NewAdapter(mover, engine.WithTimeout(cfg.EngineTimeout))

	rm := rooms.NewManager(rooms.WithMirror(mirrors), rooms.WithLogger(logger.Named("rooms")))
	hub := gateway.NewHub(msgs)

	svc := arena.New(arena.Config{
		Match:             MatchConfig(cfg),
		DisconnectGrace:   cfg.DisconnectGrace,
		TerminalGrace:     cfg.TerminalGrace,
		DefaultDifficulty: cfg.DefaultDifficulty,
	}, arena.Deps{
		Notifier: hub,
		Journal:  journal,
		Computer: computer,
		Rooms:    rm,
		Archive:  archive.NewRecorder(repo),
		Events:   pub,
		Logger:   logger.Named("arena"),
	})
	// 세션 종료가 먼저, 그 다음 외부 연결을 닫는다.
	app.closers = append([]func() error{func() error { hub.CloseAll(); svc.Close(); return nil }}, app.closers...)

	ws := gateway.NewServer(hub, svc, gateway.Options{
		OutboundQueue:  cfg.OutboundQueueCapacity,
		AllowedOrigins: cfg.AllowedOrigins,
		AllowGuests:    cfg.AllowGuests,
	})
	api := httpapi.NewServer(svc, httpapi.Options{Archive: repo, Journal: journalReader, Sockets: hub.Count})
	mux := http.NewServeMux()
	ws.Register(mux)
	mux.HandleFunc("GET /healthz", healthHandler(svc, hub))

	app.Arena = svc
	app.Hub = hub
	app.WSHandler = mux
	app.HTTP = api
	return app, nil
}

// healthHandler serves /healthz next to the sockets so one port can be probed.
func healthHandler(svc *arena.Service, hub *gateway.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		st := svc.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(arenadto.Health{
			Status:       "ok",
			Sessions:     st.Sessions,
			Queued:       st.Queued,
			WaitingRooms: st.WaitingRooms,
			Sockets:      hub.Count(),
		})
	}
}

// MatchConfig maps the match tunables of cfg.
func MatchConfig(cfg *config.AppConfig) match.Config {
	mc := match.DefaultConfig()
	mc.ClockSeconds = cfg.ClockSeconds
	mc.TickInterval = cfg.TickInterval
	mc.MaxDrawOffers = cfg.MaxDrawOffers
	mc.DrawCooldown = cfg.DrawCooldown
	mc.DrawResponseTimeout = cfg.DrawResponseTimeout
	if cfg.OracleTimeout > 0 {
		mc.OracleTimeout = cfg.OracleTimeout
	}
	if cfg.EngineTimeout > 0 {
		mc.EngineTimeout = cfg.EngineTimeout
	}
	return mc
}

// Close runs the closers in order and joins their errors.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
