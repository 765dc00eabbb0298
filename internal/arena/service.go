package arena

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/archive"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/events"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/matchmaking"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/rooms"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
)

var (
	ErrInvalidArgs     = errf("invalid arguments")
	ErrNoActiveSession = errf("no active session")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

type Config struct {
	Match             match.Config
	DisconnectGrace   time.Duration
	TerminalGrace     time.Duration
	DefaultDifficulty int
	// ExpireTimeout bounds the forfeit issued when a grace timer fires.
	ExpireTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Match:             match.DefaultConfig(),
		DisconnectGrace:   60 * time.Second,
		TerminalGrace:     120 * time.Second,
		DefaultDifficulty: 3,
		ExpireTimeout:     5 * time.Second,
	}
}

// Deps are the collaborators of the service. Only Notifier is required.
type Deps struct {
	Notifier match.Notifier
	Journal  match.Journal
	Computer match.Computer
	Oracle   rules.Oracle
	Rooms    *rooms.Manager
	Archive  *archive.Recorder
	Events   events.Publisher
	Logger   *zap.Logger
}

// Service forms matches and routes player actions to their session.
// mu guards formation bookkeeping and is never held while waiting on a session.
type Service struct {
	cfg      Config
	sessions *registry.Registry[*match.Session]
	queue    *matchmaking.Queue
	rooms    *rooms.Manager
	notifier match.Notifier
	journal  match.Journal
	computer match.Computer
	oracle   rules.Oracle
	archive  *archive.Recorder
	events   events.Publisher
	log      *zap.Logger

	mu  sync.Mutex
	all map[string]*match.Session
}

func New(cfg Config, deps Deps) *Service {
	d := DefaultConfig()
	cfg.Match = cfg.Match.WithDefaults()
	if cfg.DisconnectGrace <= 0 {
		cfg.DisconnectGrace = d.DisconnectGrace
	}
	if cfg.TerminalGrace <= 0 {
		cfg.TerminalGrace = d.TerminalGrace
	}
	if cfg.DefaultDifficulty == 0 {
		cfg.DefaultDifficulty = d.DefaultDifficulty
	}
	if cfg.ExpireTimeout <= 0 {
		cfg.ExpireTimeout = d.ExpireTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = obslog.Named("arena")
	}
	rm := deps.Rooms
	if rm == nil {
		rm = rooms.NewManager()
	}
	oracle := deps.Oracle
	if oracle == nil {
		oracle = rules.New()
	}
	pub := deps.Events
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		cfg:      cfg,
		sessions: registry.New[*match.Session](),
		queue:    matchmaking.NewQueue(),
		rooms:    rm,
		notifier: deps.Notifier,
		journal:  deps.Journal,
		computer: deps.Computer,
		oracle:   oracle,
		archive:  deps.Archive,
		events:   pub,
		log:      logger,
		all:      make(map[string]*match.Session),
	}
}

func (s *Service) Rooms() *rooms.Manager { return s.rooms }

// MatchConfig returns the tunables every session of this service runs with.
func (s *Service) MatchConfig() match.Config { return s.cfg.Match }

// InitQuick pairs identity with the longest waiting player or queues it.
func (s *Service) InitQuick(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return ErrInvalidArgs
	}
	s.mu.Lock()
	if sess, ok := s.sessions.Live(identity, match.ModeQuick); ok {
		s.mu.Unlock()
		return s.sendExisting(ctx, sess, identity)
	}
	var (
		sess *match.Session
		pair *matchmaking.Pair
	)
	for sess == nil {
		ticket, p, err := s.queue.Request(identity)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		if p == nil {
			s.mu.Unlock()
			s.log.Info("quick_waiting", zap.String("identity", identity), zap.String("ticket", ticket.ID))
			s.notify(identity, match.ModeQuick, arenadto.TypeWaitingForOpponent, arenadto.Notice{})
			return nil
		}
		// A ticket whose owner is already playing is stale; drop it.
		if _, busy := s.sessions.Live(p.White, match.ModeQuick); busy {
			s.log.Warn("quick_stale_ticket", zap.String("identity", p.White), zap.String("ticket", p.Ticket.ID))
			continue
		}
		next := s.newSessionLocked(match.ModeQuick, match.Players{White: p.White, Black: p.Black}, 0)
		if err := s.bindAll(next); err != nil {
			s.queue.Requeue(p.Ticket)
			s.dropLocked(next)
			s.mu.Unlock()
			return err
		}
		sess, pair = next, p
	}
	s.mu.Unlock()

	s.log.Info("quick_paired",
		zap.String("session_id", sess.ID()),
		zap.String("white", pair.White),
		zap.String("black", pair.Black),
		zap.Duration("waited", s.now().Sub(pair.Ticket.EnqueuedAt)),
	)
	sess.Start()
	return nil
}

// CancelQuick takes identity out of the quick-match queue.
func (s *Service) CancelQuick(identity string) error {
	if err := s.queue.Cancel(identity); err != nil {
		return err
	}
	s.notify(identity, match.ModeQuick, arenadto.TypeMatchingCancelled, arenadto.Notice{})
	return nil
}

// InitComputer starts a match against the engine. difficulty 0 means the
// configured default. color is the human side: white, black or random.
func (s *Service) InitComputer(ctx context.Context, identity string, difficulty int, color string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return ErrInvalidArgs
	}
	if difficulty == 0 {
		difficulty = s.cfg.DefaultDifficulty
	}
	if difficulty < 1 || difficulty > 8 {
		return ErrInvalidArgs
	}
	if sess, ok := s.sessions.Live(identity, match.ModeComputer); ok {
		return s.sendExisting(ctx, sess, identity)
	}
	players := match.Players{Black: identity}
	if rooms.CreatorPlaysWhite(rooms.ParseColorChoice(color)) {
		players = match.Players{White: identity}
	}

	s.mu.Lock()
	sess := s.newSessionLocked(match.ModeComputer, players, difficulty)
	if err := s.bindAll(sess); err != nil {
		s.dropLocked(sess)
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	sess.Start()
	return nil
}

// InitRoom is the socket entry of a room player. An outsider joins; the
// creator of a FULL room starts the match; anyone else waits.
func (s *Service) InitRoom(ctx context.Context, identity, code string) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return ErrInvalidArgs
	}
	if sess, ok := s.sessions.Live(identity, match.ModeRoom); ok {
		return s.sendExisting(ctx, sess, identity)
	}
	if strings.TrimSpace(code) == "" {
		r, ok := s.rooms.ByOccupant(identity)
		if !ok {
			return ErrInvalidArgs
		}
		code = r.Code
	}
	room, err := s.rooms.Get(code)
	if err != nil {
		return err
	}
	if !room.Has(identity) {
		if room, err = s.JoinRoom(code, identity); err != nil {
			return err
		}
	}
	if room.CreatorID != identity || room.Status != rooms.StatusFull {
		s.notify(identity, match.ModeRoom, arenadto.TypeRoomWaiting, arenadto.Notice{RoomCode: room.Code})
		return nil
	}
	return s.StartRoom(identity, room.Code)
}

// StartRoom opens the match of a FULL room for its creator.
func (s *Service) StartRoom(identity, code string) error {
	var sess *match.Session
	s.mu.Lock()
	_, err := s.rooms.Start(code, identity, func(r rooms.Room) (string, error) {
		white, black := rooms.Colors(r)
		sess = s.newSessionLocked(match.ModeRoom, match.Players{White: white, Black: black}, 0)
		if err := s.bindAll(sess); err != nil {
			s.dropLocked(sess)
			return "", err
		}
		return sess.ID(), nil
	})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	sess.Start()
	return nil
}

func (s *Service) CreateRoom(identity string, color string) (rooms.Room, error) {
	return s.rooms.Create(identity, rooms.ParseColorChoice(color))
}

// JoinRoom adds identity to a room and tells the creator when it fills.
func (s *Service) JoinRoom(code, identity string) (rooms.Room, error) {
	room, err := s.rooms.Join(code, identity)
	if err != nil {
		return rooms.Room{}, err
	}
	if room.Status == rooms.StatusFull && room.CreatorID != identity {
		s.notify(room.CreatorID, match.ModeRoom, arenadto.TypeRoomReady, arenadto.Notice{RoomCode: room.Code})
	}
	return room, nil
}

// CancelRoom closes a room for its creator and evicts the joiner.
func (s *Service) CancelRoom(code, identity string) (rooms.Room, error) {
	room, evicted, err := s.rooms.Cancel(code, identity)
	if err != nil {
		return rooms.Room{}, err
	}
	s.evict(room.Code, evicted)
	return room, nil
}

func (s *Service) Rematch(code, identity string) (rooms.Room, error) {
	return s.rooms.Rematch(code, identity)
}

// Leave handles leave_room. In a room it leaves the room, resigning an
// active match. Elsewhere it cancels matching or resigns.
func (s *Service) Leave(ctx context.Context, identity string, mode match.Mode) error {
	switch mode {
	case match.ModeRoom:
		return s.leaveRoom(ctx, identity)
	case match.ModeQuick:
		if _, ok := s.queue.Waiting(identity); ok {
			return s.CancelQuick(identity)
		}
	}
	sess, ok := s.sessions.Live(identity, mode)
	if !ok {
		return ErrNoActiveSession
	}
	sess.NotifyOpponent(identity, arenadto.NewEnvelope(arenadto.TypePlayerLeft, arenadto.Notice{}))
	return sess.Resign(ctx, identity)
}

func (s *Service) leaveRoom(ctx context.Context, identity string) error {
	room, ok := s.rooms.ByOccupant(identity)
	if !ok {
		return rooms.ErrRoomNotFound
	}
	res, err := s.rooms.Leave(room.Code, identity)
	if err != nil {
		return err
	}
	if res.SessionID != "" {
		sess, ok := s.sessionByID(res.SessionID)
		if !ok {
			return ErrNoActiveSession
		}
		sess.NotifyOpponent(identity, arenadto.NewEnvelope(arenadto.TypePlayerLeft, arenadto.Notice{RoomCode: room.Code}))
		return sess.Resign(ctx, identity)
	}
	if res.Cancelled {
		s.evict(room.Code, res.Evicted)
		return nil
	}
	s.notify(res.Room.CreatorID, match.ModeRoom, arenadto.TypePlayerLeft, arenadto.Notice{RoomCode: room.Code})
	return nil
}

func (s *Service) Move(ctx context.Context, identity string, mode match.Mode, mv arenadto.Move) error {
	sess, err := s.session(identity, mode)
	if err != nil {
		return err
	}
	return sess.SubmitMove(ctx, identity, mv)
}

func (s *Service) OfferDraw(ctx context.Context, identity string, mode match.Mode) error {
	sess, err := s.session(identity, mode)
	if err != nil {
		return err
	}
	return sess.OfferDraw(ctx, identity)
}

func (s *Service) RespondDraw(ctx context.Context, identity string, mode match.Mode, accept bool) error {
	sess, err := s.session(identity, mode)
	if err != nil {
		return err
	}
	return sess.RespondDraw(ctx, identity, accept)
}

func (s *Service) Resign(ctx context.Context, identity string, mode match.Mode) error {
	sess, err := s.session(identity, mode)
	if err != nil {
		return err
	}
	return sess.Resign(ctx, identity)
}

func (s *Service) Abort(ctx context.Context, identity string, mode match.Mode) error {
	sess, err := s.session(identity, mode)
	if err != nil {
		return err
	}
	return sess.Abort(ctx, identity)
}

// Resync is the read-only view of identity's match in mode.
func (s *Service) Resync(ctx context.Context, identity string, mode match.Mode) (arenadto.GameState, error) {
	if sess, ok := s.sessions.Lookup(identity, mode); ok {
		return sess.Snapshot(ctx, identity)
	}
	if mode == match.ModeQuick {
		if _, ok := s.queue.Waiting(identity); ok {
			return arenadto.GameState{
				Mode:           string(match.ModeQuick),
				Status:         string(match.StatusMatching),
				Moves:          []arenadto.Move{},
				CapturedPieces: []string{},
			}, nil
		}
	}
	return arenadto.GameState{}, ErrNoActiveSession
}

// Connect runs when identity opens a socket for mode. It cancels a pending
// disconnect grace and replays the bound match.
func (s *Service) Connect(ctx context.Context, identity string, mode match.Mode) {
	cancelled := s.sessions.MarkConnected(identity, mode)
	sess, ok := s.sessions.Live(identity, mode)
	if !ok {
		return
	}
	if cancelled {
		s.log.Info("player_reconnected", zap.String("identity", identity), zap.String("session_id", sess.ID()))
		sess.PeerReconnected(identity)
	}
	if err := s.sendExisting(ctx, sess, identity); err != nil {
		s.log.Warn("resync_failed", zap.String("identity", identity), zap.Error(err))
	}
}

// Disconnect runs when identity's socket for mode is gone. Queued players
// leave the queue at once; players in a match or an open room get the
// disconnect grace before they forfeit or leave.
func (s *Service) Disconnect(identity string, mode match.Mode) {
	if mode == match.ModeQuick {
		_ = s.queue.Cancel(identity)
	}
	sess, live := s.sessions.Live(identity, mode)
	inRoom := false
	if !live && mode == match.ModeRoom {
		_, inRoom = s.rooms.ByOccupant(identity)
	}
	if !live && !inRoom {
		return
	}
	grace := s.cfg.DisconnectGrace
	if live {
		sess.PeerDisconnected(identity, grace)
	}
	s.log.Info("player_disconnected", zap.String("identity", identity), zap.String("mode", string(mode)), zap.Duration("grace", grace))
	s.sessions.MarkDisconnected(identity, mode, grace, func() { s.expire(identity, mode) })
}

func (s *Service) expire(identity string, mode match.Mode) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ExpireTimeout)
	defer cancel()
	if sess, ok := s.sessions.Live(identity, mode); ok {
		s.log.Info("grace_expired", zap.String("identity", identity), zap.String("session_id", sess.ID()))
		if err := sess.Forfeit(ctx, identity); err != nil {
			s.log.Warn("forfeit_failed", zap.String("identity", identity), zap.Error(err))
		}
		return
	}
	if mode == match.ModeRoom {
		if err := s.leaveRoom(ctx, identity); err != nil {
			s.log.Debug("room_leave_on_expire", zap.String("identity", identity), zap.Error(err))
		}
	}
}

// Stats is a point-in-time count for health reporting.
type Stats struct {
	Sessions     int `json:"sessions"`
	Queued       int `json:"queued"`
	WaitingRooms int `json:"waitingRooms"`
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	n := len(s.all)
	s.mu.Unlock()
	return Stats{Sessions: n, Queued: s.queue.Len(), WaitingRooms: len(s.rooms.Waiting())}
}

// Close stops every session and waits for pending archive writes.
func (s *Service) Close() {
	s.mu.Lock()
	all := make([]*match.Session, 0, len(s.all))
	for _, sess := range s.all {
		all = append(all, sess)
	}
	s.all = make(map[string]*match.Session)
	s.mu.Unlock()
	for _, sess := range all {
		s.sessions.Release(sess.ID())
		sess.Close()
	}
	if s.archive != nil {
		s.archive.Wait()
	}
}

func (s *Service) session(identity string, mode match.Mode) (*match.Session, error) {
	sess, ok := s.sessions.Lookup(identity, mode)
	if !ok {
		return nil, ErrNoActiveSession
	}
	return sess, nil
}

func (s *Service) sessionByID(id string) (*match.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.all[id]
	return sess, ok
}

func (s *Service) sendExisting(ctx context.Context, sess *match.Session, identity string) error {
	snap, err := sess.Snapshot(ctx, identity)
	if err != nil {
		return err
	}
	s.notify(identity, sess.Mode(), arenadto.TypeExistingGameFound, snap)
	return nil
}

func (s *Service) newSessionLocked(mode match.Mode, players match.Players, difficulty int) *match.Session {
	var computer match.Computer
	if mode == match.ModeComputer {
		computer = s.computer
	}
	sess := match.New(match.Options{
		Mode:       mode,
		Players:    players,
		Difficulty: difficulty,
		Config:     s.cfg.Match,
		Oracle:     s.oracle,
		Computer:   computer,
		Notifier:   s.notifier,
		Journal:    s.journal,
		OnTerminal: s.onTerminal,
		Logger:     obslog.Named("match"),
	})
	s.all[sess.ID()] = sess
	return sess
}

func (s *Service) bindAll(sess *match.Session) error {
	p := sess.Players()
	for _, id := range []string{p.White, p.Black} {
		if id == "" {
			continue
		}
		if err := s.sessions.Bind(id, sess.Mode(), sess); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) dropLocked(sess *match.Session) {
	delete(s.all, sess.ID())
	s.sessions.Release(sess.ID())
	sess.Close()
}

// onTerminal runs on the session goroutine. It must not wait on the session.
func (s *Service) onTerminal(rec match.Record) {
	var row *domain.MatchRecord
	if s.archive != nil {
		row = s.archive.Archive(rec)
	} else {
		row = archive.FromRecord(rec)
	}
	s.events.MatchFinished(row)
	if rec.Mode == match.ModeRoom {
		s.rooms.Finish(rec.ID)
	}
	time.AfterFunc(s.cfg.TerminalGrace, func() { s.release(rec.ID) })
}

// release drops a finished session after its resync window.
func (s *Service) release(id string) {
	s.mu.Lock()
	sess, ok := s.all[id]
	delete(s.all, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	ids := s.sessions.Release(id)
	sess.Close()
	s.log.Debug("session_released", zap.String("session_id", id), zap.Strings("identities", ids))
}

func (s *Service) evict(code string, identities []string) {
	for _, id := range identities {
		s.notify(id, match.ModeRoom, arenadto.TypeRoomCancelled, arenadto.Notice{RoomCode: code})
	}
}

func (s *Service) notify(identity string, mode match.Mode, typ string, payload any) {
	if s.notifier == nil || identity == "" {
		return
	}
	s.notifier.Notify(identity, mode, arenadto.NewEnvelope(typ, payload))
}

func (s *Service) now() time.Time {
	if s.cfg.Match.Now != nil {
		return s.cfg.Match.Now()
	}
	return time.Now()
}
