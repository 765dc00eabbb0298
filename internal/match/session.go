package match

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
)

// ComputerName is shown to the human as the opponent in computer mode.
const ComputerName = "computer"

type Options struct {
	ID         string
	Mode       Mode
	Players    Players
	Difficulty int
	Config     Config
	Oracle     rules.Oracle
	Computer   Computer
	Notifier   Notifier
	Journal    Journal
	// OnTerminal runs on the session goroutine right after the match ends.
	// It must not call back into this session synchronously.
	OnTerminal func(Record)
	Logger     *zap.Logger
}

// Session owns one match. All state lives on the run goroutine; every
// mutation and read is a command executed there in arrival order.
type Session struct {
	id         string
	mode       Mode
	players    Players
	difficulty int

	cfg        Config
	oracle     rules.Oracle
	computer   Computer
	notifier   Notifier
	journal    Journal
	onTerminal func(Record)
	log        *zap.Logger

	cmds      chan func()
	quit      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool
	terminal  atomic.Bool

	st state
}

type state struct {
	status   Status
	fen      string
	turn     Color
	moves    []arenadto.Move
	san      []string
	captured []string

	whiteTimer int
	blackTimer int

	drawUsed   map[Color]int
	lastDrawAt map[Color]time.Time
	drawBy     Color
	drawSeq    int
	drawTimer  *time.Timer

	result    *Result
	startedAt time.Time
	updatedAt time.Time
	endedAt   time.Time
}

func New(opts Options) *Session {
	cfg := opts.Config.WithDefaults()
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.NewString()
	}
	oracle := opts.Oracle
	if oracle == nil {
		oracle = rules.New()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	journal := opts.Journal
	if journal == nil {
		journal = nopJournal{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = obslog.L()
	}
	now := cfg.Now()
	s := &Session{
		id:         id,
		mode:       opts.Mode,
		players:    opts.Players,
		difficulty: opts.Difficulty,
		cfg:        cfg,
		oracle:     oracle,
		computer:   opts.Computer,
		notifier:   notifier,
		journal:    journal,
		onTerminal: opts.OnTerminal,
		log:        logger.With(zap.String("session_id", id), zap.String("mode", string(opts.Mode))),
		cmds:       make(chan func(), cfg.QueueSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		st: state{
			status:     StatusActive,
			fen:        rules.StartFEN,
			turn:       White,
			moves:      []arenadto.Move{},
			san:        []string{},
			captured:   []string{},
			whiteTimer: cfg.ClockSeconds,
			blackTimer: cfg.ClockSeconds,
			drawUsed:   map[Color]int{},
			lastDrawAt: map[Color]time.Time{},
			startedAt:  now,
			updatedAt:  now,
		},
	}
	return s
}

func (s *Session) ID() string { return s.id }
func (s *Session) Mode() Mode { return s.mode }
func (s *Session) Players() Players { return s.players }
func (s *Session) Terminal() bool { return s.terminal.Load() }
func (s *Session) Done() <-chan struct{} { return s.done }

// Start launches the session goroutine and announces the match to both players.
// If the computer plays white it moves first.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		s.cmds <- func() {
			s.log.Info("match_start",
				zap.String("white", s.players.White),
				zap.String("black", s.players.Black),
				zap.Int("difficulty", s.difficulty),
			)
			s.journal.Record(s.record())
			s.announce(arenadto.TypeGameActive)
			if s.isComputer(s.st.turn) {
				s.playComputer()
			}
		}
		go s.run()
	})
}

// Close stops the goroutine. Pending commands are dropped.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		if !s.started.Load() {
			close(s.done)
		}
	})
	<-s.done
}

func (s *Session) run() {
	defer close(s.done)
	var tick <-chan time.Time
	if s.cfg.TickInterval > 0 {
		t := time.NewTicker(s.cfg.TickInterval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-s.quit:
			s.stopDrawTimer()
			return
		case cmd := <-s.cmds:
			cmd()
		case <-tick:
			s.tick()
		}
		if s.st.status == StatusTerminal {
			tick = nil
		}
	}
}

// do runs fn on the session goroutine and waits for its result.
// Once dequeued, fn always runs to completion even if ctx ends.
func (s *Session) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	cmd := func() { res <- fn() }
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-s.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post enqueues fn without waiting. Used by timers.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

func (s *Session) SubmitMove(ctx context.Context, identity string, mv arenadto.Move) error {
	return s.do(ctx, func() error { return s.applyMove(identity, mv) })
}

func (s *Session) OfferDraw(ctx context.Context, identity string) error {
	return s.do(ctx, func() error { return s.offerDraw(identity) })
}

func (s *Session) RespondDraw(ctx context.Context, identity string, accept bool) error {
	return s.do(ctx, func() error { return s.respondDraw(identity, accept) })
}

func (s *Session) Resign(ctx context.Context, identity string) error {
	return s.do(ctx, func() error { return s.concede(identity, ResultResignation) })
}

// Forfeit ends the match against identity after its disconnect grace expired.
func (s *Session) Forfeit(ctx context.Context, identity string) error {
	return s.do(ctx, func() error { return s.concede(identity, ResultForfeit) })
}

// Abort ends a match in which no move has been played, without a winner.
func (s *Session) Abort(ctx context.Context, identity string) error {
	return s.do(ctx, func() error {
		if s.st.status == StatusTerminal {
			return ErrMatchEnded
		}
		if _, ok := s.colorOf(identity); !ok {
			return ErrNotParticipant
		}
		if len(s.st.moves) > 0 {
			return ErrAbortTooLate
		}
		s.finish(Result{Kind: ResultAborted})
		return nil
	})
}

// Tick advances the running clock by one second.
func (s *Session) Tick(ctx context.Context) error {
	return s.do(ctx, func() error { s.tick(); return nil })
}

// Snapshot is the resync view for identity. It never mutates state.
func (s *Session) Snapshot(ctx context.Context, identity string) (arenadto.GameState, error) {
	var out arenadto.GameState
	err := s.do(ctx, func() error {
		c, ok := s.colorOf(identity)
		if !ok {
			return ErrNotParticipant
		}
		out = s.snapshotFor(c)
		return nil
	})
	return out, err
}

// Record returns the persisted form of the current state.
func (s *Session) Record(ctx context.Context) (Record, error) {
	var rec Record
	err := s.do(ctx, func() error { rec = s.record(); return nil })
	return rec, err
}

// PeerDisconnected tells the opponent that identity dropped.
func (s *Session) PeerDisconnected(identity string, grace time.Duration) {
	s.post(func() {
		if s.st.status == StatusTerminal {
			return
		}
		c, ok := s.colorOf(identity)
		if !ok {
			return
		}
		s.notifyColor(c.Opponent(), arenadto.NewEnvelope(arenadto.TypeOppDisconnected, arenadto.Notice{Seconds: int(grace / time.Second)}))
	})
}

// PeerReconnected tells the opponent that identity is back.
func (s *Session) PeerReconnected(identity string) {
	s.post(func() {
		if s.st.status == StatusTerminal {
			return
		}
		c, ok := s.colorOf(identity)
		if !ok {
			return
		}
		s.notifyColor(c.Opponent(), arenadto.NewEnvelope(arenadto.TypeOppReconnected, nil))
	})
}

// NotifyOpponent sends env to the other player of identity.
func (s *Session) NotifyOpponent(identity string, env arenadto.Envelope) {
	s.post(func() {
		if c, ok := s.colorOf(identity); ok {
			s.notifyColor(c.Opponent(), env)
		}
	})
}

func (s *Session) concede(identity string, kind ResultKind) error {
	if s.st.status == StatusTerminal {
		return ErrMatchEnded
	}
	c, ok := s.colorOf(identity)
	if !ok {
		return ErrNotParticipant
	}
	s.finish(Result{Kind: kind, Winner: c.Opponent()})
	return nil
}

func (s *Session) colorOf(identity string) (Color, bool) {
	if identity == "" {
		return "", false
	}
	switch identity {
	case s.players.White:
		return White, true
	case s.players.Black:
		return Black, true
	}
	return "", false
}

func (s *Session) isComputer(c Color) bool {
	return s.mode == ModeComputer && s.players.Of(c) == ""
}

func (s *Session) snapshotFor(c Color) arenadto.GameState {
	st := &s.st
	out := arenadto.GameState{
		SessionID:      s.id,
		Mode:           string(s.mode),
		Status:         string(st.status),
		FEN:            st.fen,
		Color:          string(c),
		Turn:           string(st.turn),
		Moves:          append([]arenadto.Move{}, st.moves...),
		CapturedPieces: append([]string{}, st.captured...),
		WhiteTimer:     st.whiteTimer,
		BlackTimer:     st.blackTimer,
		DrawPending:    st.status == StatusDrawPending,
		DrawOfferedBy:  string(st.drawBy),
		DrawOffersLeft: s.drawOffersLeft(c),
		Opponent:       s.players.Of(c.Opponent()),
		Difficulty:     s.difficulty,
	}
	if s.isComputer(c.Opponent()) {
		out.Opponent = ComputerName
	}
	if st.result != nil {
		out.Result = &arenadto.Result{Kind: string(st.result.Kind), Winner: string(st.result.Winner)}
	}
	return out
}

func (s *Session) record() Record {
	st := &s.st
	uci := make([]string, len(st.moves))
	for i, mv := range st.moves {
		uci[i] = mv.UCI()
	}
	rec := Record{
		ID:         s.id,
		Mode:       s.mode,
		White:      s.players.White,
		Black:      s.players.Black,
		Difficulty: s.difficulty,
		FEN:        st.fen,
		MovesUCI:   uci,
		MovesSAN:   append([]string{}, st.san...),
		Captured:   append([]string{}, st.captured...),
		WhiteTimer: st.whiteTimer,
		BlackTimer: st.blackTimer,
		Status:     st.status,
		StartedAt:  st.startedAt,
		UpdatedAt:  st.updatedAt,
		EndedAt:    st.endedAt,
	}
	if st.result != nil {
		r := *st.result
		rec.Result = &r
	}
	return rec
}

func (s *Session) announce(typ string) {
	for _, c := range []Color{White, Black} {
		s.notifyColor(c, arenadto.NewEnvelope(typ, s.snapshotFor(c)))
	}
}

func (s *Session) broadcast(env arenadto.Envelope) {
	s.notifyColor(White, env)
	s.notifyColor(Black, env)
}

func (s *Session) notifyColor(c Color, env arenadto.Envelope) {
	if id := s.players.Of(c); id != "" {
		s.notifier.Notify(id, s.mode, env)
	}
}
