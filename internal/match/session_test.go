package match

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

type sent struct {
	to  string
	env arenadto.Envelope
}

type recorder struct {
	mu  sync.Mutex
	out []sent
}

func (r *recorder) Notify(identity string, _ Mode, env arenadto.Envelope) {
	r.mu.Lock()
	r.out = append(r.out, sent{to: identity, env: env})
	r.mu.Unlock()
}

func (r *recorder) types(identity string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.out {
		if s.to == identity {
			out = append(out, s.env.Type)
		}
	}
	return out
}

func (r *recorder) last(identity, typ string) (arenadto.Envelope, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.out) - 1; i >= 0; i-- {
		if r.out[i].to == identity && r.out[i].env.Type == typ {
			return r.out[i].env, true
		}
	}
	return arenadto.Envelope{}, false
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	s     *Session
	rec   *recorder
	clock *fakeClock
	ended chan Record
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		rec:   &recorder{},
		clock: &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		ended: make(chan Record, 1),
	}
	cfg := DefaultConfig()
	cfg.ManualClock = true
	cfg.Now = h.clock.Now
	opts := Options{
		ID:         "s1",
		Mode:       ModeQuick,
		Players:    Players{White: "w", Black: "b"},
		Config:     cfg,
		Notifier:   h.rec,
		OnTerminal: func(r Record) { h.ended <- r },
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.s = New(opts)
	h.s.Start()
	t.Cleanup(h.s.Close)
	return h
}

func (h *harness) move(t *testing.T, who, uci string) error {
	t.Helper()
	mv, ok := moveFromUCI(uci)
	if !ok {
		t.Fatalf("bad test move %q", uci)
	}
	return h.s.SubmitMove(context.Background(), who, mv)
}

func (h *harness) snap(t *testing.T, who string) arenadto.GameState {
	t.Helper()
	gs, err := h.s.Snapshot(context.Background(), who)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return gs
}

func TestStartAnnouncesBothPlayers(t *testing.T) {
	h := newHarness(t, nil)
	gs := h.snap(t, "w")
	if gs.Status != string(StatusActive) || gs.Color != "white" || gs.Opponent != "b" {
		t.Fatalf("unexpected state: %+v", gs)
	}
	for _, id := range []string{"w", "b"} {
		if _, ok := h.rec.last(id, arenadto.TypeGameActive); !ok {
			t.Fatalf("%s did not get game_active", id)
		}
	}
}

func TestWrongTurnLeavesPositionUnchanged(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.move(t, "b", "e7e5"); !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("err=%v want ErrWrongTurn", err)
	}
	if gs := h.snap(t, "w"); gs.FEN != rules.StartFEN || len(gs.Moves) != 0 {
		t.Fatalf("state mutated: %+v", gs)
	}
}

func TestMoveValidation(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.s.SubmitMove(context.Background(), "w", arenadto.Move{From: "z9", To: "e4"}); !errors.Is(err, ErrInvalidMove) {
		t.Fatalf("shape err=%v", err)
	}
	if err := h.move(t, "w", "e2e5"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("illegal err=%v", err)
	}
	if err := h.move(t, "x", "e2e4"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger err=%v", err)
	}
}

func TestTurnFollowsMoveParity(t *testing.T) {
	h := newHarness(t, nil)
	for i, step := range []struct{ who, uci string }{{"w", "e2e4"}, {"b", "e7e5"}, {"w", "g1f3"}} {
		if err := h.move(t, step.who, step.uci); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
		gs := h.snap(t, "w")
		want := "black"
		if len(gs.Moves)%2 == 0 {
			want = "white"
		}
		if gs.Turn != want {
			t.Fatalf("after %d moves turn=%s want %s", len(gs.Moves), gs.Turn, want)
		}
	}
	env, ok := h.rec.last("b", arenadto.TypeMove)
	if !ok {
		t.Fatalf("no move relay")
	}
	var relay arenadto.MoveRelay
	if err := env.Decode(&relay); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if relay.SAN != "Nf3" || relay.Turn != "black" || len(relay.ValidMoves) == 0 {
		t.Fatalf("relay=%+v", relay)
	}
}

func TestCaptureRecorded(t *testing.T) {
	h := newHarness(t, nil)
	for _, step := range []struct{ who, uci string }{{"w", "e2e4"}, {"b", "d7d5"}, {"w", "e4d5"}} {
		if err := h.move(t, step.who, step.uci); err != nil {
			t.Fatalf("%s: %v", step.uci, err)
		}
	}
	gs := h.snap(t, "b")
	if len(gs.CapturedPieces) != 1 || gs.CapturedPieces[0] != "bP" {
		t.Fatalf("captured=%v", gs.CapturedPieces)
	}
}

func TestOnlySideToMoveClockRuns(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Config.ClockSeconds = 10 })
	ctx := context.Background()
	_ = h.s.Tick(ctx)
	_ = h.s.Tick(ctx)
	gs := h.snap(t, "w")
	if gs.WhiteTimer != 8 || gs.BlackTimer != 10 {
		t.Fatalf("timers=%d/%d", gs.WhiteTimer, gs.BlackTimer)
	}
	if err := h.move(t, "w", "e2e4"); err != nil {
		t.Fatalf("move: %v", err)
	}
	_ = h.s.Tick(ctx)
	gs = h.snap(t, "w")
	if gs.WhiteTimer != 8 || gs.BlackTimer != 9 {
		t.Fatalf("timers=%d/%d", gs.WhiteTimer, gs.BlackTimer)
	}
	if _, ok := h.rec.last("b", arenadto.TypeTimer); !ok {
		t.Fatalf("no timer broadcast")
	}
}

func TestTimeoutEndsMatch(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Config.ClockSeconds = 2 })
	ctx := context.Background()
	_ = h.s.Tick(ctx)
	_ = h.s.Tick(ctx)
	if !h.s.Terminal() {
		t.Fatalf("expected terminal")
	}
	rec := <-h.ended
	if rec.Result == nil || rec.Result.Kind != ResultTimeout || rec.Result.Winner != Black {
		t.Fatalf("result=%+v", rec.Result)
	}
	for _, who := range []string{"w", "b"} {
		types := h.rec.types(who)
		if n := len(types); n == 0 || types[n-1] != arenadto.TypeTimeExceeded {
			t.Fatalf("%s tail=%v", who, types)
		}
		for _, typ := range types {
			if typ == arenadto.TypeGameOver {
				t.Fatalf("%s got a second terminal message: %v", who, types)
			}
		}
	}
	if env, ok := h.rec.last("b", arenadto.TypeTimeExceeded); ok {
		var over arenadto.GameOver
		if err := env.Decode(&over); err != nil || over.Winner != "black" || over.Loser != "white" {
			t.Fatalf("time_exceeded payload=%+v err=%v", over, err)
		}
	}
	if err := h.move(t, "w", "e2e4"); !errors.Is(err, ErrMatchEnded) {
		t.Fatalf("move after timeout err=%v", err)
	}
	_ = h.s.Tick(ctx)
	if gs := h.snap(t, "w"); gs.WhiteTimer != 0 || gs.Status != string(StatusTerminal) {
		t.Fatalf("state=%+v", gs)
	}
}

func TestDrawCooldown(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.s.OfferDraw(ctx, "w"); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if err := h.s.OfferDraw(ctx, "w"); !errors.Is(err, ErrDrawCooldown) {
		t.Fatalf("second offer err=%v", err)
	}
	if err := h.s.RespondDraw(ctx, "b", false); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := h.s.OfferDraw(ctx, "w"); !errors.Is(err, ErrDrawCooldown) {
		t.Fatalf("offer inside cooldown err=%v", err)
	}
	h.clock.Advance(31 * time.Second)
	if err := h.s.OfferDraw(ctx, "w"); err != nil {
		t.Fatalf("offer after cooldown: %v", err)
	}
}

func TestDrawLimit(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Config.MaxDrawOffers = 2 })
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := h.s.OfferDraw(ctx, "w"); err != nil {
			t.Fatalf("offer %d: %v", i, err)
		}
		if err := h.s.RespondDraw(ctx, "b", false); err != nil {
			t.Fatalf("reject %d: %v", i, err)
		}
		h.clock.Advance(time.Minute)
	}
	if err := h.s.OfferDraw(ctx, "w"); !errors.Is(err, ErrDrawLimitReached) {
		t.Fatalf("third offer err=%v", err)
	}
	if gs := h.snap(t, "w"); gs.DrawOffersLeft != 0 {
		t.Fatalf("offers left=%d", gs.DrawOffersLeft)
	}
	if err := h.s.OfferDraw(ctx, "b"); err != nil {
		t.Fatalf("black has its own budget: %v", err)
	}
}

func TestDrawPendingGatesMovesAndResponses(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if err := h.s.RespondDraw(ctx, "b", true); !errors.Is(err, ErrNoDrawPending) {
		t.Fatalf("respond without offer err=%v", err)
	}
	if err := h.s.OfferDraw(ctx, "w"); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if err := h.move(t, "w", "e2e4"); !errors.Is(err, ErrDrawPending) {
		t.Fatalf("move while pending err=%v", err)
	}
	if err := h.s.RespondDraw(ctx, "w", true); !errors.Is(err, ErrDrawOwnOffer) {
		t.Fatalf("self accept err=%v", err)
	}
	if err := h.s.OfferDraw(ctx, "b"); !errors.Is(err, ErrDrawAlreadyPending) {
		t.Fatalf("counter offer err=%v", err)
	}
	if _, ok := h.rec.last("b", arenadto.TypeDrawOffered); !ok {
		t.Fatalf("opponent not notified")
	}
	if _, ok := h.rec.last("w", arenadto.TypeDrawOfferSent); !ok {
		t.Fatalf("offerer not acknowledged")
	}
}

func TestDrawAcceptFreezesTimers(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Config.ClockSeconds = 100 })
	ctx := context.Background()
	_ = h.s.Tick(ctx)
	if err := h.s.OfferDraw(ctx, "w"); err != nil {
		t.Fatalf("offer: %v", err)
	}
	_ = h.s.Tick(ctx)
	if err := h.s.RespondDraw(ctx, "b", true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	_ = h.s.Tick(ctx)
	_ = h.s.Tick(ctx)
	gs := h.snap(t, "b")
	if gs.Status != string(StatusTerminal) || gs.Result == nil || gs.Result.Kind != string(ResultDraw) {
		t.Fatalf("state=%+v", gs)
	}
	if gs.WhiteTimer != 98 || gs.BlackTimer != 100 {
		t.Fatalf("timers moved after accept: %d/%d", gs.WhiteTimer, gs.BlackTimer)
	}
	if _, ok := h.rec.last("w", arenadto.TypeGameDrawn); !ok {
		t.Fatalf("no game_drawn")
	}
}

func TestDrawAutoReject(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Config.DrawResponseTimeout = 20 * time.Millisecond })
	if err := h.s.OfferDraw(context.Background(), "w"); err != nil {
		t.Fatalf("offer: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if gs := h.snap(t, "w"); gs.Status == string(StatusActive) {
			if _, ok := h.rec.last("w", arenadto.TypeDrawRejected); !ok {
				t.Fatalf("no draw_rejected")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("offer was not auto-rejected")
}

func TestSnapshotIsPureRead(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.move(t, "w", "d2d4"); err != nil {
		t.Fatalf("move: %v", err)
	}
	a, _ := json.Marshal(h.snap(t, "b"))
	b, _ := json.Marshal(h.snap(t, "b"))
	if string(a) != string(b) {
		t.Fatalf("snapshots differ:\n%s\n%s", a, b)
	}
	if _, err := h.s.Snapshot(context.Background(), "x"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger snapshot err=%v", err)
	}
}

func TestResignAndForfeit(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.s.Resign(context.Background(), "b"); err != nil {
		t.Fatalf("resign: %v", err)
	}
	rec := <-h.ended
	if rec.Result.Kind != ResultResignation || rec.Result.Winner != White {
		t.Fatalf("result=%+v", rec.Result)
	}
	if err := h.s.Forfeit(context.Background(), "w"); !errors.Is(err, ErrMatchEnded) {
		t.Fatalf("forfeit after end err=%v", err)
	}

	h2 := newHarness(t, nil)
	if err := h2.s.Forfeit(context.Background(), "w"); err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	rec = <-h2.ended
	if rec.Result.Kind != ResultForfeit || rec.Result.Winner != Black {
		t.Fatalf("result=%+v", rec.Result)
	}
}

func TestAbortOnlyBeforeFirstMove(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.move(t, "w", "e2e4"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := h.s.Abort(context.Background(), "b"); !errors.Is(err, ErrAbortTooLate) {
		t.Fatalf("abort err=%v", err)
	}

	h2 := newHarness(t, nil)
	if err := h2.s.Abort(context.Background(), "b"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if rec := <-h2.ended; rec.Result.Kind != ResultAborted || rec.Result.Winner != "" {
		t.Fatalf("result=%+v", rec.Result)
	}
}

func TestCheckmateIsAtomicWithMove(t *testing.T) {
	h := newHarness(t, nil)
	steps := []struct{ who, uci string }{{"w", "f2f3"}, {"b", "e7e5"}, {"w", "g2g4"}, {"b", "d8h4"}}
	for _, st := range steps {
		if err := h.move(t, st.who, st.uci); err != nil {
			t.Fatalf("%s: %v", st.uci, err)
		}
	}
	if !h.s.Terminal() {
		t.Fatalf("expected terminal after mate")
	}
	rec := <-h.ended
	if rec.Result.Kind != ResultCheckmate || rec.Result.Winner != Black {
		t.Fatalf("result=%+v", rec.Result)
	}
	types := h.rec.types("w")
	if types[len(types)-1] != arenadto.TypeGameOver {
		t.Fatalf("last event=%s", types[len(types)-1])
	}
	lastMove := -1
	for i, typ := range types {
		if typ == arenadto.TypeMove {
			lastMove = i
		}
	}
	for _, typ := range types[lastMove+1 : len(types)-1] {
		if typ != arenadto.TypeCheckMove {
			t.Fatalf("unexpected %s between move and game_over", typ)
		}
	}
}

type fixedComputer struct {
	move string
	err  error
}

func (f fixedComputer) Reply(context.Context, string, int) (string, error) { return f.move, f.err }

func TestComputerReplyInSameStep(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Mode = ModeComputer
		o.Players = Players{White: "h"}
		o.Difficulty = 3
		o.Computer = fixedComputer{move: "e7e5"}
	})
	if err := h.move(t, "h", "e2e4"); err != nil {
		t.Fatalf("move: %v", err)
	}
	gs := h.snap(t, "h")
	if len(gs.Moves) != 2 || gs.Turn != "white" || gs.Opponent != ComputerName {
		t.Fatalf("state=%+v", gs)
	}
	env, _ := h.rec.last("h", arenadto.TypeMove)
	var relay arenadto.MoveRelay
	if err := env.Decode(&relay); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if relay.Reply == nil || relay.Reply.Move.UCI() != "e7e5" {
		t.Fatalf("reply=%+v", relay.Reply)
	}
	if err := h.s.OfferDraw(context.Background(), "h"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("draw vs computer err=%v", err)
	}
}

func TestComputerFallsBackToLegalMove(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Mode = ModeComputer
		o.Players = Players{White: "h"}
		o.Computer = fixedComputer{err: errors.New("engine down")}
	})
	if err := h.move(t, "h", "e2e4"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if gs := h.snap(t, "h"); len(gs.Moves) != 2 || gs.Turn != "white" {
		t.Fatalf("state=%+v", gs)
	}
}

// noMovesOracle accepts moves but cannot list legal replies.
type noMovesOracle struct{ rules.Chess }

func (noMovesOracle) ValidMoves(string) ([]string, error) {
	return nil, errors.New("move generation failed")
}

func TestStalledComputerAbortsMatch(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Mode = ModeComputer
		o.Players = Players{White: "h"}
		o.Oracle = noMovesOracle{}
		o.Computer = fixedComputer{err: errors.New("engine down")}
	})
	if err := h.move(t, "h", "e2e4"); err != nil {
		t.Fatalf("move: %v", err)
	}
	rec := <-h.ended
	if rec.Result == nil || rec.Result.Kind != ResultAborted || rec.Result.Winner != "" {
		t.Fatalf("result=%+v", rec.Result)
	}
	env, ok := h.rec.last("h", arenadto.TypeServerError)
	if !ok {
		t.Fatalf("human was not told: %v", h.rec.types("h"))
	}
	var de arenadto.DomainError
	if err := env.Decode(&de); err != nil || de.Code != arenadto.TypeServerError {
		t.Fatalf("error payload=%+v err=%v", de, err)
	}
	types := h.rec.types("h")
	if types[len(types)-1] != arenadto.TypeGameOver {
		t.Fatalf("tail=%v", types)
	}
}

func TestStalledComputerOpeningAborts(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Mode = ModeComputer
		o.Players = Players{Black: "h"}
		o.Oracle = noMovesOracle{}
		o.Computer = fixedComputer{err: errors.New("engine down")}
	})
	rec := <-h.ended
	if rec.Result == nil || rec.Result.Kind != ResultAborted {
		t.Fatalf("result=%+v", rec.Result)
	}
	if !h.s.Terminal() {
		t.Fatalf("session should be terminal")
	}
}

// nullTurnOracle reports white to move after every move.
type nullTurnOracle struct{ rules.Chess }

func (o nullTurnOracle) Apply(fen, uci string) (rules.Outcome, error) {
	out, err := o.Chess.Apply(fen, uci)
	out.Turn = "white"
	return out, err
}

func TestTurnComesFromOracle(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Oracle = nullTurnOracle{} })
	if err := h.move(t, "w", "e2e4"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if gs := h.snap(t, "w"); gs.Turn != "white" {
		t.Fatalf("turn=%s", gs.Turn)
	}
	if err := h.move(t, "b", "e7e5"); !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("black move err=%v", err)
	}
}

func TestComputerOpensAsWhiteAndClockStays(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Mode = ModeComputer
		o.Players = Players{Black: "h"}
		o.Computer = fixedComputer{move: "d2d4"}
		o.Config.ClockSeconds = 50
	})
	gs := h.snap(t, "h")
	if len(gs.Moves) != 1 || gs.Moves[0].UCI() != "d2d4" || gs.Color != "black" {
		t.Fatalf("state=%+v", gs)
	}
	if err := h.s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if gs = h.snap(t, "h"); gs.BlackTimer != 49 || gs.WhiteTimer != 50 {
		t.Fatalf("timers=%d/%d", gs.WhiteTimer, gs.BlackTimer)
	}
}

type slowOracle struct{ rules.Chess }

func (slowOracle) Apply(string, string) (rules.Outcome, error) {
	time.Sleep(200 * time.Millisecond)
	return rules.Outcome{}, nil
}

func TestOracleTimeoutIsServerError(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Oracle = slowOracle{}
		o.Config.OracleTimeout = 20 * time.Millisecond
	})
	if err := h.move(t, "w", "e2e4"); !errors.Is(err, ErrServer) {
		t.Fatalf("err=%v want ErrServer", err)
	}
	if gs := h.snap(t, "w"); gs.FEN != rules.StartFEN || len(gs.Moves) != 0 {
		t.Fatalf("state mutated: %+v", gs)
	}
}

func TestPeerPresenceNotices(t *testing.T) {
	h := newHarness(t, nil)
	h.s.PeerDisconnected("w", time.Minute)
	h.s.PeerReconnected("w")
	_ = h.snap(t, "b")
	env, ok := h.rec.last("b", arenadto.TypeOppDisconnected)
	if !ok {
		t.Fatalf("no opp_disconnected")
	}
	var n arenadto.Notice
	if err := env.Decode(&n); err != nil || n.Seconds != 60 {
		t.Fatalf("notice=%+v err=%v", n, err)
	}
	if _, ok := h.rec.last("b", arenadto.TypeOppReconnected); !ok {
		t.Fatalf("no opp_reconnected")
	}
	if _, ok := h.rec.last("w", arenadto.TypeOppDisconnected); ok {
		t.Fatalf("notice leaked to the disconnected player")
	}
}

func TestZeroConfigGetsDefaults(t *testing.T) {
	d := DefaultConfig()
	c := Config{}.WithDefaults()
	if c.MaxDrawOffers != d.MaxDrawOffers || c.DrawCooldown != d.DrawCooldown || c.TickInterval != d.TickInterval {
		t.Fatalf("zero config: draws=%d cooldown=%v tick=%v", c.MaxDrawOffers, c.DrawCooldown, c.TickInterval)
	}
	if m := (Config{ManualClock: true, TickInterval: time.Second}).WithDefaults(); m.TickInterval != 0 {
		t.Fatalf("manual clock tick=%v", m.TickInterval)
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusMatching, StatusActive, true},
		{StatusActive, StatusDrawPending, true},
		{StatusDrawPending, StatusActive, true},
		{StatusDrawPending, StatusTerminal, true},
		{StatusTerminal, StatusActive, false},
		{StatusActive, StatusMatching, false},
		{StatusMatching, StatusDrawPending, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.ok {
			t.Fatalf("%s->%s = %v", c.from, c.to, got)
		}
	}
}

func TestClosedSessionRejectsCommands(t *testing.T) {
	h := newHarness(t, nil)
	h.s.Close()
	if err := h.move(t, "w", "e2e4"); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v", err)
	}
}
