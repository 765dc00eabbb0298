package arena

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-arena/internal/archive"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/engine"
	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/matchmaking"
	"github.com/park285/cheese-arena/internal/rooms"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
)

type sent struct {
	to   string
	mode match.Mode
	env  arenadto.Envelope
}

type inbox struct {
	mu  sync.Mutex
	out []sent
}

func (b *inbox) Notify(identity string, mode match.Mode, env arenadto.Envelope) {
	b.mu.Lock()
	b.out = append(b.out, sent{identity, mode, env})
	b.mu.Unlock()
}

func (b *inbox) count(identity, typ string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.out {
		if s.to == identity && s.env.Type == typ {
			n++
		}
	}
	return n
}

func (b *inbox) has(identity, typ string) bool { return b.count(identity, typ) > 0 }

type capturePub struct {
	mu       sync.Mutex
	finished []*domain.MatchRecord
}

func (p *capturePub) MatchFinished(m *domain.MatchRecord) {
	p.mu.Lock()
	p.finished = append(p.finished, m)
	p.mu.Unlock()
}
func (p *capturePub) RoomChanged(rooms.Room) {}
func (p *capturePub) Close() error           { return nil }

func (p *capturePub) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.finished)
}

func newService(t *testing.T, mutate func(*Config, *Deps)) (*Service, *inbox) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Match.ManualClock = true
	cfg.DisconnectGrace = time.Second
	cfg.TerminalGrace = time.Minute
	box := &inbox{}
	deps := Deps{
		Notifier: box,
		Computer: engine.NewAdapter(nil, engine.WithSeed(3)),
		Logger:   zap.NewNop(),
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	svc := New(cfg, deps)
	t.Cleanup(svc.Close)
	return svc, box
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func resync(t *testing.T, svc *Service, identity string, mode match.Mode) arenadto.GameState {
	t.Helper()
	st, err := svc.Resync(context.Background(), identity, mode)
	if err != nil {
		t.Fatalf("Resync(%s): %v", identity, err)
	}
	return st
}

func pairQuick(t *testing.T, svc *Service, white, black string) {
	t.Helper()
	ctx := context.Background()
	if err := svc.InitQuick(ctx, white); err != nil {
		t.Fatalf("InitQuick(%s): %v", white, err)
	}
	if err := svc.InitQuick(ctx, black); err != nil {
		t.Fatalf("InitQuick(%s): %v", black, err)
	}
}

func TestQuickMatchPairsFirstAsWhite(t *testing.T) {
	svc, box := newService(t, nil)
	ctx := context.Background()

	if err := svc.InitQuick(ctx, "A"); err != nil {
		t.Fatalf("InitQuick: %v", err)
	}
	if !box.has("A", arenadto.TypeWaitingForOpponent) {
		t.Fatalf("A should be told to wait")
	}
	if st := resync(t, svc, "A", match.ModeQuick); st.Status != string(match.StatusMatching) {
		t.Fatalf("queued status = %s", st.Status)
	}
	if err := svc.InitQuick(ctx, "B"); err != nil {
		t.Fatalf("InitQuick: %v", err)
	}

	a := resync(t, svc, "A", match.ModeQuick)
	b := resync(t, svc, "B", match.ModeQuick)
	if a.Color != "white" || b.Color != "black" {
		t.Fatalf("colors A=%s B=%s", a.Color, b.Color)
	}
	if a.SessionID == "" || a.SessionID != b.SessionID {
		t.Fatalf("players in different sessions: %q %q", a.SessionID, b.SessionID)
	}
	if a.Status != string(match.StatusActive) || a.Opponent != "B" {
		t.Fatalf("A snapshot = %+v", a)
	}
	if !box.has("A", arenadto.TypeGameActive) || !box.has("B", arenadto.TypeGameActive) {
		t.Fatalf("both players should get game_active")
	}
}

func TestQuickRequestIsIdempotent(t *testing.T) {
	svc, box := newService(t, nil)
	ctx := context.Background()
	_ = svc.InitQuick(ctx, "A")
	_ = svc.InitQuick(ctx, "A")
	if got := svc.Stats().Queued; got != 1 {
		t.Fatalf("queued = %d, want 1", got)
	}
	if got := box.count("A", arenadto.TypeWaitingForOpponent); got != 2 {
		t.Fatalf("waiting notices = %d", got)
	}
}

func TestCancelQuick(t *testing.T) {
	svc, box := newService(t, nil)
	_ = svc.InitQuick(context.Background(), "A")
	if err := svc.CancelQuick("A"); err != nil {
		t.Fatalf("CancelQuick: %v", err)
	}
	if !box.has("A", arenadto.TypeMatchingCancelled) {
		t.Fatalf("missing matching_cancelled")
	}
	if _, err := svc.Resync(context.Background(), "A", match.ModeQuick); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Resync after cancel err = %v", err)
	}
	if err := svc.CancelQuick("A"); !errors.Is(err, matchmaking.ErrNotQueued) {
		t.Fatalf("second cancel err = %v", err)
	}
}

func TestSecondQuickRequestReplaysMatch(t *testing.T) {
	svc, box := newService(t, nil)
	pairQuick(t, svc, "A", "B")
	if err := svc.InitQuick(context.Background(), "A"); err != nil {
		t.Fatalf("InitQuick: %v", err)
	}
	if !box.has("A", arenadto.TypeExistingGameFound) {
		t.Fatalf("expected existing_game_found")
	}
	if svc.Stats().Queued != 0 {
		t.Fatalf("A must not be queued while in a match")
	}
}

func TestStaleTicketDoesNotBlockQueue(t *testing.T) {
	svc, box := newService(t, nil)
	ctx := context.Background()
	pairQuick(t, svc, "A", "B")
	// A repeated init that lost the race with its own pairing leaves A queued.
	if _, _, err := svc.queue.Request("A"); err != nil {
		t.Fatalf("Request: %v", err)
	}

	if err := svc.InitQuick(ctx, "C"); err != nil {
		t.Fatalf("InitQuick(C): %v", err)
	}
	if !box.has("C", arenadto.TypeWaitingForOpponent) {
		t.Fatalf("C should be queued")
	}
	if _, ok := svc.queue.Waiting("A"); ok {
		t.Fatalf("stale ticket for A still queued")
	}
	if _, ok := svc.queue.Waiting("C"); !ok {
		t.Fatalf("C missing from queue")
	}

	if err := svc.InitQuick(ctx, "D"); err != nil {
		t.Fatalf("InitQuick(D): %v", err)
	}
	c := resync(t, svc, "C", match.ModeQuick)
	if c.Color != "white" || c.Opponent != "D" {
		t.Fatalf("C snapshot = %+v", c)
	}
	if a := resync(t, svc, "A", match.ModeQuick); a.Opponent != "B" {
		t.Fatalf("A should still be playing B: %+v", a)
	}
}

func TestZeroConfigServiceKeepsDrawBudget(t *testing.T) {
	svc := New(Config{}, Deps{Logger: zap.NewNop()})
	t.Cleanup(svc.Close)
	mc := svc.MatchConfig()
	if mc.MaxDrawOffers != 3 || mc.DrawCooldown != 30*time.Second || mc.TickInterval != time.Second {
		t.Fatalf("match config=%d/%v/%v", mc.MaxDrawOffers, mc.DrawCooldown, mc.TickInterval)
	}
}

func TestMoveWithoutSession(t *testing.T) {
	svc, _ := newService(t, nil)
	err := svc.Move(context.Background(), "nobody", match.ModeQuick, arenadto.Move{From: "e2", To: "e4"})
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("err = %v", err)
	}
}

func TestReconnectWithinGraceKeepsMatch(t *testing.T) {
	svc, box := newService(t, func(c *Config, _ *Deps) { c.DisconnectGrace = 80 * time.Millisecond })
	ctx := context.Background()
	pairQuick(t, svc, "A", "B")
	if err := svc.Move(ctx, "A", match.ModeQuick, arenadto.Move{From: "e2", To: "e4"}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	before, _ := json.Marshal(resync(t, svc, "A", match.ModeQuick))

	svc.Disconnect("A", match.ModeQuick)
	eventually(t, "opp_disconnected", func() bool { return box.has("B", arenadto.TypeOppDisconnected) })
	svc.Connect(ctx, "A", match.ModeQuick)
	eventually(t, "opp_reconnected", func() bool { return box.has("B", arenadto.TypeOppReconnected) })
	if !box.has("A", arenadto.TypeExistingGameFound) {
		t.Fatalf("reconnecting player should get existing_game_found")
	}

	time.Sleep(150 * time.Millisecond)
	after, _ := json.Marshal(resync(t, svc, "A", match.ModeQuick))
	if string(before) != string(after) {
		t.Fatalf("snapshot changed across reconnect:\n%s\n%s", before, after)
	}
}

func TestGraceExpiryForfeits(t *testing.T) {
	svc, box := newService(t, func(c *Config, _ *Deps) { c.DisconnectGrace = 20 * time.Millisecond })
	pairQuick(t, svc, "A", "B")
	svc.Disconnect("A", match.ModeQuick)

	eventually(t, "forfeit", func() bool { return box.has("B", arenadto.TypeGameOver) })
	st := resync(t, svc, "B", match.ModeQuick)
	if st.Result == nil || st.Result.Kind != string(match.ResultForfeit) || st.Result.Winner != "black" {
		t.Fatalf("result = %+v", st.Result)
	}
}

func TestQueuedDisconnectLeavesQueue(t *testing.T) {
	svc, _ := newService(t, nil)
	_ = svc.InitQuick(context.Background(), "A")
	svc.Disconnect("A", match.ModeQuick)
	if svc.Stats().Queued != 0 {
		t.Fatalf("disconnected player still queued")
	}
}

func startRoom(t *testing.T, svc *Service, creator, joiner string) rooms.Room {
	t.Helper()
	ctx := context.Background()
	room, err := svc.CreateRoom(creator, "white")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := svc.InitRoom(ctx, creator, room.Code); err != nil {
		t.Fatalf("InitRoom(creator): %v", err)
	}
	if err := svc.InitRoom(ctx, joiner, room.Code); err != nil {
		t.Fatalf("InitRoom(joiner): %v", err)
	}
	if err := svc.InitRoom(ctx, creator, room.Code); err != nil {
		t.Fatalf("InitRoom(start): %v", err)
	}
	return room
}

func TestRoomStartFlow(t *testing.T) {
	svc, box := newService(t, nil)
	room := startRoom(t, svc, "C", "J")

	if !box.has("C", arenadto.TypeRoomWaiting) || !box.has("J", arenadto.TypeRoomWaiting) {
		t.Fatalf("both occupants should have waited")
	}
	if !box.has("C", arenadto.TypeRoomReady) {
		t.Fatalf("creator should be told the room filled")
	}
	c := resync(t, svc, "C", match.ModeRoom)
	j := resync(t, svc, "J", match.ModeRoom)
	if c.Color != "white" || j.Color != "black" {
		t.Fatalf("colors C=%s J=%s", c.Color, j.Color)
	}
	got, _ := svc.Rooms().Get(room.Code)
	if got.Status != rooms.StatusActive || got.SessionID != c.SessionID {
		t.Fatalf("room = %+v", got)
	}
}

func TestJoinerCannotStartRoom(t *testing.T) {
	svc, box := newService(t, nil)
	ctx := context.Background()
	room, _ := svc.CreateRoom("C", "")
	_ = svc.InitRoom(ctx, "J", room.Code)
	if err := svc.InitRoom(ctx, "J", room.Code); err != nil {
		t.Fatalf("InitRoom: %v", err)
	}
	if got := box.count("J", arenadto.TypeRoomWaiting); got != 2 {
		t.Fatalf("joiner waiting notices = %d", got)
	}
	if err := svc.StartRoom("J", room.Code); !errors.Is(err, rooms.ErrNotCreator) {
		t.Fatalf("StartRoom by joiner err = %v", err)
	}
}

func TestLeavingActiveRoomResigns(t *testing.T) {
	svc, box := newService(t, nil)
	room := startRoom(t, svc, "C", "J")
	if err := svc.Leave(context.Background(), "J", match.ModeRoom); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	st := resync(t, svc, "C", match.ModeRoom)
	if st.Result == nil || st.Result.Kind != string(match.ResultResignation) || st.Result.Winner != "white" {
		t.Fatalf("result = %+v", st.Result)
	}
	if !box.has("C", arenadto.TypePlayerLeft) {
		t.Fatalf("creator should get player_left")
	}
	got, _ := svc.Rooms().Get(room.Code)
	if got.Status != rooms.StatusFinished {
		t.Fatalf("room status = %s", got.Status)
	}
}

func TestJoinerLeavingReopensRoom(t *testing.T) {
	svc, box := newService(t, nil)
	ctx := context.Background()
	room, _ := svc.CreateRoom("C", "")
	_ = svc.InitRoom(ctx, "J", room.Code)
	if err := svc.Leave(ctx, "J", match.ModeRoom); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	got, _ := svc.Rooms().Get(room.Code)
	if got.Status != rooms.StatusWaiting || len(got.Occupants) != 1 {
		t.Fatalf("room = %+v", got)
	}
	if !box.has("C", arenadto.TypePlayerLeft) {
		t.Fatalf("creator should get player_left")
	}
}

func TestCreatorCancelEvictsJoiner(t *testing.T) {
	svc, box := newService(t, nil)
	room, _ := svc.CreateRoom("C", "")
	_ = svc.InitRoom(context.Background(), "J", room.Code)
	if _, err := svc.CancelRoom(room.Code, "C"); err != nil {
		t.Fatalf("CancelRoom: %v", err)
	}
	if !box.has("J", arenadto.TypeRoomCancelled) {
		t.Fatalf("joiner should get room_cancelled")
	}
}

func TestUnjoinedCreatorDisconnectCancelsRoom(t *testing.T) {
	svc, _ := newService(t, func(c *Config, _ *Deps) { c.DisconnectGrace = 20 * time.Millisecond })
	room, _ := svc.CreateRoom("C", "")
	_ = svc.InitRoom(context.Background(), "C", room.Code)
	svc.Disconnect("C", match.ModeRoom)
	eventually(t, "room cancel", func() bool {
		got, _ := svc.Rooms().Get(room.Code)
		return got.Status == rooms.StatusCancelled
	})
}

func TestComputerOpensWhenHumanIsBlack(t *testing.T) {
	svc, box := newService(t, nil)
	ctx := context.Background()
	if err := svc.InitComputer(ctx, "H", 2, "black"); err != nil {
		t.Fatalf("InitComputer: %v", err)
	}
	st := resync(t, svc, "H", match.ModeComputer)
	if st.Color != "black" || st.Turn != "black" || len(st.Moves) != 1 {
		t.Fatalf("snapshot = %+v", st)
	}
	if st.Opponent != match.ComputerName || st.Difficulty != 2 {
		t.Fatalf("opponent=%q difficulty=%d", st.Opponent, st.Difficulty)
	}
	if !box.has("H", arenadto.TypeMove) {
		t.Fatalf("human should see the opening move")
	}

	legal, err := rules.New().ValidMoves(st.FEN)
	if err != nil || len(legal) == 0 {
		t.Fatalf("ValidMoves: %v", err)
	}
	mv := arenadto.Move{From: legal[0][0:2], To: legal[0][2:4], Promotion: legal[0][4:]}
	if err := svc.Move(ctx, "H", match.ModeComputer, mv); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if st = resync(t, svc, "H", match.ModeComputer); len(st.Moves) != 3 {
		t.Fatalf("moves after reply = %d", len(st.Moves))
	}
}

func TestComputerRejectsBadDifficulty(t *testing.T) {
	svc, _ := newService(t, nil)
	if err := svc.InitComputer(context.Background(), "H", 9, ""); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("err = %v", err)
	}
}

func TestTerminalSessionArchivedAndReleased(t *testing.T) {
	repo := archive.NewMemoryRepository()
	rec := archive.NewRecorder(repo)
	pub := &capturePub{}
	svc, _ := newService(t, func(c *Config, d *Deps) {
		c.TerminalGrace = 30 * time.Millisecond
		d.Archive = rec
		d.Events = pub
	})
	ctx := context.Background()
	pairQuick(t, svc, "A", "B")
	sid := resync(t, svc, "A", match.ModeQuick).SessionID
	if err := svc.Resign(ctx, "A", match.ModeQuick); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if st := resync(t, svc, "B", match.ModeQuick); st.Result == nil {
		t.Fatalf("finished match should stay readable")
	}
	if pub.len() != 1 {
		t.Fatalf("match_finished events = %d", pub.len())
	}
	rec.Wait()
	row, err := repo.GetMatch(ctx, sid)
	if err != nil || row == nil {
		t.Fatalf("archived row: %v %v", row, err)
	}
	if row.Result != "black" {
		t.Fatalf("archived result = %q", row.Result)
	}

	eventually(t, "release", func() bool {
		_, err := svc.Resync(ctx, "A", match.ModeQuick)
		return errors.Is(err, ErrNoActiveSession)
	})
	if svc.Stats().Sessions != 0 {
		t.Fatalf("sessions = %d", svc.Stats().Sessions)
	}
	pairQuick(t, svc, "A", "B")
	if st := resync(t, svc, "A", match.ModeQuick); st.SessionID == sid {
		t.Fatalf("expected a fresh session")
	}
}
