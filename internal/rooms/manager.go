package rooms

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-arena/internal/obslog"
	"go.uber.org/zap"
)

const codeLength = 8

type Manager struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	now    func() time.Time
	mirror Mirror
	log    *zap.Logger
}

type Option func(*Manager)

func WithMirror(m Mirror) Option            { return func(mg *Manager) { mg.mirror = m } }
func WithClock(now func() time.Time) Option { return func(mg *Manager) { mg.now = now } }
func WithLogger(l *zap.Logger) Option       { return func(mg *Manager) { mg.log = l } }

func NewManager(opts ...Option) *Manager {
	m := &Manager{rooms: make(map[string]*Room), now: time.Now}
	for _, o := range opts {
		o(m)
	}
	if m.log == nil {
		m.log = obslog.Named("rooms")
	}
	return m
}

func (m *Manager) Create(creator string, pref ColorChoice) (Room, error) {
	creator = strings.TrimSpace(creator)
	if creator == "" {
		return Room{}, ErrInvalidArgs
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.CreatorID == creator && r.Status != StatusCancelled {
			return Room{}, ErrAlreadyHasRoom
		}
		if r.Status.open() && r.Has(creator) {
			return Room{}, ErrAlreadyInRoom
		}
	}
	var code string
	for i := 0; i < 5; i++ {
		c, err := codeGen()
		if err != nil {
			return Room{}, err
		}
		if _, taken := m.rooms[c]; !taken {
			code = c
			break
		}
	}
	if code == "" {
		return Room{}, fmt.Errorf("failed to allocate room code")
	}
	now := m.now()
	if pref == "" {
		pref = ColorRandom
	}
	r := &Room{
		Code:      code,
		CreatorID: creator,
		Status:    StatusWaiting,
		Occupants: []string{creator},
		Color:     pref,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.rooms[code] = r
	m.log.Info("room_create", zap.String("code", code), zap.String("creator_id", creator))
	return m.publish(r), nil
}

func (m *Manager) Join(code, identity string) (Room, error) {
	code = normalizeCode(code)
	identity = strings.TrimSpace(identity)
	if code == "" || identity == "" {
		return Room{}, ErrInvalidArgs
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok || r.Status == StatusCancelled {
		return Room{}, ErrRoomNotFound
	}
	if r.Has(identity) && r.Status.open() {
		return r.clone(), nil
	}
	if r.Status != StatusWaiting || len(r.Occupants) >= Capacity {
		return Room{}, ErrRoomFull
	}
	for _, other := range m.rooms {
		if other != r && other.Status.open() && other.Has(identity) {
			return Room{}, ErrAlreadyInRoom
		}
	}
	r.Occupants = append(r.Occupants, identity)
	if len(r.Occupants) == Capacity {
		r.Status = StatusFull
	}
	r.UpdatedAt = m.now()
	m.log.Info("room_join", zap.String("code", code), zap.String("identity", identity), zap.String("status", string(r.Status)))
	return m.publish(r), nil
}

func (m *Manager) Get(code string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[normalizeCode(code)]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return r.clone(), nil
}

// ByOccupant returns the open room identity sits in.
func (m *Manager) ByOccupant(identity string) (Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.Status.open() && r.Has(identity) {
			return r.clone(), true
		}
	}
	return Room{}, false
}

// BySession returns the room bound to sessionID.
func (m *Manager) BySession(sessionID string) (Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.bySession(sessionID); r != nil {
		return r.clone(), true
	}
	return Room{}, false
}

// Waiting lists joinable rooms, oldest first.
func (m *Manager) Waiting() []Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Room, 0)
	for _, r := range m.rooms {
		if r.Status == StatusWaiting {
			out = append(out, r.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Start opens the match of a FULL room. open runs under the room lock and
// returns the new session id; it must not call back into the Manager.
func (m *Manager) Start(code, identity string, open func(Room) (string, error)) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[normalizeCode(code)]
	if !ok || r.Status == StatusCancelled {
		return Room{}, ErrRoomNotFound
	}
	if r.CreatorID != strings.TrimSpace(identity) {
		return Room{}, ErrNotCreator
	}
	if r.Status != StatusFull {
		return Room{}, ErrRoomNotReady
	}
	sid, err := open(r.clone())
	if err != nil {
		return Room{}, err
	}
	r.Status = StatusActive
	r.SessionID = sid
	r.UpdatedAt = m.now()
	m.log.Info("room_start", zap.String("code", r.Code), zap.String("session_id", sid))
	return m.publish(r), nil
}

// Leave removes identity from its room. A creator leaving before the match
// cancels the room and evicts the joiner; a joiner leaving reopens it.
func (m *Manager) Leave(code, identity string) (LeaveResult, error) {
	identity = strings.TrimSpace(identity)
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[normalizeCode(code)]
	if !ok || !r.Status.open() {
		return LeaveResult{}, ErrRoomNotFound
	}
	if !r.Has(identity) {
		return LeaveResult{}, ErrNotOccupant
	}
	if r.Status == StatusActive {
		return LeaveResult{Room: r.clone(), SessionID: r.SessionID}, nil
	}
	if identity == r.CreatorID {
		evicted := m.cancel(r)
		return LeaveResult{Room: r.clone(), Evicted: evicted, Cancelled: true}, nil
	}
	r.Occupants = []string{r.CreatorID}
	r.Status = StatusWaiting
	r.UpdatedAt = m.now()
	m.log.Info("room_leave", zap.String("code", r.Code), zap.String("identity", identity))
	return LeaveResult{Room: m.publish(r)}, nil
}

// Cancel closes a room that has no running match. Only the creator may cancel.
func (m *Manager) Cancel(code, identity string) (Room, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[normalizeCode(code)]
	if !ok || r.Status == StatusCancelled {
		return Room{}, nil, ErrRoomNotFound
	}
	if r.CreatorID != strings.TrimSpace(identity) {
		return Room{}, nil, ErrNotCreator
	}
	if r.Status == StatusActive {
		return Room{}, nil, ErrRoomActive
	}
	evicted := m.cancel(r)
	return r.clone(), evicted, nil
}

// Finish marks the room of sessionID FINISHED.
func (m *Manager) Finish(sessionID string) (Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.bySession(sessionID)
	if r == nil || r.Status != StatusActive {
		return Room{}, false
	}
	r.Status = StatusFinished
	r.UpdatedAt = m.now()
	m.log.Info("room_finish", zap.String("code", r.Code), zap.String("session_id", sessionID))
	return m.publish(r), true
}

// Rematch resets a FINISHED room to WAITING with the creator as sole occupant.
func (m *Manager) Rematch(code, identity string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[normalizeCode(code)]
	if !ok || r.Status == StatusCancelled {
		return Room{}, ErrRoomNotFound
	}
	if r.CreatorID != strings.TrimSpace(identity) {
		return Room{}, ErrNotCreator
	}
	if r.Status != StatusFinished {
		return Room{}, ErrRoomNotReady
	}
	for _, other := range m.rooms {
		if other != r && other.Status.open() && other.Has(r.CreatorID) {
			return Room{}, ErrAlreadyInRoom
		}
	}
	r.Status = StatusWaiting
	r.Occupants = []string{r.CreatorID}
	r.SessionID = ""
	r.UpdatedAt = m.now()
	m.log.Info("room_rematch", zap.String("code", r.Code))
	return m.publish(r), nil
}

// Colors resolves white and black for a FULL room from the creator's preference.
func Colors(r Room) (white, black string) {
	creator, joiner := r.CreatorID, r.Joiner()
	if CreatorPlaysWhite(r.Color) {
		return creator, joiner
	}
	return joiner, creator
}

// CreatorPlaysWhite resolves pref, drawing with crypto/rand for random.
func CreatorPlaysWhite(pref ColorChoice) bool {
	switch pref {
	case ColorWhite:
		return true
	case ColorBlack:
		return false
	}
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	return err != nil || n.Int64() == 1
}

func (m *Manager) cancel(r *Room) []string {
	var evicted []string
	for _, o := range r.Occupants {
		if o != r.CreatorID {
			evicted = append(evicted, o)
		}
	}
	r.Status = StatusCancelled
	r.Occupants = []string{}
	r.UpdatedAt = m.now()
	m.log.Info("room_cancel", zap.String("code", r.Code), zap.Strings("evicted", evicted))
	m.publish(r)
	return evicted
}

func (m *Manager) bySession(sessionID string) *Room {
	if sessionID == "" {
		return nil
	}
	for _, r := range m.rooms {
		if r.SessionID == sessionID {
			return r
		}
	}
	return nil
}

func (m *Manager) publish(r *Room) Room {
	out := r.clone()
	if m.mirror != nil {
		m.mirror.SaveRoom(out.clone())
	}
	return out
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// codeGen returns 8 upper alnum characters.
func codeGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b), nil
}
