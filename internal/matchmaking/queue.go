package matchmaking

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidArgs = errf("invalid arguments")
	ErrNotQueued   = errf("identity is not waiting for a match")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Ticket is one waiting identity.
type Ticket struct {
	ID         string
	Identity   string
	EnqueuedAt time.Time
}

// Pair is the outcome of a successful request. The identity that waited
// longer plays white.
type Pair struct {
	White string
	Black string
	// Ticket is the consumed ticket of the white player.
	Ticket Ticket
}

// Queue pairs quick-match requests in strict arrival order.
type Queue struct {
	mu      sync.Mutex
	waiting []Ticket
	seq     uint64
	now     func() time.Time
}

func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

// Request pairs identity with the oldest waiting identity, or queues it.
// A repeated request from a waiting identity returns its existing ticket.
func (q *Queue) Request(identity string) (Ticket, *Pair, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return Ticket{}, nil, ErrInvalidArgs
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexOf(identity); i >= 0 {
		return q.waiting[i], nil, nil
	}
	if len(q.waiting) > 0 {
		head := q.waiting[0]
		q.waiting = q.waiting[1:]
		return head, &Pair{White: head.Identity, Black: identity, Ticket: head}, nil
	}
	t := Ticket{ID: q.nextID(), Identity: identity, EnqueuedAt: q.now()}
	q.waiting = append(q.waiting, t)
	return t, nil, nil
}

// Requeue puts a consumed ticket back at the head, used when a pairing
// could not be turned into a session.
func (q *Queue) Requeue(t Ticket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexOf(t.Identity) >= 0 {
		return
	}
	q.waiting = append([]Ticket{t}, q.waiting...)
}

func (q *Queue) Cancel(identity string) error {
	identity = strings.TrimSpace(identity)
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(identity)
	if i < 0 {
		return ErrNotQueued
	}
	q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
	return nil
}

func (q *Queue) Waiting(identity string) (Ticket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.indexOf(strings.TrimSpace(identity)); i >= 0 {
		return q.waiting[i], true
	}
	return Ticket{}, false
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

func (q *Queue) indexOf(identity string) int {
	for i, t := range q.waiting {
		if t.Identity == identity {
			return i
		}
	}
	return -1
}

func (q *Queue) nextID() string {
	n := atomic.AddUint64(&q.seq, 1)
	return fmt.Sprintf("mq-%d-%d", q.now().UnixNano(), n)
}
