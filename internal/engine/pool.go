package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
)

type PoolConfig struct {
	BinaryPath string
	// PerLevelCapacity caps the processes started for one Options value.
	PerLevelCapacity int
}

// Pool keeps idle engine processes in buckets keyed by their Options.
type Pool struct {
	binaryPath string
	capacity   int

	mu        sync.Mutex
	buckets   map[string]*bucket
	processes map[*Process]*bucket
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("stockfish binary check: %w", err)
	}
	capacity := cfg.PerLevelCapacity
	if capacity <= 0 {
		capacity = defaultCapacity()
	}
	return &Pool{
		binaryPath: cfg.BinaryPath,
		capacity:   capacity,
		buckets:    make(map[string]*bucket),
		processes:  make(map[*Process]*bucket),
	}, nil
}

// Acquire returns an idle process for opt, starting one when the bucket has
// room, or waits for a release until ctx ends.
func (p *Pool) Acquire(ctx context.Context, opt Options) (*Process, error) {
	b := p.bucketFor(opt)
	for {
		if proc, ok := p.takeIdle(ctx, b, false); ok {
			return proc, nil
		}
		proc, err := b.create(ctx)
		if err == nil {
			p.track(proc, b)
			return proc, nil
		}
		if !errors.Is(err, errBucketAtCapacity) {
			return nil, err
		}
		if proc, ok := p.takeIdle(ctx, b, true); ok {
			return proc, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// takeIdle pops one ready process. With wait set it blocks until one is
// released or ctx ends.
func (p *Pool) takeIdle(ctx context.Context, b *bucket, wait bool) (*Process, bool) {
	var proc *Process
	if wait {
		select {
		case proc = <-b.idle:
		case <-ctx.Done():
			return nil, false
		}
	} else {
		select {
		case proc = <-b.idle:
		default:
			return nil, false
		}
	}
	if proc == nil {
		return nil, false
	}
	if err := proc.EnsureReady(ctx); err != nil {
		b.discard(proc)
		return nil, false
	}
	p.track(proc, b)
	return proc, true
}

// Release returns proc to its bucket. A process that failed is closed.
func (p *Pool) Release(proc *Process, err error) {
	if proc == nil {
		return
	}
	p.mu.Lock()
	b, ok := p.processes[proc]
	if ok {
		delete(p.processes, proc)
	}
	p.mu.Unlock()
	if !ok {
		_ = proc.Close()
		return
	}
	if err != nil || !b.put(proc) {
		b.discard(proc)
	}
}

func (p *Pool) Close() error {
	p.mu.Lock()
	buckets := make([]*bucket, 0, len(p.buckets))
	for _, b := range p.buckets {
		buckets = append(buckets, b)
	}
	p.processes = make(map[*Process]*bucket)
	p.mu.Unlock()

	var errs []error
	for _, b := range buckets {
		errs = append(errs, b.drain()...)
	}
	return errors.Join(errs...)
}

func (p *Pool) track(proc *Process, b *bucket) {
	p.mu.Lock()
	p.processes[proc] = b
	p.mu.Unlock()
}

func (p *Pool) bucketFor(opt Options) *bucket {
	key := optionsKey(opt)
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[key]
	if !ok {
		b = newBucket(p.binaryPath, opt, p.capacity)
		p.buckets[key] = b
	}
	return b
}

type bucket struct {
	opt        Options
	capacity   int
	binaryPath string

	mu    sync.Mutex
	total int
	idle  chan *Process
}

var errBucketAtCapacity = errors.New("engine bucket at capacity")

func newBucket(binaryPath string, opt Options, capacity int) *bucket {
	if capacity <= 0 {
		capacity = 1
	}
	return &bucket{
		opt:        opt,
		capacity:   capacity,
		binaryPath: binaryPath,
		idle:       make(chan *Process, capacity),
	}
}

func (b *bucket) create(ctx context.Context) (*Process, error) {
	b.mu.Lock()
	if b.total >= b.capacity {
		b.mu.Unlock()
		return nil, errBucketAtCapacity
	}
	b.total++
	b.mu.Unlock()

	// 프로세스 수명은 요청 ctx와 분리.
	proc, err := NewProcess(context.WithoutCancel(ctx), b.binaryPath, b.opt)
	if err != nil {
		b.decrement()
		return nil, err
	}
	return proc, nil
}

func (b *bucket) put(proc *Process) bool {
	select {
	case b.idle <- proc:
		return true
	default:
		return false
	}
}

func (b *bucket) discard(proc *Process) {
	if proc != nil {
		_ = proc.Close()
	}
	b.decrement()
}

func (b *bucket) drain() []error {
	var errs []error
	for {
		select {
		case proc := <-b.idle:
			if proc == nil {
				continue
			}
			if err := proc.Close(); err != nil {
				errs = append(errs, err)
			}
			b.decrement()
		default:
			return errs
		}
	}
}

func (b *bucket) decrement() {
	b.mu.Lock()
	if b.total > 0 {
		b.total--
	}
	b.mu.Unlock()
}

func optionsKey(opt Options) string {
	return fmt.Sprintf("thr=%d|skill=%d|hash=%d|elo=%d", opt.Threads, opt.SkillLevel, opt.HashMB, opt.Elo)
}

func defaultCapacity() int {
	return min(max(runtime.NumCPU(), 2), 4)
}
