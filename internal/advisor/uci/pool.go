package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// Pool keeps warm engine processes, bucketed by Options.
type Pool struct {
	binary   string
	capacity int
	logger   *zap.Logger

	mu      sync.Mutex
	buckets map[string]*bucket
	owner   map[*Process]*bucket
	closed  bool
}

type PoolConfig struct {
	Binary string
	// PerOptions caps live processes per distinct Options. Zero picks a
	// value from the CPU count.
	PerOptions int
	Logger     *zap.Logger
}

var ErrPoolClosed = errors.New("uci: pool closed")

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Binary == "" {
		return nil, errors.New("uci: engine binary path required")
	}
	if _, err := os.Stat(cfg.Binary); err != nil {
		return nil, fmt.Errorf("uci: engine binary: %w", err)
	}
	capacity := cfg.PerOptions
	if capacity <= 0 {
		capacity = min(max(runtime.NumCPU(), 2), 4)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		binary:   cfg.Binary,
		capacity: capacity,
		logger:   logger,
		buckets:  make(map[string]*bucket),
		owner:    make(map[*Process]*bucket),
	}, nil
}

// Acquire returns an idle process for opt, starting one if the bucket has
// room, or waits for one to be released.
func (p *Pool) Acquire(ctx context.Context, opt Options) (*Process, error) {
	b, err := p.bucketFor(opt)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case proc := <-b.idle:
			if p.usable(ctx, proc) {
				p.own(proc, b)
				return proc, nil
			}
			continue
		default:
		}

		if b.reserve() {
			proc, err := Start(ctx, p.binary, opt, p.logger)
			if err != nil {
				b.unreserve()
				return nil, err
			}
			p.own(proc, b)
			return proc, nil
		}

		select {
		case proc := <-b.idle:
			if p.usable(ctx, proc) {
				p.own(proc, b)
				return proc, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) usable(ctx context.Context, proc *Process) bool {
	if proc == nil {
		return false
	}
	if err := proc.Ping(ctx); err != nil {
		p.logger.Warn("uci_process_stale", zap.Error(err))
		p.drop(proc)
		return false
	}
	return true
}

// Release returns proc to its bucket. A non-nil err means the process is
// suspect and is killed instead.
func (p *Pool) Release(proc *Process, err error) {
	if proc == nil {
		return
	}
	p.mu.Lock()
	b, ok := p.owner[proc]
	closed := p.closed
	p.mu.Unlock()
	if !ok {
		_ = proc.Close()
		return
	}
	if err != nil || closed || !b.offer(proc) {
		p.drop(proc)
	}
}

func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	buckets := make([]*bucket, 0, len(p.buckets))
	for _, b := range p.buckets {
		buckets = append(buckets, b)
	}
	p.mu.Unlock()

	var errs []error
	for _, b := range buckets {
		for drained := false; !drained; {
			select {
			case proc := <-b.idle:
				if proc == nil {
					continue
				}
				p.forget(proc)
				if err := proc.Close(); err != nil {
					errs = append(errs, err)
				}
				b.unreserve()
			default:
				drained = true
			}
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) bucketFor(opt Options) (*bucket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	k := opt.key()
	b, ok := p.buckets[k]
	if !ok {
		b = &bucket{capacity: p.capacity, idle: make(chan *Process, p.capacity)}
		p.buckets[k] = b
	}
	return b, nil
}

func (p *Pool) own(proc *Process, b *bucket) {
	p.mu.Lock()
	p.owner[proc] = b
	p.mu.Unlock()
}

func (p *Pool) forget(proc *Process) *bucket {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.owner[proc]
	delete(p.owner, proc)
	return b
}

func (p *Pool) drop(proc *Process) {
	b := p.forget(proc)
	_ = proc.Close()
	if b != nil {
		b.unreserve()
	}
}

type bucket struct {
	capacity int

	mu   sync.Mutex
	live int
	idle chan *Process
}

func (b *bucket) reserve() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.live >= b.capacity {
		return false
	}
	b.live++
	return true
}

func (b *bucket) unreserve() {
	b.mu.Lock()
	if b.live > 0 {
		b.live--
	}
	b.mu.Unlock()
}

func (b *bucket) offer(proc *Process) bool {
	select {
	case b.idle <- proc:
		return true
	default:
		return false
	}
}
