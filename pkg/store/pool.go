package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/xhad/grag/internal/types"
)

// Session is the slice of the driver session surface the store uses.
type Session interface {
	Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error)
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error)
	ExecuteRead(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error)
	Close(ctx context.Context) error
}

type driverSession struct {
	inner neo4j.SessionWithContext
}

func (s driverSession) Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error) {
	return s.inner.Run(ctx, cypher, params)
}

func (s driverSession) ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	return s.inner.ExecuteWrite(ctx, work)
}

func (s driverSession) ExecuteRead(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	return s.inner.ExecuteRead(ctx, work)
}

func (s driverSession) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}

type PoolConfig struct {
	MaxSize        int
	AcquireTimeout time.Duration
}

// Pool bounds the number of concurrent sessions to the backing store and
// reuses them across requests. Sessions are created lazily up to MaxSize and
// held open for the process lifetime unless discarded after a failed query.
type Pool struct {
	config  PoolConfig
	factory func(ctx context.Context) (Session, error)
	idle    chan Session
	inUse   int64

	mu   sync.Mutex
	open int
}

func NewPool(factory func(ctx context.Context) (Session, error), config PoolConfig) *Pool {
	if config.MaxSize <= 0 {
		config.MaxSize = 10
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = 5 * time.Second
	}

	return &Pool{
		config:  config,
		factory: factory,
		idle:    make(chan Session, config.MaxSize),
	}
}

// Acquire returns an idle session, or creates one while the pool is below
// its maximum size. When the pool is saturated it waits up to the configured
// acquire timeout for a release, then fails with ErrPoolExhausted. Sessions
// are not validated on borrow; a failed query should Discard instead of
// Release so the slot is recreated lazily.
func (p *Pool) Acquire(ctx context.Context) (Session, error) {
	select {
	case s := <-p.idle:
		atomic.AddInt64(&p.inUse, 1)
		return s, nil
	default:
	}

	p.mu.Lock()
	if p.open < p.config.MaxSize {
		p.open++
		p.mu.Unlock()

		s, err := p.factory(ctx)
		if err != nil {
			p.mu.Lock()
			p.open--
			p.mu.Unlock()
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		atomic.AddInt64(&p.inUse, 1)
		return s, nil
	}
	p.mu.Unlock()

	timer := time.NewTimer(p.config.AcquireTimeout)
	defer timer.Stop()

	select {
	case s := <-p.idle:
		atomic.AddInt64(&p.inUse, 1)
		return s, nil
	case <-timer.C:
		return nil, fmt.Errorf("no session freed within %s: %w", p.config.AcquireTimeout, types.ErrPoolExhausted)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a session to the pool for reuse.
func (p *Pool) Release(s Session) {
	atomic.AddInt64(&p.inUse, -1)
	select {
	case p.idle <- s:
	default:
		// Should not happen while open <= MaxSize; close rather than leak.
		_ = s.Close(context.Background())
		p.mu.Lock()
		p.open--
		p.mu.Unlock()
	}
}

// Discard closes a session after a failed query and frees its slot so a
// replacement can be created on the next Acquire.
func (p *Pool) Discard(ctx context.Context, s Session) {
	atomic.AddInt64(&p.inUse, -1)
	_ = s.Close(ctx)
	p.mu.Lock()
	p.open--
	p.mu.Unlock()
}

// InUse reports how many sessions are currently checked out.
func (p *Pool) InUse() int {
	return int(atomic.LoadInt64(&p.inUse))
}

// Close closes all idle sessions. In-flight sessions are closed by their
// holders via Release or Discard.
func (p *Pool) Close(ctx context.Context) {
	for {
		select {
		case s := <-p.idle:
			_ = s.Close(ctx)
			p.mu.Lock()
			p.open--
			p.mu.Unlock()
		default:
			return
		}
	}
}
