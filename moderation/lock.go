package moderation

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// CaseLock serialises case creation per guild. Guilds never contend with each other.
type CaseLock struct {
	mu     sync.Mutex
	guilds map[string]*guildLock
}

type guildLock struct {
	sem *semaphore.Weighted
	// refs counts holders and waiters; the entry is dropped when it reaches zero.
	refs int
}

// NewCaseLock creates an empty lock table.
func NewCaseLock() *CaseLock {
	return &CaseLock{guilds: make(map[string]*guildLock)}
}

// Acquire blocks until the guild's lock is free or ctx is done. Waiters are served in
// arrival order. The returned release func is idempotent and must be called on every path.
func (l *CaseLock) Acquire(ctx context.Context, guildID string) (release func(), err error) {
	l.mu.Lock()
	g, ok := l.guilds[guildID]
	if !ok {
		g = &guildLock{sem: semaphore.NewWeighted(1)}
		l.guilds[guildID] = g
	}
	g.refs++
	l.mu.Unlock()

	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		l.unref(guildID, g)
		return nil, err
	}
	lockWaitDuration.Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			g.sem.Release(1)
			l.unref(guildID, g)
		})
	}, nil
}

func (l *CaseLock) unref(guildID string, g *guildLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g.refs--
	if g.refs == 0 {
		delete(l.guilds, guildID)
	}
}

// active returns the number of guilds with a holder or waiter.
func (l *CaseLock) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.guilds)
}
