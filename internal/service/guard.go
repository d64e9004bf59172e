package service

import (
	"context"
	"sync"
)

// RunGuard serializes cycles and settlements. TryAcquire never waits:
// ok is false when another run holds the guard.
type RunGuard interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// LocalGuard guards runs inside one process.
type LocalGuard struct {
	mu sync.Mutex
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{}
}

func (g *LocalGuard) TryAcquire(context.Context) (func(), bool, error) {
	if !g.mu.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func() { once.Do(g.mu.Unlock) }, true, nil
}
