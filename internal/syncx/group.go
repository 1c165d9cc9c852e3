package syncx

import (
	"context"
	"sync"
)

// Group runs goroutines under a shared cancellable context and lets the
// owner stop and wait for all of them at once. The orchestrator uses one
// group for its detached enrichment tasks so teardown never leaks them.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGroup(parent context.Context) *Group {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel}
}

func (g *Group) Context() context.Context { return g.ctx }

func (g *Group) Go(fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn(g.ctx)
	}()
}

// Wait blocks until every goroutine started with Go has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

// Stop cancels the group context and waits for all goroutines to exit.
func (g *Group) Stop() {
	g.cancel()
	g.wg.Wait()
}
