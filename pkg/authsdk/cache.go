package authsdk

import (
	"context"
	"sync"
)

// tokenCache holds the social-mode token state. A Loading state always has a
// pendingLoad attached, and every pendingLoad is resolved exactly once.
type tokenCache struct {
	mu      sync.Mutex
	state   LoadingState[JWTCredentials]
	pending *pendingLoad
}

// pendingLoad is the waiter side of a Loading state.
type pendingLoad struct {
	done   chan struct{}
	result LoadingState[JWTCredentials]
}

func newPendingLoad() *pendingLoad {
	return &pendingLoad{done: make(chan struct{})}
}

// wait blocks until the load resolves or ctx ends.
func (p *pendingLoad) wait(ctx context.Context) (LoadingState[JWTCredentials], error) {
	select {
	case <-ctx.Done():
		return LoadingState[JWTCredentials]{}, ctx.Err()
	case <-p.done:
		return p.result, nil
	}
}

// Peek returns the current state without side effects.
func (c *tokenCache) Peek() LoadingState[JWTCredentials] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// claim decides what a token request should do, atomically:
//
//   - Data that fresh accepts, or Error: the state is returned as-is.
//   - Loading: the pending load is returned to wait on.
//   - Empty, or Data that fresh rejects: the cache moves to Loading and the
//     new pending load is returned with started set. The caller must
//     resolve it.
func (c *tokenCache) claim(fresh func(JWTCredentials) bool) (state LoadingState[JWTCredentials], p *pendingLoad, started bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Status {
	case StateLoading:
		return c.state, c.pending, false
	case StateError:
		return c.state, nil, false
	case StateData:
		if fresh(c.state.Data) {
			return c.state, nil, false
		}
	}

	c.state = loadingOf[JWTCredentials]()
	c.pending = newPendingLoad()
	return c.state, c.pending, true
}

// resolve completes p. The cache only takes the result if p is still the
// current load, a reset in the meantime detaches it.
func (c *tokenCache) resolve(p *pendingLoad, result LoadingState[JWTCredentials]) {
	c.mu.Lock()
	if c.pending == p {
		c.state = result
		c.pending = nil
	}
	c.mu.Unlock()

	p.result = result
	close(p.done)
}

// reset clears the cache to Empty. Waiters on a detached load still get its
// result.
func (c *tokenCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = LoadingState[JWTCredentials]{}
	c.pending = nil
}
