// Package worker bounds the number of concurrently running heavy jobs so
// that slow compositions and uploads cannot starve the request path.
package worker

import "context"

// Pool is a counting semaphore over anonymous jobs.
type Pool struct {
	slots chan struct{}
}

// New creates a Pool with the given number of slots. Sizes below one are
// clamped to one.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Do runs fn once a slot is free. It returns the context error without
// running fn when the caller's deadline expires while waiting.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	fn()
	return nil
}
