package session

import (
	"context"
	"fmt"
	"sync"
)

// Actors serializes operations per session. Each session owns a
// single-writer queue: operations submitted for the same session run
// one at a time in submission order, while operations on different
// sessions run fully in parallel.
type Actors struct {
	mu     sync.Mutex
	actors map[string]*actor
	closed bool
}

type actor struct {
	tasks chan task
}

type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// NewActors creates an empty actor registry.
func NewActors() *Actors {
	return &Actors{actors: make(map[string]*actor)}
}

// Do runs fn on the session's queue and waits for it to finish. The
// call blocks behind any operations already queued for the same
// session. If ctx is cancelled while the task is queued, Do returns the
// context error; the task itself still observes ctx and should stop
// early.
func (a *Actors) Do(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return fmt.Errorf("actor registry is closed")
	}
	act, ok := a.actors[sessionID]
	if !ok {
		act = &actor{tasks: make(chan task, 16)}
		a.actors[sessionID] = act
		go act.run()
	}
	a.mu.Unlock()

	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case act.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (act *actor) run() {
	for t := range act.tasks {
		if err := t.ctx.Err(); err != nil {
			t.done <- err
			continue
		}
		t.done <- t.fn(t.ctx)
	}
}

// Close stops all session queues. Queued tasks drain before their
// goroutines exit; new Do calls fail.
func (a *Actors) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	for _, act := range a.actors {
		close(act.tasks)
	}
	a.actors = make(map[string]*actor)
}
