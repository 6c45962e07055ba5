package feedback

import (
	"sync"

	"github.com/freeeve/divine-conquest/api/pkg/conquest"
)

// Queue serializes animation plans. Plans run strictly one at a time on a
// single goroutine in arrival order; a plan containing combat marks a battle
// in progress, and callbacks registered while a battle runs are held until
// the queue drains. End-of-turn submission waits on this.
type Queue struct {
	renderer Renderer
	timing   Timing

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []queuedPlan
	running  bool
	inBattle bool
	deferred []func()
	closed   bool
	done     chan struct{}
}

type queuedPlan struct {
	plan Plan
	prev *conquest.GameState
}

// NewQueue starts a queue draining into the renderer.
func NewQueue(r Renderer, timing Timing) *Queue {
	q := &Queue{
		renderer: r,
		timing:   timing,
		done:     make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Enqueue appends a plan for execution against the given previous state.
// Empty plans are dropped.
func (q *Queue) Enqueue(plan Plan, prev *conquest.GameState) {
	if len(plan) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, queuedPlan{plan: plan, prev: prev})
	if planHasBattle(plan) {
		q.inBattle = true
	}
	q.cond.Signal()
}

// BattleInProgress reports whether a queued or running plan contains combat.
func (q *Queue) BattleInProgress() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inBattle
}

// RunAfterBattle runs fn immediately when no battle is queued or running,
// otherwise holds it until the queue drains. Used to defer the local
// player's end-of-turn past an in-flight combat animation.
func (q *Queue) RunAfterBattle(fn func()) {
	q.mu.Lock()
	if !q.inBattle {
		q.mu.Unlock()
		fn()
		return
	}
	q.deferred = append(q.deferred, fn)
	q.mu.Unlock()
}

// Close stops accepting new plans, waits for the pending ones to finish and
// runs any deferred callbacks.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed && len(q.pending) == 0 {
			q.flushDeferredLocked()
			q.mu.Unlock()
			return
		}
		item := q.pending[0]
		q.pending = q.pending[1:]
		q.running = true
		q.mu.Unlock()

		Execute(item.plan, item.prev, q.renderer, q.timing)

		q.mu.Lock()
		q.running = false
		if len(q.pending) == 0 {
			q.inBattle = false
			q.flushDeferredLocked()
		}
		q.mu.Unlock()
	}
}

// flushDeferredLocked runs held callbacks outside the lock.
func (q *Queue) flushDeferredLocked() {
	deferred := q.deferred
	q.deferred = nil
	if len(deferred) == 0 {
		return
	}
	q.mu.Unlock()
	for _, fn := range deferred {
		fn()
	}
	q.mu.Lock()
}

func planHasBattle(plan Plan) bool {
	for _, step := range plan {
		if step.Kind == StepConquest || step.Kind == StepFailedAttack {
			return true
		}
	}
	return false
}
