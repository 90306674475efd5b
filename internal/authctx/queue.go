package authctx

import (
	"context"
	"sync"
)

// task is a unit of deferred work. drop runs instead of run when the queue
// stops before the task was reached.
type task struct {
	run  func(ctx context.Context)
	drop func()
}

// taskQueue runs tasks one at a time, in submission order, on its own
// goroutine. It is unbounded; callers deduplicate before pushing.
type taskQueue struct {
	mu      sync.Mutex
	tasks   []task
	started bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}
}

func newTaskQueue() *taskQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &taskQueue{
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (q *taskQueue) start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	go q.loop()
}

// push enqueues t. It reports false once the queue is stopped.
func (q *taskQueue) push(t task) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *taskQueue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			select {
			case <-q.wake:
				continue
			case <-q.quit:
				return
			}
		}
		t := q.tasks[0]
		q.tasks[0] = task{}
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		select {
		case <-q.quit:
			if t.drop != nil {
				t.drop()
			}
			return
		default:
		}
		t.run(q.ctx)
	}
}

// stop cancels the running task's context, drops queued tasks and waits
// for the loop goroutine to exit.
func (q *taskQueue) stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	dropped := q.tasks
	q.tasks = nil
	started := q.started
	q.mu.Unlock()

	q.cancel()
	close(q.quit)
	if started {
		<-q.done
	}
	for _, t := range dropped {
		if t.drop != nil {
			t.drop()
		}
	}
}
