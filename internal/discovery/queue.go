package discovery

import (
	"sync"

	"go.uber.org/zap"
)

// serialQueue runs tasks one at a time, in order, on a single goroutine.
// enqueue never blocks, so tasks may enqueue further tasks.
type serialQueue struct {
	logger *zap.Logger

	mu     sync.Mutex
	tasks  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newSerialQueue(logger *zap.Logger) *serialQueue {
	q := &serialQueue{
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// enqueue schedules task. It returns false once the queue is closed.
func (q *serialQueue) enqueue(task func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()

	q.signal()
	return true
}

// close stops accepting tasks. Tasks already queued still run.
func (q *serialQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

// sync waits until every task queued before the call has run. It must not be
// called from a task.
func (q *serialQueue) sync() bool {
	done := make(chan struct{})
	if !q.enqueue(func() { close(done) }) {
		return false
	}
	<-done
	return true
}

func (q *serialQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *serialQueue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.tasks) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			q.mu.Lock()
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.execute(task)
	}
}

// execute runs task, recovering panics from caller-supplied handlers.
func (q *serialQueue) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Recovered panic in discovery task",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	task()
}
