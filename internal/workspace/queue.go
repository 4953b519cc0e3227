package workspace

import "sync"

// queue runs deferred tasks on one goroutine in submission order.
type queue struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func newQueue() *queue {
	q := &queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *queue) push(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.tasks = append(q.tasks, fn)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.mu.Unlock()
}

func (q *queue) loop() {
	defer close(q.done)
	for range q.wake {
		for {
			q.mu.Lock()
			if len(q.tasks) == 0 {
				q.mu.Unlock()
				break
			}
			fn := q.tasks[0]
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			fn()
		}
	}
}

// close runs the remaining tasks, then stops the worker.
func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.wake)
	q.mu.Unlock()
	<-q.done
}
