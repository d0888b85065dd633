package wrtc

import "context"

// Queue is a FIFO of tasks consumed by its Loop. Each connection owns one.
// Post may be called from any goroutine.
type Queue struct {
	loop *Loop
	name string

	// guarded by loop.mu
	tasks     []func()
	scheduled bool
}

// NewQueue creates a queue served by l.
func (l *Loop) NewQueue(name string) *Queue {
	return &Queue{loop: l, name: name}
}

// Name returns the queue name given at creation.
func (q *Queue) Name() string { return q.name }

// Post appends task to the queue. Once the loop is closing no task is
// accepted and ErrLoopClosed is returned.
func (q *Queue) Post(task func()) error {
	l := q.loop
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		l.log.WithField("queue", q.name).Warn("task posted after loop stopped")
		return ErrLoopClosed
	}
	q.tasks = append(q.tasks, task)
	if !q.scheduled {
		q.scheduled = true
		l.ready = append(l.ready, q)
	}
	l.mu.Unlock()

	l.metrics.taskPosted()
	l.signal()
	return nil
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.loop.mu.Lock()
	defer q.loop.mu.Unlock()
	return len(q.tasks)
}

// Flush waits until every task posted before the call has run.
func (q *Queue) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := q.Post(func() { close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
