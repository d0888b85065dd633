package wrtc

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Loop is the host execution context: a single goroutine that drains the
// dispatch queues of every connection attached to it. Queues are served
// round-robin, one task at a time, so tasks never run concurrently and
// tasks of one queue run strictly in post order.
type Loop struct {
	log     logrus.FieldLogger
	metrics *Metrics

	mu      sync.Mutex
	ready   []*Queue
	closing bool

	wake chan struct{}
	done chan struct{}
}

// NewLoop starts a loop goroutine.
func NewLoop(opts ...Option) *Loop {
	o := buildOptions(options{}, opts)
	l := &Loop{
		log:     o.log,
		metrics: o.metrics,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		task, ok := l.next()
		if !ok {
			return
		}
		if task == nil {
			<-l.wake
			continue
		}
		task()
		l.metrics.taskRun()
	}
}

// next pops the head task of the first ready queue. It returns (nil, true)
// when idle and (nil, false) once closing and drained.
func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.ready) == 0 {
		return nil, !l.closing
	}
	q := l.ready[0]
	l.ready[0] = nil
	l.ready = l.ready[1:]

	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	if len(q.tasks) > 0 {
		l.ready = append(l.ready, q)
	} else {
		q.scheduled = false
	}
	return task, true
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Close stops accepting tasks, runs everything already queued and waits for
// the loop goroutine to exit. It must not be called from a task.
func (l *Loop) Close() error {
	l.mu.Lock()
	l.closing = true
	l.mu.Unlock()
	l.signal()
	<-l.done
	return nil
}
