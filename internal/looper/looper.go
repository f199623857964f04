// Package looper runs posted tasks one at a time on a single goroutine, the
// process "main loop". Driver callbacks arrive on arbitrary goroutines and are
// posted here before anything is sent to the caller.
package looper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("looper closed")

// Looper is a FIFO task queue with one consumer.
type Looper struct {
	queue   chan func()
	done    chan struct{}
	once    sync.Once
	inTask  atomic.Bool
	running atomic.Bool
	log     logrus.FieldLogger
}

// New creates a looper whose queue holds up to size pending tasks. Post blocks
// while the queue is full.
func New(size int, log logrus.FieldLogger) *Looper {
	if size < 1 {
		size = 1
	}
	return &Looper{
		queue: make(chan func(), size),
		done:  make(chan struct{}),
		log:   log.WithField("component", "looper"),
	}
}

// Post queues fn. It returns false once the looper has been closed.
func (l *Looper) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run executes tasks on the calling goroutine until ctx is cancelled or Close
// is called. Tasks still queued at that point are dropped.
func (l *Looper) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("looper already running")
	}
	defer l.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.done:
			return ErrClosed
		case fn := <-l.queue:
			l.exec(fn)
		}
	}
}

func (l *Looper) exec(fn func()) {
	l.inTask.Store(true)
	defer l.inTask.Store(false)
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", r).Error("task panicked")
		}
	}()
	fn()
}

// InTask reports whether a posted task is executing right now. Only the loop
// goroutine executes tasks, so a task observing true is running on the loop.
func (l *Looper) InTask() bool {
	return l.inTask.Load()
}

// Close stops the looper. It is safe to call more than once.
func (l *Looper) Close() {
	l.once.Do(func() { close(l.done) })
}
