// Package converter implements the buffer converter (spec §4.5): a
// per-store background worker that turns a sealed buffer into a segment.
// It owns a queue of seal-to-segment tasks; each task streams a buffer's
// sorted iterator into a freshly opened segment file and reports back to
// the coordinator by message. The converter never touches coordinator
// state directly — completion, like failure, is delivered, never applied.
package converter

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ignitedb/mergeindex/internal/buffer"
	"github.com/ignitedb/mergeindex/internal/deleteme"
	"github.com/ignitedb/mergeindex/internal/segment"
)

// Task is one seal-to-segment job: convert buf's contents into a segment
// written at path.
type Task struct {
	Buffer *buffer.Buffer
	Path   string
}

// Completion is the message the converter sends back to the coordinator
// once a task finishes, successfully or not. On success Segment is the
// newly opened (read-only) segment and Err is nil; on failure Segment is
// nil and Err explains why — the spec's "converter failure" case, where
// the sealed buffer simply stays in the coordinator's buffer list until
// the coordinator's next startup re-queues it.
type Completion struct {
	Task    Task
	Segment *segment.Segment
	Err     error
}

// Converter runs one background goroutine that drains a task queue,
// supervised by a second goroutine whose only job is to notice if the
// worker stops for a reason other than a clean Close — the caller's
// context being cancelled out from under it. A panic inside one task is
// recovered, reported as that task's failed Completion, and does not stop
// the worker. A stop other than Close is
// reported on SupervisorExited and is fatal to the store (spec §4.5, §7):
// the coordinator does not try to restart the converter, it stops.
type Converter struct {
	logger *zap.SugaredLogger

	tasks chan Task
	done  chan Completion

	supervisorExited chan struct{}
	closeOnce        sync.Once
	closed           chan struct{}
	cancel           context.CancelFunc
}

// New creates a Converter with the given task queue depth. Run must be
// called to start processing.
func New(logger *zap.SugaredLogger, queueSize int) *Converter {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Converter{
		logger:           logger,
		tasks:            make(chan Task, queueSize),
		done:             make(chan Completion, queueSize),
		supervisorExited: make(chan struct{}),
		closed:           make(chan struct{}),
	}
}

// Done returns the channel on which task completions are delivered.
func (c *Converter) Done() <-chan Completion { return c.done }

// SupervisorExited is closed if the converter's supervising goroutine
// observes the worker die abnormally. A coordinator watching this channel
// should treat its closure as fatal and stop (spec §7,
// buffer_converter_death).
func (c *Converter) SupervisorExited() <-chan struct{} { return c.supervisorExited }

// Enqueue submits a task for conversion. It returns an error if the
// converter has already been closed.
func (c *Converter) Enqueue(t Task) error {
	select {
	case <-c.closed:
		return fmt.Errorf("converter: closed, cannot enqueue %s", t.Path)
	default:
	}
	select {
	case c.tasks <- t:
		return nil
	case <-c.closed:
		return fmt.Errorf("converter: closed, cannot enqueue %s", t.Path)
	}
}

// Run starts the supervisor and worker goroutines. It returns immediately;
// callers observe progress via Done and SupervisorExited. The context's
// cancellation is also what Close uses internally to stop the worker, so
// cancelling a parent context the caller passed in without going through
// Close is indistinguishable from an external death and reports fatal.
func (c *Converter) Run(ctx context.Context) {
	derived, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.supervise(derived)
}

func (c *Converter) supervise(ctx context.Context) {
	workerDone := make(chan struct{})
	go c.work(ctx, workerDone)

	// The worker returns only once ctx is cancelled (runTask recovers task
	// panics itself), so whichever case fires first, ctx is done.
	select {
	case <-workerDone:
	case <-ctx.Done():
	}
	select {
	case <-c.closed:
		// Deliberate shutdown via Close: expected, not fatal.
	default:
		if c.logger != nil {
			c.logger.Errorw("converter supervisor observed context cancellation outside of close", "err", ctx.Err())
		}
		close(c.supervisorExited)
	}
}

func (c *Converter) work(ctx context.Context, workerDone chan struct{}) {
	defer close(workerDone)
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-c.tasks:
			if !ok {
				return
			}
			c.runTask(ctx, t)
		}
	}
}

func (c *Converter) runTask(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			if c.logger != nil {
				c.logger.Errorw("converter task panicked", "path", t.Path, "recover", r)
			}
			c.emit(Completion{Task: t, Err: fmt.Errorf("converter: task for %s panicked: %v", t.Path, r)})
		}
	}()

	if err := deleteme.Set(t.Path); err != nil {
		c.emit(Completion{Task: t, Err: err})
		return
	}
	if c.logger != nil {
		c.logger.Infow("deleteme flag set", "path", t.Path)
	}

	seg, err := segment.FromIterator(t.Path, t.Buffer.Iterator())
	if err != nil {
		if c.logger != nil {
			c.logger.Errorw("converter task failed", "path", t.Path, "err", err)
		}
		c.emit(Completion{Task: t, Err: err})
		return
	}
	if c.logger != nil {
		c.logger.Infow("segment created", "path", t.Path, "buffer_id", t.Buffer.ID())
	}
	c.emit(Completion{Task: t, Segment: seg})
}

func (c *Converter) emit(comp Completion) {
	select {
	case c.done <- comp:
	case <-c.closed:
	}
}

// Close stops the converter. In-flight tasks are abandoned (their sealed
// buffers remain the coordinator's responsibility); no further Enqueue
// calls succeed. Close does not trigger a SupervisorExited signal.
func (c *Converter) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.cancel != nil {
			c.cancel()
		}
	})
}
