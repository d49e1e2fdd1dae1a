package sse

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// errEnqueueCancelled aborts a pending heartbeat enqueue when its task is
// cancelled mid-firing.
var errEnqueueCancelled = errors.New("enqueue cancelled")

// Scheduler is the shared keep-alive facility serving every live stream. It
// is an explicit component with an owner and a shutdown hook, not an ambient
// global. Each scheduled task runs on its own goroutine, so one stream's
// blocked heartbeat enqueue can never delay another stream's heartbeats.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[*Task]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler returns a ready Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[*Task]struct{})}
}

// Task is a repeating keep-alive timer bound to exactly one stream.
type Task struct {
	stop     chan struct{}
	finished chan struct{}
	once     sync.Once
}

// Cancel stops the task and waits for its goroutine to exit, so no firing
// is left in flight afterwards. It interrupts a firing blocked on a full
// outbound queue. Idempotent and safe from any goroutine.
func (t *Task) Cancel() {
	t.once.Do(func() { close(t.stop) })
	<-t.finished
}

// Schedule starts a keep-alive task for s: the first heartbeat fires
// immediately, subsequent ones every interval. A firing that fails because
// the stream closed logs the failure and cancels only this task -- failures
// are stream-local and never affect the scheduler or other streams.
//
// After Close, Schedule returns a task that is already cancelled.
func (sch *Scheduler) Schedule(s *Stream, interval time.Duration) *Task {
	t := &Task{
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	sch.mu.Lock()
	if sch.closed {
		sch.mu.Unlock()
		t.once.Do(func() { close(t.stop) })
		close(t.finished)
		return t
	}
	sch.tasks[t] = struct{}{}
	sch.wg.Add(1)
	sch.mu.Unlock()

	go sch.run(t, s, interval)
	return t
}

func (sch *Scheduler) run(t *Task, s *Stream, interval time.Duration) {
	defer func() {
		sch.mu.Lock()
		delete(sch.tasks, t)
		sch.mu.Unlock()
		close(t.finished)
		sch.wg.Done()
	}()

	if !sch.fire(t, s) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if !sch.fire(t, s) {
				return
			}
		}
	}
}

// fire enqueues one heartbeat frame. It reports false when the task should
// stop: the stream has closed or the task was cancelled mid-enqueue.
func (sch *Scheduler) fire(t *Task, s *Stream) bool {
	err := s.enqueueHeartbeat(t.stop)
	if err == nil {
		return true
	}
	if !errors.Is(err, errEnqueueCancelled) {
		slog.LogAttrs(context.Background(), slog.LevelWarn, "heartbeat enqueue failed, cancelling task",
			slog.String("error", err.Error()),
			slog.String("stream_id", s.id),
			slog.String("channel", s.channel),
		)
	}
	t.once.Do(func() { close(t.stop) })
	return false
}

// Close cancels every outstanding task and waits for their goroutines to
// finish. Further Schedule calls return already-cancelled tasks.
func (sch *Scheduler) Close() {
	sch.mu.Lock()
	sch.closed = true
	for t := range sch.tasks {
		t.once.Do(func() { close(t.stop) })
	}
	sch.mu.Unlock()
	sch.wg.Wait()
}
