package sse

import (
	"testing"
	"time"

	hub "github.com/beaconhub/beacon/internal"
)

// newIdleStream builds a stream directly, without a pump, so scheduler tests
// control teardown themselves.
func newIdleStream(capacity int) *Stream {
	return &Stream{
		id:        "test-stream",
		channel:   "test",
		startedAt: time.Now(),
		out:       make(chan hub.Frame, capacity),
		done:      make(chan struct{}),
		in:        newEventQueue(1),
	}
}

func TestSchedulerFiresImmediately(t *testing.T) {
	t.Parallel()

	sch := NewScheduler()
	t.Cleanup(sch.Close)

	s := newIdleStream(4)
	task := sch.Schedule(s, time.Hour)
	defer task.Cancel()

	select {
	case f := <-s.out:
		if string(f) != "\r\n" {
			t.Errorf("first firing = %q, want heartbeat", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no immediate firing")
	}
	if got := s.HeartbeatsSent(); got != 1 {
		t.Errorf("HeartbeatsSent() = %d, want 1", got)
	}
}

func TestTaskCancelIdempotent(t *testing.T) {
	t.Parallel()

	sch := NewScheduler()
	t.Cleanup(sch.Close)

	s := newIdleStream(4)
	task := sch.Schedule(s, 10*time.Millisecond)

	task.Cancel()
	task.Cancel()

	// Drain anything fired before the cancel, then verify silence.
	drained := len(s.out)
	for i := 0; i < drained; i++ {
		<-s.out
	}
	time.Sleep(50 * time.Millisecond)
	if n := len(s.out); n != 0 {
		t.Errorf("%d heartbeats fired after Cancel", n)
	}
}

func TestCancelInterruptsBlockedFiring(t *testing.T) {
	t.Parallel()

	sch := NewScheduler()
	t.Cleanup(sch.Close)

	// Capacity 1: the immediate firing fills the queue, the next blocks.
	s := newIdleStream(1)
	task := sch.Schedule(s, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		task.Cancel()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel did not interrupt a blocked firing")
	}
}

func TestClosedStreamCancelsOnlyItsTask(t *testing.T) {
	t.Parallel()

	sch := NewScheduler()
	t.Cleanup(sch.Close)

	closed := newIdleStream(4)
	close(closed.done)

	healthy := newIdleStream(64)

	deadTask := sch.Schedule(closed, 5*time.Millisecond)
	liveTask := sch.Schedule(healthy, 5*time.Millisecond)
	defer liveTask.Cancel()

	// The dead stream's task must cancel itself without taking the
	// scheduler or the healthy stream's task down with it.
	deadTask.Cancel() // waits for the self-cancelled goroutine

	var got int
	deadline := time.After(2 * time.Second)
	for got < 3 {
		select {
		case <-healthy.out:
			got++
		case <-deadline:
			t.Fatalf("healthy stream saw %d heartbeats, want at least 3", got)
		}
	}
}

func TestSchedulerClose(t *testing.T) {
	t.Parallel()

	sch := NewScheduler()

	streams := make([]*Stream, 3)
	for i := range streams {
		streams[i] = newIdleStream(64)
		sch.Schedule(streams[i], 5*time.Millisecond)
	}

	sch.Close()

	// No task goroutine survives Close; queues stay quiet.
	counts := make([]int, len(streams))
	for i, s := range streams {
		counts[i] = len(s.out)
	}
	time.Sleep(30 * time.Millisecond)
	for i, s := range streams {
		if len(s.out) != counts[i] {
			t.Errorf("stream %d received heartbeats after scheduler Close", i)
		}
	}

	// Scheduling after Close hands back a finished task.
	task := sch.Schedule(newIdleStream(1), time.Millisecond)
	select {
	case <-task.finished:
	case <-time.After(time.Second):
		t.Error("task scheduled after Close is not finished")
	}
}

func TestFireOnClosedStreamReturnsFalse(t *testing.T) {
	t.Parallel()

	sch := NewScheduler()
	t.Cleanup(sch.Close)

	s := newIdleStream(1)
	close(s.done)

	task := sch.Schedule(s, time.Hour)
	select {
	case <-task.finished:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not self-cancel on closed stream")
	}

	if err := s.enqueueHeartbeat(nil); err == nil {
		t.Error("enqueueHeartbeat on closed stream = nil, want error")
	}
}
