package reactor

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	fibreerrors "github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/native"
)

func startLoop(t *testing.T, opts ...Option) *Loop {
	t.Helper()
	l := New(opts...)
	go l.Run(context.Background())
	t.Cleanup(func() {
		l.Stop()
		<-l.Done()
	})
	// Wait until the loop goroutine is live.
	if err := l.Do(func() {}); err != nil {
		t.Fatalf("loop did not start: %v", err)
	}
	return l
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestLoop_PostOrder(t *testing.T) {
	l := startLoop(t)

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		if err := l.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		}); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, done, "posted tasks")

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestLoop_InLoop(t *testing.T) {
	l := startLoop(t)

	if l.InLoop() {
		t.Fatal("test goroutine must not be the loop")
	}
	var inside bool
	if err := l.Do(func() { inside = l.InLoop() }); err != nil {
		t.Fatal(err)
	}
	if !inside {
		t.Fatal("Do callback should run on the loop")
	}
}

func TestLoop_Await(t *testing.T) {
	l := startLoop(t)

	var inside bool
	var order []int
	if err := l.Post(func() { order = append(order, 1) }); err != nil {
		t.Fatal(err)
	}
	if err := l.Await(func() {
		inside = l.InLoop()
		order = append(order, 2)
	}); err != nil {
		t.Fatal(err)
	}
	if !inside {
		t.Fatal("Await callback should run on the loop")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order = %v, want [1 2]", order)
	}
}

func TestLoop_DoInline(t *testing.T) {
	l := startLoop(t)

	var nested bool
	err := l.Do(func() {
		// Nested Do on the loop runs inline instead of deadlocking.
		_ = l.Do(func() { nested = true })
	})
	if err != nil {
		t.Fatal(err)
	}
	if !nested {
		t.Fatal("nested Do did not run")
	}
}

func TestLoop_PanicRecovery(t *testing.T) {
	l := startLoop(t)

	_ = l.Post(func() { panic("boom") })
	var ran bool
	if err := l.Do(func() { ran = true }); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("loop should survive a panicking task")
	}
}

func TestLoop_StopRejectsPost(t *testing.T) {
	l := New()
	go l.Run(context.Background())
	if err := l.Do(func() {}); err != nil {
		t.Fatal(err)
	}
	l.Stop()
	<-l.Done()

	if err := l.Post(func() {}); !errors.Is(err, ErrLoopTerminated) {
		t.Fatalf("Post after Stop = %v", err)
	}
	if err := l.Do(func() {}); !errors.Is(err, ErrLoopTerminated) {
		t.Fatalf("Do after Stop = %v", err)
	}
	if err := l.Await(func() {}); !errors.Is(err, ErrLoopTerminated) {
		t.Fatalf("Await after Stop = %v", err)
	}
	if err := l.Run(context.Background()); !errors.Is(err, ErrLoopRunning) {
		t.Fatalf("second Run = %v", err)
	}
}

func TestLoop_ContextCancel(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	if err := l.Do(func() {}); err != nil {
		t.Fatal(err)
	}
	cancel()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on context cancellation")
	}
}

func TestLoop_CallLater(t *testing.T) {
	mock := clock.NewMock()
	l := startLoop(t, WithClock(mock))

	fired := make(chan struct{})
	var firedInLoop bool
	id, err := l.CallLater(time.Second, func() {
		firedInLoop = l.InLoop()
		close(fired)
	})
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("first timer id = %d, want 1", id)
	}
	if l.PendingTimers() != 1 {
		t.Fatalf("PendingTimers = %d", l.PendingTimers())
	}

	mock.Add(time.Second)
	waitFor(t, fired, "timer")
	if !firedInLoop {
		t.Fatal("timer callback must run on the loop")
	}

	// The id is released once the timer fires.
	if err := l.Do(func() {}); err != nil {
		t.Fatal(err)
	}
	if l.PendingTimers() != 0 {
		t.Fatalf("PendingTimers = %d after firing", l.PendingTimers())
	}
	id2, _ := l.CallLater(time.Second, func() {})
	if id2 != 1 {
		t.Fatalf("timer id not reused: %d", id2)
	}
}

func TestLoop_CancelTimer(t *testing.T) {
	mock := clock.NewMock()
	l := startLoop(t, WithClock(mock))

	fired := make(chan struct{}, 1)
	id, err := l.CallLater(time.Second, func() { fired <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	if err := l.CancelTimer(id); err != nil {
		t.Fatal(err)
	}
	mock.Add(2 * time.Second)
	_ = l.Do(func() {})

	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(50 * time.Millisecond):
	}

	if err := l.CancelTimer(id); !errors.Is(err, fibreerrors.ErrNotFound) {
		t.Fatalf("second CancelTimer = %v, want not found", err)
	}
}

func TestLoop_RegisterEventMask(t *testing.T) {
	l := startLoop(t)

	for _, mask := range []native.EventMask{2, 8, 0x10 | native.EventReadable} {
		err := l.RegisterEvent(3, mask, func() {})
		if !errors.Is(err, fibreerrors.ErrUnsupportedEventMask) {
			t.Fatalf("mask %#x: got %v, want unsupported event mask", mask, err)
		}
	}
	if err := l.DeregisterEvent(12345); !errors.Is(err, fibreerrors.ErrNotFound) {
		t.Fatalf("DeregisterEvent(unknown) = %v", err)
	}
}

func TestLoop_RegisterEventReadable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("poll(2) based readiness")
	}
	l := startLoop(t)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	ready := make(chan struct{}, 16)
	fd := int(r.Fd())
	err = l.RegisterEvent(fd, native.EventReadable, func() {
		buf := make([]byte, 16)
		_, _ = r.Read(buf)
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("readable callback did not run")
	}

	if err := l.DeregisterEvent(fd); err != nil {
		t.Fatal(err)
	}
	if err := l.RegisterEvent(fd, native.EventReadable, func() {}); err != nil {
		t.Fatalf("re-register after deregister: %v", err)
	}
	if err := l.DeregisterEvent(fd); err != nil {
		t.Fatal(err)
	}
}
