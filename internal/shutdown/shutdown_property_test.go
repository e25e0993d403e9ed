package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// recorder collects the order in which components stop.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

func (r *recorder) stopped() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// MockComponent records its shutdown and optionally fails or stalls.
type MockComponent struct {
	name  string
	delay time.Duration
	fail  bool
	rec   *recorder
}

func (m *MockComponent) Name() string { return m.name }

func (m *MockComponent) Shutdown(ctx context.Context) error {
	select {
	case <-time.After(m.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	m.rec.add(m.name)
	if m.fail {
		return errors.New("mock shutdown failed")
	}
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPropertyShutdownOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("components stop one by one in reverse registration order", prop.ForAll(
		func(n int, failAt int) bool {
			rec := &recorder{}
			c := NewCoordinator(WithTimeout(time.Second), WithLogger(quietLogger()))
			for i := 0; i < n; i++ {
				c.Register(&MockComponent{
					name:  string(rune('a' + i)),
					delay: time.Millisecond,
					fail:  i == failAt,
					rec:   rec,
				})
			}

			c.Shutdown()

			got := rec.stopped()
			if len(got) != n {
				return false
			}
			for i, name := range got {
				if name != string(rune('a'+n-1-i)) {
					return false
				}
			}
			wantCode := 0
			if failAt < n {
				wantCode = 1
			}
			return c.ExitCode() == wantCode
		},
		gen.IntRange(1, 6),
		gen.IntRange(0, 8),
	))

	properties.TestingRun(t)
}

func TestWaitForSignal(t *testing.T) {
	rec := &recorder{}
	sigCh := make(chan os.Signal, 1)
	c := NewCoordinator(WithSignalChannel(sigCh), WithLogger(quietLogger()))
	c.Register(&MockComponent{name: "dispatcher", rec: rec})

	go c.WaitForSignal(context.Background())
	sigCh <- os.Interrupt

	select {
	case <-c.shutdownDone:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	if got := rec.stopped(); len(got) != 1 || got[0] != "dispatcher" {
		t.Errorf("stopped = %v", got)
	}
}

func TestWaitForSignalContextCancel(t *testing.T) {
	c := NewCoordinator(WithSignalChannel(make(chan os.Signal)), WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c.WaitForSignal(ctx)
	if c.ExitCode() != 0 {
		t.Errorf("exit code = %d", c.ExitCode())
	}
}

func TestShutdownTimeout(t *testing.T) {
	rec := &recorder{}
	c := NewCoordinator(WithTimeout(50*time.Millisecond), WithLogger(quietLogger()))
	c.Register(&MockComponent{name: "db", rec: rec})
	c.Register(NewFuncComponent("stuck", func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	}))

	start := time.Now()
	c.Shutdown()
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("shutdown took %v, want it bounded by the timeout", elapsed)
	}
	if c.ExitCode() != 1 {
		t.Errorf("exit code = %d, want 1", c.ExitCode())
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	rec := &recorder{}
	c := NewCoordinator(WithLogger(quietLogger()))
	c.Register(&MockComponent{name: "worker", rec: rec})

	c.Shutdown()
	c.Shutdown()
	if got := rec.stopped(); len(got) != 1 {
		t.Errorf("stopped %d times, want 1", len(got))
	}
}

type stopCounter struct {
	mu    sync.Mutex
	calls int
}

func (s *stopCounter) Stop() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

type closeCounter struct{ closed bool }

func (c *closeCounter) Close() error {
	c.closed = true
	return nil
}

func TestComponentAdapters(t *testing.T) {
	w := &stopCounter{}
	cl := &closeCounter{}
	c := NewCoordinator(WithLogger(quietLogger()))
	c.Register(NewCloserComponent("store", cl))
	c.Register(NewWorkerComponent("dispatcher", w))

	c.Shutdown()

	if w.calls != 1 || !cl.closed {
		t.Errorf("worker calls = %d, closed = %v", w.calls, cl.closed)
	}
	if c.ExitCode() != 0 {
		t.Errorf("exit code = %d", c.ExitCode())
	}
}
