package analysis

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunner_PanicContained(t *testing.T) {
	r := NewRunner(slog.Default(), time.Second)

	var ran atomic.Bool
	r.Submit("panicking", func(ctx context.Context) {
		panic("boom")
	})
	r.Submit("healthy", func(ctx context.Context) {
		ran.Store(true)
	})
	r.Wait()

	if !ran.Load() {
		t.Fatalf("panic in one task must not affect others")
	}
}

func TestRunner_TimeoutCancelsContext(t *testing.T) {
	r := NewRunner(slog.Default(), 20*time.Millisecond)

	done := make(chan struct{})
	r.Submit("slow", func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runner timeout did not cancel task context")
	}
	r.Wait()
}
