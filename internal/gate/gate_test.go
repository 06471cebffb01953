package gate

import (
	"context"
	"testing"
	"time"
)

func TestAcquireReleaseRoundtrip(t *testing.T) {
	g := New(2)
	if g.Available() != 2 {
		t.Fatalf("Available() = %d, want 2", g.Available())
	}
	ctx := context.Background()
	if err := g.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if g.Available() != 1 || g.InUse() != 1 {
		t.Fatalf("after one Acquire: Available=%d InUse=%d", g.Available(), g.InUse())
	}
	g.Release()
	if g.Available() != 2 {
		t.Fatalf("after Release: Available=%d", g.Available())
	}
}

func TestNewClampsBelowOne(t *testing.T) {
	g := New(0)
	if g.Capacity() != 1 {
		t.Fatalf("Capacity() = %d, want 1 (clamped)", g.Capacity())
	}
}

func TestAcquireBlocksWhenSaturated(t *testing.T) {
	g := New(1)
	ctx := context.Background()
	if err := g.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if !g.Saturated() {
		t.Fatal("gate should report saturated with zero permits free")
	}

	acquired := make(chan struct{})
	go func() {
		_ = g.Acquire(context.Background())
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire should block while the gate is saturated")
	case <-time.After(50 * time.Millisecond):
	}

	g.Release()
	select {
	case <-acquired:
	case <-time.After(1 * time.Second):
		t.Fatal("second Acquire should unblock after Release")
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	g := New(1)
	_ = g.Acquire(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Acquire(ctx); err == nil {
		t.Fatal("Acquire should fail once ctx is done")
	}
}
