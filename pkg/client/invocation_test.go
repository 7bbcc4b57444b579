package client

import (
	"errors"
	"testing"
)

func TestInvocationTableSequentialIDs(t *testing.T) {
	tbl := newInvocationTable()

	for want := uint64(1); want <= 5; want++ {
		p := tbl.register()
		if p.id != want {
			t.Fatalf("register() id = %d, want %d", p.id, want)
		}
	}
	if got := tbl.size(); got != 5 {
		t.Fatalf("size() = %d, want 5", got)
	}
}

func TestInvocationTableTakeRemoves(t *testing.T) {
	tbl := newInvocationTable()
	p := tbl.register()

	got, ok := tbl.take(p.id)
	if !ok || got != p {
		t.Fatalf("take(%d) = %v, %v, want original entry", p.id, got, ok)
	}
	if _, ok := tbl.take(p.id); ok {
		t.Fatalf("second take(%d) succeeded, want miss", p.id)
	}
	if got := tbl.size(); got != 0 {
		t.Fatalf("size() = %d, want 0", got)
	}
}

func TestInvocationTableTakeUnknownID(t *testing.T) {
	tbl := newInvocationTable()
	if _, ok := tbl.take(42); ok {
		t.Fatal("take(42) succeeded on empty table")
	}
}

func TestInvocationTableFailAll(t *testing.T) {
	tbl := newInvocationTable()
	first := tbl.register()
	second := tbl.register()

	tbl.failAll("session lost")

	for _, p := range []*pendingInvocation{first, second} {
		select {
		case <-p.done:
		default:
			t.Fatalf("invocation %d not completed by failAll", p.id)
		}
		var invErr *InvocationError
		if !errors.As(p.result.err, &invErr) {
			t.Fatalf("invocation %d error = %v, want *InvocationError", p.id, p.result.err)
		}
		if !invErr.IsCancellation() {
			t.Fatalf("invocation %d error is not a cancellation: %v", p.id, invErr)
		}
		if invErr.InvocationID != p.id {
			t.Fatalf("invocation error id = %d, want %d", invErr.InvocationID, p.id)
		}
	}
	if got := tbl.size(); got != 0 {
		t.Fatalf("size() after failAll = %d, want 0", got)
	}
}

func TestInvocationTableIDsNotReusedAfterFailAll(t *testing.T) {
	tbl := newInvocationTable()
	tbl.register()
	tbl.register()
	tbl.failAll("teardown")

	p := tbl.register()
	if p.id != 3 {
		t.Fatalf("register() after failAll id = %d, want 3", p.id)
	}
}
