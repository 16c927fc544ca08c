package power

import (
	"context"
	"sync"
	"testing"

	"ldpm/internal/bravia"
	"ldpm/internal/store"
	"ldpm/pkg/logx"
)

// fakeController fails for addresses in bad and records call order.
type fakeController struct {
	mu    sync.Mutex
	bad   map[string]bool
	calls []string
}

func (f *fakeController) PowerStatus(_ context.Context, addr, _ string) bravia.PowerState {
	if f.bad[addr] {
		return bravia.StateError
	}
	return bravia.StateActive
}

func (f *fakeController) SetPower(_ context.Context, addr, _ string, _ bool) bool {
	f.mu.Lock()
	f.calls = append(f.calls, addr)
	f.mu.Unlock()
	return !f.bad[addr]
}

func displays(n int) []store.Display {
	out := make([]store.Display, n)
	for i := range out {
		out[i] = store.Display{
			ID:        int64(i + 1),
			Name:      "d" + string(rune('A'+i)),
			IPAddress: "10.0.0." + string(rune('1'+i)),
		}
	}
	return out
}

func TestApplySequentialContinuesOnFailure(t *testing.T) {
	t.Parallel()
	ds := displays(3)
	ctrl := &fakeController{bad: map[string]bool{ds[1].IPAddress: true}}
	a := NewApplier(Config{}, ctrl, logx.Nop())

	results := a.Apply(context.Background(), ds, true, false)
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if !results[0].OK || results[1].OK || !results[2].OK {
		t.Fatalf("unexpected results: %+v", results)
	}
	if len(ctrl.calls) != 3 {
		t.Fatalf("calls = %d, want 3 (no early abort)", len(ctrl.calls))
	}
	// Sequential mode preserves input order on the wire.
	for i, d := range ds {
		if ctrl.calls[i] != d.IPAddress {
			t.Fatalf("call %d = %s, want %s", i, ctrl.calls[i], d.IPAddress)
		}
	}
}

func TestApplyConcurrentCoversAllDisplays(t *testing.T) {
	t.Parallel()
	ds := displays(8)
	ctrl := &fakeController{bad: map[string]bool{ds[0].IPAddress: true, ds[5].IPAddress: true}}
	a := NewApplier(Config{Concurrency: 3}, ctrl, logx.Nop())

	results := a.Apply(context.Background(), ds, false, true)
	if len(results) != 8 {
		t.Fatalf("results = %d, want 8", len(results))
	}
	failed := 0
	for i, r := range results {
		if r.Display.ID != ds[i].ID {
			t.Fatalf("result %d out of order: %+v", i, r)
		}
		if !r.OK {
			failed++
		}
	}
	if failed != 2 {
		t.Fatalf("failed = %d, want 2", failed)
	}
	if len(ctrl.calls) != 8 {
		t.Fatalf("calls = %d, want 8", len(ctrl.calls))
	}
}

func TestApplyEmptyTargetList(t *testing.T) {
	t.Parallel()
	a := NewApplier(Config{}, &fakeController{}, logx.Nop())
	if got := a.Apply(context.Background(), nil, true, true); got != nil {
		t.Fatalf("Apply(nil) = %v, want nil", got)
	}
}
