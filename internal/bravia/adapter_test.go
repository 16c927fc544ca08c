package bravia

import (
	"context"
	"sync/atomic"
	"testing"

	"ldpm/pkg/logx"
)

type stubTransport struct {
	state PowerState
	ok    bool
	calls atomic.Int64
}

func (s *stubTransport) PowerStatus(context.Context, string, string) PowerState {
	s.calls.Add(1)
	return s.state
}

func (s *stubTransport) SetPower(context.Context, string, string, bool) bool {
	s.calls.Add(1)
	return s.ok
}

func TestAdapterFallsBackToSimpleIP(t *testing.T) {
	t.Parallel()
	rest := &stubTransport{state: StateError, ok: false}
	simple := &stubTransport{state: StateActive, ok: true}
	a := NewWithTransports(rest, simple, logx.Nop())

	if got := a.PowerStatus(context.Background(), "10.0.0.9", "psk"); got != StateActive {
		t.Fatalf("PowerStatus = %v, want %v", got, StateActive)
	}
	if rest.calls.Load() == 0 {
		t.Fatal("rest transport was never tried")
	}
	if simple.calls.Load() == 0 {
		t.Fatal("simple ip transport was never tried")
	}

	if !a.SetPower(context.Background(), "10.0.0.9", "psk", true) {
		t.Fatal("SetPower = false, want true")
	}
}

func TestAdapterSkipsRESTWithoutPSK(t *testing.T) {
	t.Parallel()
	rest := &stubTransport{state: StateActive, ok: true}
	simple := &stubTransport{state: StateStandby, ok: true}
	a := NewWithTransports(rest, simple, logx.Nop())

	if got := a.PowerStatus(context.Background(), "10.0.0.9", ""); got != StateStandby {
		t.Fatalf("PowerStatus = %v, want %v", got, StateStandby)
	}
	_ = a.SetPower(context.Background(), "10.0.0.9", "", false)

	if n := rest.calls.Load(); n != 0 {
		t.Fatalf("rest transport called %d times, want 0", n)
	}
}

func TestAdapterPrefersRESTWithPSK(t *testing.T) {
	t.Parallel()
	rest := &stubTransport{state: StateActive, ok: true}
	simple := &stubTransport{state: StateStandby, ok: true}
	a := NewWithTransports(rest, simple, logx.Nop())

	if got := a.PowerStatus(context.Background(), "10.0.0.9", "psk"); got != StateActive {
		t.Fatalf("PowerStatus = %v, want %v", got, StateActive)
	}
	if n := simple.calls.Load(); n != 0 {
		t.Fatalf("simple ip called %d times, want 0", n)
	}
}

func TestAdapterBothTransportsFail(t *testing.T) {
	t.Parallel()
	rest := &stubTransport{state: StateError}
	simple := &stubTransport{state: StateError}
	a := NewWithTransports(rest, simple, logx.Nop())

	if got := a.PowerStatus(context.Background(), "10.0.0.9", "psk"); got != StateError {
		t.Fatalf("PowerStatus = %v, want %v", got, StateError)
	}
	if a.SetPower(context.Background(), "10.0.0.9", "psk", true) {
		t.Fatal("SetPower = true, want false")
	}
}
