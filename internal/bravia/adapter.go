package bravia

import (
	"context"
	"time"

	"ldpm/pkg/logx"
)

// PowerState is the unified power state reported by either transport.
type PowerState string

const (
	StateActive  PowerState = "active"
	StateStandby PowerState = "standby"
	StateUnknown PowerState = "unknown"
	StateError   PowerState = "error"
)

// Controller is the capability contract the rest of the daemon programs
// against: query a panel's power state, set a panel's power state.
//
// Failures are sentinel results (StateError / false), never errors. Callers
// must not need error handling for expected failure modes.
type Controller interface {
	PowerStatus(ctx context.Context, addr, psk string) PowerState
	SetPower(ctx context.Context, addr, psk string, on bool) bool
}

// Transport is one concrete way of talking to a panel (REST or Simple IP).
type Transport interface {
	PowerStatus(ctx context.Context, addr, psk string) PowerState
	SetPower(ctx context.Context, addr, psk string, on bool) bool
}

type Config struct {
	Timeout      time.Duration // per network attempt
	MaxAttempts  int           // attempts per transport
	RetryBase    time.Duration // backoff unit (attempt n failed -> sleep base<<n)
	SimpleIPPort int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.SimpleIPPort <= 0 {
		c.SimpleIPPort = simpleIPDefaultPort
	}
	return c
}

// Adapter unifies the REST and Simple IP transports behind Controller.
//
// Policy: with a PSK the REST transport is tried first (it retries
// internally); if it exhausts its attempts the Simple IP transport is
// tried (also internally retried). Without a PSK the REST transport is
// skipped entirely. The adapter keeps no state of its own and is safe to
// share across concurrent calls.
type Adapter struct {
	rest     Transport
	simpleIP Transport
	log      logx.Logger
}

func New(cfg Config, log logx.Logger) *Adapter {
	cfg = cfg.withDefaults()
	return &Adapter{
		rest:     NewREST(cfg, log),
		simpleIP: NewSimpleIP(cfg, log),
		log:      log,
	}
}

// NewWithTransports wires explicit transports. Used by tests and by anything
// that needs to swap one side out.
func NewWithTransports(rest, simpleIP Transport, log logx.Logger) *Adapter {
	return &Adapter{rest: rest, simpleIP: simpleIP, log: log}
}

func (a *Adapter) PowerStatus(ctx context.Context, addr, psk string) PowerState {
	if psk != "" {
		if st := a.rest.PowerStatus(ctx, addr, psk); st != StateError {
			return st
		}
		a.log.Info("rest transport failed, falling back to simple ip", logx.String("addr", addr))
	}

	st := a.simpleIP.PowerStatus(ctx, addr, "")
	if st == StateError {
		a.log.Error("power status failed on all transports", logx.String("addr", addr))
	}
	return st
}

func (a *Adapter) SetPower(ctx context.Context, addr, psk string, on bool) bool {
	if psk != "" {
		if a.rest.SetPower(ctx, addr, psk, on) {
			return true
		}
		a.log.Info("rest transport failed, falling back to simple ip", logx.String("addr", addr))
	}

	ok := a.simpleIP.SetPower(ctx, addr, "", on)
	if !ok {
		a.log.Error("set power failed on all transports", logx.String("addr", addr), logx.Bool("on", on))
	}
	return ok
}

// sleepBackoff waits base<<attempt before the next retry. Returns false if
// the context was cancelled while waiting.
func sleepBackoff(ctx context.Context, attempt int, base time.Duration) bool {
	t := time.NewTimer(base << attempt)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
