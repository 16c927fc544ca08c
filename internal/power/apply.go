// Package power applies one power action to many displays at once.
//
// Schedule runs use the sequential mode (bounded outbound load, one panel
// at a time); the bulk HTTP endpoints use the concurrent mode (worker
// fan-out). Both modes share an optional outbound rate limit and never
// abort the batch on an individual failure.
package power

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"ldpm/internal/bravia"
	"ldpm/internal/store"
	"ldpm/pkg/logx"
)

type Config struct {
	Concurrency int // workers in concurrent mode
	RatePerSec  int // outbound command cap, 0 = unlimited
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// Result is the outcome for one display. Results are returned in input
// order regardless of mode.
type Result struct {
	Display store.Display
	OK      bool
}

type Applier struct {
	ctrl    bravia.Controller
	limiter *rate.Limiter
	workers int
	log     logx.Logger
}

func NewApplier(cfg Config, ctrl bravia.Controller, log logx.Logger) *Applier {
	cfg = cfg.withDefaults()
	a := &Applier{ctrl: ctrl, workers: cfg.Concurrency, log: log}
	if cfg.RatePerSec > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return a
}

func (a *Applier) Apply(ctx context.Context, displays []store.Display, on bool, concurrent bool) []Result {
	if len(displays) == 0 {
		return nil
	}
	if concurrent {
		return a.applyConcurrent(ctx, displays, on)
	}
	return a.applySequential(ctx, displays, on)
}

func (a *Applier) applySequential(ctx context.Context, displays []store.Display, on bool) []Result {
	out := make([]Result, len(displays))
	for i, d := range displays {
		out[i] = Result{Display: d, OK: a.setOne(ctx, d, on)}
	}
	return out
}

func (a *Applier) applyConcurrent(ctx context.Context, displays []store.Display, on bool) []Result {
	out := make([]Result, len(displays))

	workers := a.workers
	if workers > len(displays) {
		workers = len(displays)
	}
	jobs := make(chan int)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = Result{Display: displays[i], OK: a.setOne(ctx, displays[i], on)}
			}
		}()
	}

	for i := range displays {
		select {
		case jobs <- i:
		case <-ctx.Done():
			// Remaining displays are reported as failed, not skipped silently.
			out[i] = Result{Display: displays[i], OK: false}
		}
	}
	close(jobs)
	wg.Wait()
	return out
}

func (a *Applier) setOne(ctx context.Context, d store.Display, on bool) bool {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return false
		}
	}
	ok := a.ctrl.SetPower(ctx, d.IPAddress, d.PSK, on)
	if !ok {
		a.log.Warn("power command failed",
			logx.String("display", d.Name), logx.String("addr", d.IPAddress), logx.Bool("on", on))
	}
	return ok
}
