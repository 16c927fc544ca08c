// Command ldpmd is the display power management daemon: it persists the
// display inventory, drives panels over REST and Simple IP, runs the
// cron schedule engine and serves the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"ldpm/internal/bravia"
	"ldpm/internal/config"
	"ldpm/internal/energy"
	"ldpm/internal/power"
	"ldpm/internal/server"
	"ldpm/internal/services/notify"
	"ldpm/internal/services/scheduler"
	"ldpm/internal/store"
	"ldpm/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	boot := logx.NewConsole("info")

	mgr := config.NewManager(cfgPath, boot)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer logSvc.Close()

	st, err := store.Open(store.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: config.Duration(cfg.Database.BusyTimeout, 0),
	}, log)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	adapter := bravia.New(braviaConfig(cfg), log)
	applier := power.NewApplier(power.Config{
		Concurrency: cfg.Power.Concurrency,
		RatePerSec:  cfg.Power.RatePerSec,
	}, adapter, log)

	notifier, err := notify.New(notify.Config{
		Enabled:    cfg.Notify.Enabled,
		Token:      cfg.Notify.Token,
		ChatID:     cfg.Notify.ChatID,
		QueueSize:  cfg.Notify.QueueSize,
		RatePerSec: cfg.Notify.RatePerSec,
	}, log)
	if err != nil {
		return err
	}
	notifier.Start(ctx)

	executor := scheduler.NewExecutor(st, applier, notifier, log)
	registry := scheduler.NewRegistry(scheduler.Config{
		Timezone:     cfg.Scheduler.Timezone,
		DrainTimeout: config.Duration(cfg.Scheduler.DrainTimeout, 30*time.Second),
	}, st, executor, log)
	if err := registry.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	srv := server.New(serverConfig(cfg), st, adapter, applier, registry, energy.Config{
		OnWatts:      cfg.Energy.OnWatts,
		StandbyWatts: cfg.Energy.StandbyWatts,
		CostPerKWh:   cfg.Energy.CostPerKWh,
		CO2PerKWh:    cfg.Energy.CO2PerKWh,
	}, log)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("http: %w", err)
	}

	// Hot reload: logging settings apply live, everything else needs a
	// restart and is called out when it changes.
	go func() { _ = mgr.Watch(ctx) }()
	sub := mgr.Subscribe(1)
	defer mgr.Unsubscribe(sub)
	go func() {
		prev := cfg
		for next := range sub {
			logSvc.Apply(logx.Config{
				Level:   next.Logging.Level,
				Console: next.Logging.Console,
				File: logx.FileConfig{
					Enabled: next.Logging.File.Enabled,
					Path:    next.Logging.File.Path,
				},
			})
			for _, section := range config.ChangedSections(prev, next) {
				if section != "logging" {
					log.Warn("config section changed; restart required to apply",
						logx.String("section", section))
				}
			}
			prev = next
		}
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		log.Debug("sd_notify ready")
	}
	log.Info("ldpmd started",
		logx.String("config", cfgPath),
		logx.String("db", cfg.Database.Path),
		logx.Int("schedules", registry.Jobs()))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	srv.Stop(stopCtx)
	registry.Stop(stopCtx)
	notifier.Stop(stopCtx)
	return nil
}

func braviaConfig(cfg *config.Config) bravia.Config {
	return bravia.Config{
		Timeout:      config.Duration(cfg.Bravia.Timeout, 0),
		MaxAttempts:  cfg.Bravia.MaxAttempts,
		RetryBase:    config.Duration(cfg.Bravia.RetryBase, 0),
		SimpleIPPort: cfg.Bravia.SimpleIPPort,
	}
}

func serverConfig(cfg *config.Config) server.Config {
	return server.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 0),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 0),
		IdleTimeout:  config.Duration(cfg.Server.IdleTimeout, 0),
	}
}
