package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sync/errgroup"

	"github.com/SoarinFerret/ActivityLedger/internal/activity"
	"github.com/SoarinFerret/ActivityLedger/internal/calendar"
	"github.com/SoarinFerret/ActivityLedger/internal/config"
	"github.com/SoarinFerret/ActivityLedger/internal/engine"
	"github.com/SoarinFerret/ActivityLedger/internal/ipc"
	"github.com/SoarinFerret/ActivityLedger/internal/loginctl"
	"github.com/SoarinFerret/ActivityLedger/internal/metrics"
	"github.com/SoarinFerret/ActivityLedger/internal/state"
)

func main() {
	// check for argument to determine config location
	argPath := "/etc/activityledger/config.toml"
	if len(os.Args) > 1 {
		argPath = os.Args[1]
	}
	log.Println("Using config file at:", argPath)

	cfg, err := config.LoadConfigFromFile(argPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config:", err)
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		log.Fatal("Failed to open store:", err)
	}
	log.Printf("Using %s store", cfg.Store.Backend)

	opts, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		log.Fatal("Failed to build engine options:", err)
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder(opts.InstanceID)
		opts.Recorder = recorder
	}

	if cfg.Goal.Text != "" && *cfg.Goal.Notify {
		notifyConn, err := dbus.ConnectSessionBus()
		if err != nil {
			log.Println("Goal notifications disabled, no session bus:", err)
		} else {
			defer notifyConn.Close()
			opts.Notifier = engine.NewDesktopNotifier(notifyConn)
		}
	}

	clock := calendar.SystemClock{}
	monitor := activity.NewMonitor(clock, cfg.IdleCutoff.Std())
	ledgerEngine, err := engine.NewEngine(store, monitor, clock, opts)
	if err != nil {
		log.Fatal("Failed to create ledger engine:", err)
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Start the loginctl listener (system D-Bus)
	g.Go(func() error {
		log.Println("Monitoring logind for lock, idle and sleep...")
		if err := loginctl.Watch(gctx, monitor); err != nil {
			log.Println("logind watcher error:", err)
		}
		return nil
	})

	// Start our own D-Bus service
	g.Go(func() error {
		if err := serveLedger(gctx, ipc.NewLedger(ledgerEngine, monitor), cfg.DBus.System); err != nil {
			log.Println("activityledger service error:", err)
		}
		return nil
	})

	if recorder != nil {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Listen, recorder)
		})
	}

	// Start the ledger engine (periodic reconciliation)
	g.Go(func() error {
		return ledgerEngine.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Println("ledgerd stopped with error:", err)
	}
	if err := store.Close(); err != nil {
		log.Println("Failed to close store:", err)
	}
	fmt.Println("Shutdown complete")
}

func openStore(cfg config.StoreConfig) (state.Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return state.NewFileStore(cfg.Path)
	case config.BackendSQLite:
		return state.NewSQLiteStore(cfg.Path)
	case config.BackendRedis:
		return state.NewRedisStore(state.RedisConfig{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			Prefix:   cfg.Prefix,
		})
	case config.BackendMemory:
		return state.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

func serveLedger(ctx context.Context, ledger *ipc.Ledger, system bool) error {
	var (
		conn *dbus.Conn
		err  error
	)
	if system {
		log.Println("Opening system D-Bus service...")
		conn, err = dbus.ConnectSystemBus()
	} else {
		log.Println("Opening session D-Bus service...")
		conn, err = dbus.ConnectSessionBus()
	}
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer conn.Close()

	return ipc.Serve(ctx, conn, ledger)
}
