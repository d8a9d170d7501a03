package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HerbHall/wispwatch/internal/config"
	"github.com/HerbHall/wispwatch/internal/devices"
	"github.com/HerbHall/wispwatch/internal/monitor"
	"github.com/HerbHall/wispwatch/internal/notify"
	"github.com/HerbHall/wispwatch/internal/remote"
	"github.com/HerbHall/wispwatch/internal/store"
	"github.com/HerbHall/wispwatch/internal/telemetry"
	"github.com/HerbHall/wispwatch/internal/vault"
	"github.com/HerbHall/wispwatch/internal/version"
	"go.uber.org/zap"
)

func main() {
	// Subcommand dispatch (before flag.Parse).
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "device":
			runDevice(os.Args[2:])
			return
		case "version":
			fmt.Println(version.Info())
			return
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	viperCfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("WispWatch starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	// Open database
	dbPath := viperCfg.GetString("database.path")
	if dbPath == "" {
		dbPath = "wispwatch.db"
	}
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.CheckVersion(ctx, version.Short()); err != nil {
		logger.Fatal("schema version check failed", zap.Error(err))
	}
	if err := db.Migrate(ctx, "devices", devices.Migrations()); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	// Credential codec. The salt must stay stable across restarts or
	// previously stored credentials become undecryptable.
	passphrase := viperCfg.GetString("vault.passphrase")
	saltHex := viperCfg.GetString("vault.salt")
	if passphrase == "" || saltHex == "" {
		logger.Fatal("vault.passphrase and vault.salt must be set (salt: 32 hex chars)",
			zap.String("component", "vault"),
		)
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		logger.Fatal("vault.salt is not valid hex", zap.Error(err))
	}
	codec, err := vault.NewCodec(passphrase, salt)
	if err != nil {
		logger.Fatal("failed to initialize credential codec", zap.Error(err))
	}

	deviceStore := devices.NewStore(db.DB(), codec)

	// Radios are polled over SSH through the gateway's NAT.
	gwCfg, err := config.GatewayFromViper(viperCfg)
	if err != nil {
		logger.Fatal("invalid gateway configuration", zap.Error(err))
	}
	if gwCfg.Host == "" {
		logger.Warn("gateway.host not configured; radio polling will fail until it is set",
			zap.String("component", "gateway"),
		)
	}
	sshClient := remote.NewClient(logger.Named("remote"))

	extractors := telemetry.NewSet(
		telemetry.NewONTExtractor(logger.Named("telemetry")),
		telemetry.NewRadioExtractor(sshClient, gwCfg.Host, logger.Named("telemetry")),
	)

	evaluator := notify.NewEvaluator(notify.NewLogSender(logger.Named("notify")), logger.Named("notify"))

	monCfg, err := config.MonitorFromViper(viperCfg)
	if err != nil {
		logger.Fatal("invalid monitor configuration", zap.Error(err))
	}
	sched := monitor.NewScheduler(deviceStore, extractors, deviceStore, evaluator,
		monitor.Config{MaxConcurrent: monCfg.MaxConcurrent, StaggerStep: monCfg.StaggerStep},
		logger.Named("monitor"),
	)
	sched.Start(ctx)

	reload := func() {
		list, err := deviceStore.List(ctx)
		if err != nil {
			logger.Error("device reload failed", zap.Error(err))
			return
		}
		sched.Reload(list)
	}
	reload()

	reloadInterval := monCfg.ReloadInterval
	if reloadInterval <= 0 {
		reloadInterval = time.Minute
	}
	ticker := time.NewTicker(reloadInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reload()
			}
		}
	}()

	logger.Info("WispWatch ready",
		zap.Int("max_concurrent", monCfg.MaxConcurrent),
		zap.Duration("reload_interval", reloadInterval),
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	sched.Stop()
	logger.Info("WispWatch stopped")
}

// Compile-time checks that the composition wiring satisfies the
// scheduler's collaborator contracts.
var (
	_ monitor.DeviceSource = (*devices.Store)(nil)
	_ monitor.Cache        = (*devices.Store)(nil)
)
