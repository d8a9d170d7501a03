package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/HerbHall/wispwatch/internal/config"
	"github.com/HerbHall/wispwatch/internal/devices"
	"github.com/HerbHall/wispwatch/internal/provision"
	"github.com/HerbHall/wispwatch/internal/remote"
	"github.com/HerbHall/wispwatch/internal/store"
	"github.com/HerbHall/wispwatch/internal/vault"
	"github.com/HerbHall/wispwatch/pkg/models"
	"go.uber.org/zap"
)

// runDevice implements the `wispwatch device <add|list|remove>` admin
// subcommands. They share the daemon's config, database, and gateway
// reconciler, so adding a radio here provisions the gateway the same
// way the running daemon would.
func runDevice(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: wispwatch device <add|list|remove> [flags]")
		os.Exit(2)
	}

	switch args[0] {
	case "add":
		runDeviceAdd(args[1:])
	case "list":
		runDeviceList(args[1:])
	case "remove":
		runDeviceRemove(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown device subcommand %q\n", args[0])
		os.Exit(2)
	}
}

var _ devices.Provisioner = (*provision.Reconciler)(nil)

// adminContext is the shared setup for the device subcommands.
type adminContext struct {
	db  *store.Store
	svc *devices.Service
}

func newAdminContext(configPath string) (*adminContext, error) {
	viperCfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	dbPath := viperCfg.GetString("database.path")
	if dbPath == "" {
		dbPath = "wispwatch.db"
	}
	db, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(context.Background(), "devices", devices.Migrations()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	passphrase := viperCfg.GetString("vault.passphrase")
	salt, err := hex.DecodeString(viperCfg.GetString("vault.salt"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("vault.salt is not valid hex: %w", err)
	}
	codec, err := vault.NewCodec(passphrase, salt)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("credential codec: %w", err)
	}

	gwCfg, err := config.GatewayFromViper(viperCfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger := zap.NewNop() // admin output goes to stdout, not the log stream
	reconciler := provision.New(remote.NewClient(logger), remote.Target{
		Host:     gwCfg.Host,
		Port:     gwCfg.Port,
		Username: gwCfg.Username,
		Password: gwCfg.Password,
	}, gwCfg.Interface, logger)

	deviceStore := devices.NewStore(db.DB(), codec)
	return &adminContext{
		db:  db,
		svc: devices.NewService(deviceStore, reconciler, logger),
	}, nil
}

func runDeviceAdd(args []string) {
	fs := flag.NewFlagSet("device add", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	name := fs.String("name", "", "device name")
	family := fs.String("family", "", "device family: ont_epon, ont_gpon, radio")
	host := fs.String("host", "", "web UI address (optical terminals)")
	username := fs.String("username", "", "login username")
	password := fs.String("password", "", "login password")
	innerIP := fs.String("inner-ip", "", "LAN address behind the gateway (radio)")
	natPort := fs.Int("nat-port", 0, "gateway NAT port forwarded to the radio (radio)")
	tunnelIP := fs.String("tunnel-ip", "", "gateway tunnel address (radio)")
	interval := fs.Duration("interval", 5*time.Minute, "poll interval")
	retries := fs.Int("retries", 3, "poll attempts before reporting offline")
	retryDelay := fs.Duration("retry-delay", 10*time.Second, "delay between poll attempts")
	fs.Parse(args)

	admin, err := newAdminContext(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer admin.db.Close()

	dev := &models.Device{
		Name:          *name,
		Family:        models.DeviceFamily(*family),
		Host:          *host,
		Username:      *username,
		Password:      *password,
		InnerIP:       *innerIP,
		NATPort:       *natPort,
		TunnelIP:      *tunnelIP,
		PollInterval:  *interval,
		RetryAttempts: *retries,
		RetryDelay:    *retryDelay,
	}

	outcome, err := admin.svc.Create(context.Background(), dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "add device: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("added %s (%s)\n", dev.Name, dev.ID)
	printOutcome(outcome)
}

func runDeviceList(args []string) {
	fs := flag.NewFlagSet("device list", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	fs.Parse(args)

	admin, err := newAdminContext(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer admin.db.Close()

	list, err := admin.svc.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "list devices: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tFAMILY\tTARGET\tINTERVAL")
	for _, d := range list {
		target := d.Host
		if d.Family.GatewayReachable() {
			target = fmt.Sprintf("%s (nat %d)", d.InnerIP, d.NATPort)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Family, target, d.PollInterval)
	}
	w.Flush()
}

func runDeviceRemove(args []string) {
	fs := flag.NewFlagSet("device remove", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	id := fs.String("id", "", "device id")
	fs.Parse(args)

	if *id == "" {
		fmt.Fprintln(os.Stderr, "device remove: -id is required")
		os.Exit(2)
	}

	admin, err := newAdminContext(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer admin.db.Close()

	outcome, err := admin.svc.Delete(context.Background(), *id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "remove device: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("removed %s\n", *id)
	printOutcome(outcome)
}

func printOutcome(out *provision.Outcome) {
	if out == nil {
		return
	}
	for _, s := range out.Steps {
		fmt.Printf("  gateway: %s\n", s)
	}
	for _, w := range out.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	if !out.Success {
		fmt.Println("  gateway reconciliation failed; re-run once the gateway is reachable")
	}
}
