// Command watercontrol drives the main and automatic irrigation valves from
// MQTT commands, counts flow sensor pulses and publishes valve state and
// water usage.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/syslog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sweeney/watercontrol/internal/config"
	"github.com/sweeney/watercontrol/internal/gpio"
	"github.com/sweeney/watercontrol/internal/logic"
	"github.com/sweeney/watercontrol/internal/mqtt"
	"github.com/sweeney/watercontrol/internal/status"
	"github.com/sweeney/watercontrol/internal/store"
	"github.com/sweeney/watercontrol/internal/web"
)

// commandQueueSize bounds the commands waiting for the scheduler. Commands
// arriving while it is full are dropped.
const commandQueueSize = 16

type options struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCmd(run).Execute(); err != nil {
		atexit.Fatalf("fatal: %v", err)
	}
	atexit.Exit(0)
}

// newRootCmd builds the CLI. runDaemon is called with the merged config.
func newRootCmd(runDaemon func(config.Config) error) *cobra.Command {
	var opts options
	flags := config.Default()

	root := &cobra.Command{
		Use:   "watercontrol",
		Short: "Interlocked irrigation valve timer with flow accounting",
		Long: `watercontrol drives the main water and automatic watering valves from ` +
			`MQTT commands, closes them when their timers run out and keeps the ` +
			`lifetime water total in a local SQLite database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, flags)
			if err != nil {
				return err
			}
			return runDaemon(cfg)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with MQTT_* settings (ignored if missing)")

	f := root.Flags()
	f.StringVar(&flags.Broker, "broker", flags.Broker, "MQTT broker address")
	f.StringVar(&flags.HTTPAddr, "http", flags.HTTPAddr, "HTTP status address (empty to disable)")
	f.StringVar(&flags.Database, "db", flags.Database, "SQLite database path")
	f.DurationVar(&flags.Period, "period", flags.Period, "Tick period")
	f.DurationVar(&flags.Heartbeat, "heartbeat", flags.Heartbeat, "Heartbeat interval (0 to disable)")
	f.BoolVar(&flags.Syslog, "syslog", flags.Syslog, "Also log to syslog")

	root.AddCommand(newPrintStateCmd(&opts))
	return root
}

func newPrintStateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "print-state",
		Short: "Print the flow sensor level and the stored water total, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath, opts.envFile)
			if err != nil {
				return err
			}
			return printState(cmd.OutOrStdout(), cfg)
		},
	}
}

// loadConfig layers explicitly set flags over the file and environment.
func loadConfig(cmd *cobra.Command, opts options, flags config.Config) (config.Config, error) {
	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("broker") {
		cfg.Broker = flags.Broker
	}
	if f.Changed("http") {
		cfg.HTTPAddr = flags.HTTPAddr
	}
	if f.Changed("db") {
		cfg.Database = flags.Database
	}
	if f.Changed("period") {
		cfg.Period = flags.Period
	}
	if f.Changed("heartbeat") {
		cfg.Heartbeat = flags.Heartbeat
	}
	if f.Changed("syslog") {
		cfg.Syslog = flags.Syslog
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(cfg config.Config) error {
	if cfg.Syslog {
		w, err := syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, "watercontrol")
		if err != nil {
			log.Printf("syslog unavailable: %v", err)
		} else {
			log.SetOutput(io.MultiWriter(os.Stderr, w))
		}
	}

	// Valve lines first: both are requested low before anything else runs,
	// and forced low again on every exit path.
	valves, err := gpio.NewRealValves(cfg.Pins.Chip, cfg.Pins.Main, cfg.Pins.Automatic)
	if err != nil {
		return fmt.Errorf("init valves: %w", err)
	}
	atexit.Register(func() {
		if err := valves.Close(); err != nil {
			log.Printf("release valves: %v", err)
		}
	})

	ctx := context.Background()

	// A broken database is retried on every save; watering goes on.
	st := store.NewLazy(cfg.Database)
	defer st.Close()

	lifetime, err := st.Load(ctx)
	if err != nil {
		log.Printf("%v, starting from 0", &logic.PersistenceError{Op: "load", Err: err})
		lifetime = 0
	}
	usage := logic.NewUsage(st, lifetime)

	pulses := &logic.PulseCounter{}
	sensor, err := gpio.NewRealFlowSensor(cfg.Pins.Chip, cfg.Pins.Sensor, cfg.Pins.Debounce, pulses.OnEdge)
	if err != nil {
		log.Printf("flow sensor unavailable, usage will not be counted: %v", err)
	} else {
		defer sensor.Close()
	}

	commands := make(chan logic.Command, commandQueueSize)
	client, err := mqtt.NewRealClient(mqtt.Options{
		Broker:   cfg.Broker,
		Username: cfg.Username,
		Password: cfg.Password,
		Device:   mqtt.Device{Name: cfg.Name, Identifier: cfg.Identifier},
		OnCommand: func(cmd logic.Command) {
			select {
			case commands <- cmd:
			default:
				log.Printf("command queue full, dropping %s command", cmd.Valve)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		Identifier:    cfg.Identifier,
		PeriodMs:      cfg.Period.Milliseconds(),
		BackoffFactor: cfg.BackoffFactor,
		DebounceMs:    cfg.Pins.Debounce.Milliseconds(),
		HeartbeatMs:   cfg.Heartbeat.Milliseconds(),
		Broker:        cfg.Broker,
		HTTPPort:      cfg.HTTPAddr,
		Database:      cfg.Database,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: period=%v backoff=%v broker=%s identifier=%s total=%s heartbeat=%v",
		cfg.Period, cfg.Backoff(), cfg.Broker, cfg.Identifier, mqtt.FormatVolume(lifetime), cfg.Heartbeat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		ctrl:      logic.NewController(),
		usage:     usage,
		pulses:    pulses,
		valves:    valves,
		pub:       client,
		conn:      client,
		tracker:   tracker,
		period:    cfg.Period,
		backoff:   cfg.Backoff(),
		heartbeat: cfg.Heartbeat,
		now:       time.Now,
		after:     time.After,
	}
	return l.run(ctx, commands, sigCh)
}

func printState(w io.Writer, cfg config.Config) error {
	sensor, err := gpio.NewRealFlowSensor(cfg.Pins.Chip, cfg.Pins.Sensor, cfg.Pins.Debounce, func(int) {})
	if err != nil {
		return fmt.Errorf("init flow sensor: %w", err)
	}
	defer sensor.Close()

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	return writeState(ctx, w, sensor, st)
}

// totalLoader reads the persisted lifetime total.
type totalLoader interface {
	Load(ctx context.Context) (float64, error)
}

func writeState(ctx context.Context, w io.Writer, sensor gpio.FlowSensor, totals totalLoader) error {
	level, err := sensor.Level()
	if err != nil {
		return fmt.Errorf("read flow sensor: %w", err)
	}

	total, err := totals.Load(ctx)
	if err != nil {
		return fmt.Errorf("load total: %w", err)
	}

	fmt.Fprintf(w, "sensor: %d, total: %s\n", level, mqtt.FormatVolume(total))
	return nil
}
