package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/evbus/internal/config"
	"github.com/dshills/evbus/internal/event"
	"github.com/dshills/evbus/internal/event/events"
	"github.com/dshills/evbus/internal/logging"
	"github.com/dshills/evbus/internal/script"
	"github.com/dshills/evbus/internal/telemetry"
)

type runOptions struct {
	configPath string
	scripts    []string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Register the demo listeners and post a sample event sequence",
		Long: `Run registers the audit, mailer and inventory listeners plus any Lua
scripts, posts a fixed sequence of user and order events, unregisters the
mailer part way through, and prints what each listener observed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts.configPath)
			if err != nil {
				return err
			}
			cfg.Scripts.Paths = append(cfg.Scripts.Paths, opts.scripts...)
			return runDemo(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to a TOML or YAML config file")
	cmd.Flags().StringArrayVarP(&opts.scripts, "script", "s", nil, "Lua listener script (repeatable)")
	addConfigFlags(cmd)
	return cmd
}

// runDemo drives the bus through a fixed scenario and reports the results.
func runDemo(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return err
	}

	providers, err := telemetry.Setup(cfg.Bus.Telemetry, stderr, "evbus", version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := providers.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("telemetry shutdown failed", "error", serr)
		}
	}()

	collector := &event.Collector{}
	bus := event.NewBus(
		event.WithLogger(logger),
		event.WithErrorSink(event.MultiSink{event.NewLogSink(logger), collector}),
		event.WithSlowHandlerThreshold(cfg.Bus.SlowHandler.Std()),
		event.WithMeterProvider(providers.MeterProvider),
		event.WithTracerProvider(providers.TracerProvider),
	)

	audit := events.NewAuditLog()
	mailer := events.NewMailer()
	inventory := events.NewInventory(map[string]int{"BOOK": 3, "PEN": 10})
	for _, l := range []event.Listener{audit, mailer, inventory} {
		if err := bus.Register(l); err != nil {
			return err
		}
	}

	catalog := events.Catalog()
	for _, path := range cfg.Scripts.Paths {
		l, err := script.LoadFile(path, catalog,
			script.WithLogger(logger),
			script.WithTimeout(cfg.Scripts.Timeout.Std()),
			script.WithPoster(bus),
		)
		if err != nil {
			return err
		}
		defer l.Close()
		if err := bus.Register(l); err != nil {
			return err
		}
		logger.Info("script registered", "script", path, "handlers", len(l.EventHandlers()))
	}

	for _, ev := range demoEvents[:4] {
		bus.PostContext(ctx, ev)
	}
	if err := bus.Unregister(mailer); err != nil {
		return err
	}
	for _, ev := range demoEvents[4:] {
		bus.PostContext(ctx, ev)
	}

	printReport(stdout, bus, audit, mailer, inventory, collector)
	return nil
}

var demoEvents = []event.Event{
	events.UserCreated{UserID: "u1", Email: "ada@example.com"},
	events.UserCreated{UserID: "u2"},
	events.OrderPlaced{OrderID: "o1", UserID: "u1", SKU: "BOOK", Quantity: 2},
	events.OrderPlaced{OrderID: "o2", UserID: "u1", SKU: "BOOK", Quantity: 5},
	events.UserCreated{UserID: "u3", Email: "grace@example.com"},
	events.UserDeleted{UserID: "u2", Reason: "requested"},
}

func printReport(w io.Writer, bus *event.Bus, audit *events.AuditLog, mailer *events.Mailer, inv *events.Inventory, collector *event.Collector) {
	fmt.Fprintln(w, "audit:")
	for _, e := range audit.Entries() {
		fmt.Fprintf(w, "  %s\n", e)
	}

	fmt.Fprintln(w, "mailer outbox:")
	for _, addr := range mailer.Outbox() {
		fmt.Fprintf(w, "  %s\n", addr)
	}

	fmt.Fprintf(w, "inventory: BOOK=%d PEN=%d\n", inv.Stock("BOOK"), inv.Stock("PEN"))

	s := bus.Stats()
	fmt.Fprintf(w, "stats: posted=%d unhandled=%d invoked=%d errors=%d panics=%d bindings=%d\n",
		s.EventsPosted, s.EventsUnhandled, s.HandlersInvoked, s.HandlerErrors, s.HandlerPanics, s.Bindings)

	failures := collector.Errors()
	fmt.Fprintf(w, "failures: %d\n", len(failures))
	for _, f := range failures {
		fmt.Fprintf(w, "  %s\n", f.Error())
	}
}
