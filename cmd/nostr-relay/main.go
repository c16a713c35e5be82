// Command nostr-relay serves a nostr relay over websocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	relay "github.com/xraph/nostr-relay"
	"github.com/xraph/nostr-relay/api"
	"github.com/xraph/nostr-relay/config"
	"github.com/xraph/nostr-relay/observability"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "nostr-relay:", err)
		os.Exit(1)
	}
}

type flags struct {
	configPath  string
	watch       bool
	addr        string
	driver      string
	dsn         string
	database    string
	logLevel    string
	logFormat   string
	logFile     string
	trustProxy  bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (*pflag.FlagSet, *flags, error) {
	var f flags
	fs := pflag.NewFlagSet("nostr-relay", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&f.configPath, "config", "c", "", "path to the YAML config file")
	fs.BoolVar(&f.watch, "watch", false, "reload the config file when it changes")
	fs.StringVar(&f.addr, "addr", ":8080", "HTTP listen address")
	fs.StringVar(&f.driver, "store", "leveldb", "event store: memory, leveldb, sqlite, postgres, redis, mongo")
	fs.StringVar(&f.dsn, "dsn", "data/events", "store path, URL or connection string")
	fs.StringVar(&f.database, "database", "nostr", "mongo database name")
	fs.StringVar(&f.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", "json", "json or text")
	fs.StringVar(&f.logFile, "log-file", "", "write logs to a rotated file instead of stderr")
	fs.BoolVar(&f.trustProxy, "trust-proxy", false, "take client addresses from X-Forwarded-For")
	fs.BoolVar(&f.showVersion, "version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return fs, &f, nil
}

// overlay applies explicitly set flags on top of the file settings.
func overlay(fs *pflag.FlagSet, f *flags, file *config.File) {
	if fs.Changed("addr") {
		file.Listen = f.addr
	}
	if fs.Changed("store") {
		file.Store.Driver = f.driver
	}
	if fs.Changed("dsn") {
		file.Store.DSN = f.dsn
	}
	if fs.Changed("database") {
		file.Store.Database = f.database
	}
	if fs.Changed("log-level") {
		file.Log.Level = f.logLevel
	}
	if fs.Changed("log-format") {
		file.Log.Format = f.logFormat
	}
	if fs.Changed("log-file") {
		file.Log.File = f.logFile
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, f, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if f.showVersion {
		fmt.Fprintln(stdout, "nostr-relay", version)
		return nil
	}

	var mgr *config.Manager
	file := config.Default()
	if f.configPath != "" {
		if mgr, err = config.NewManager(f.configPath); err != nil {
			return err
		}
		file = mgr.Current().File
	} else if f.watch {
		return errors.New("--watch needs --config")
	}
	overlay(fs, f, &file)
	if err := file.Validate(); err != nil {
		return err
	}
	file.Config = withInfoDefaults(file.Config)

	logger, closeLog, err := newLogger(file.Log, stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	if mgr != nil {
		mgr.SetLogger(logger)
	}

	st, err := openStore(ctx, file.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()
	if !file.Store.DisableMigrate {
		if err := st.Migrate(ctx); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r, err := relay.New(
		relay.WithStore(st),
		relay.WithConfig(file.Config),
		relay.WithLogger(logger),
		relay.WithMetrics(observability.NewMetrics(reg)),
		relay.WithTracer(observability.NewTracer()),
	)
	if err != nil {
		return err
	}

	h := api.NewHandler(r,
		api.WithLogger(logger),
		api.WithGatherer(reg),
		api.WithTrustProxy(f.trustProxy),
	)
	srv := &http.Server{
		Addr:              file.Listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("relay listening", "addr", file.Listen, "store", file.Store.Driver, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	if mgr != nil {
		mgr.SetApply(applyReload(r, logger))
		if f.watch {
			g.Go(func() error { return mgr.Watch(gctx) })
		}
		g.Go(func() error { return reloadOnHangup(gctx, mgr, logger) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		grace := r.Config().CloseGrace + 5*time.Second
		shutCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()

		r.Shutdown()
		if err := h.Close(shutCtx); err != nil {
			logger.Warn("sessions did not drain", "error", err)
		}
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// withInfoDefaults fills the NIP-11 software and version fields a config
// file leaves empty.
func withInfoDefaults(cfg relay.Config) relay.Config {
	if cfg.Info.Software == "" {
		cfg.Info.Software = "https://github.com/xraph/nostr-relay"
	}
	if cfg.Info.Version == "" {
		cfg.Info.Version = version
	}
	return cfg
}

// applyReload returns the config manager's apply callback for r.
func applyReload(r *relay.Relay, logger *slog.Logger) config.ApplyFunc {
	return func(cfg relay.Config) error {
		if err := r.UpdateConfig(withInfoDefaults(cfg)); err != nil {
			return err
		}
		logger.Info("relay config applied", "config_version", r.ConfigVersion())
		return nil
	}
}

// reloadOnHangup re-reads the config file on SIGHUP.
func reloadOnHangup(ctx context.Context, mgr *config.Manager, logger *slog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := mgr.Reload(); err != nil {
				logger.Error("config reload failed", "error", err)
			}
		}
	}
}
