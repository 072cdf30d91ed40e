package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/moltpoker/internal/auth"
	"github.com/lox/moltpoker/internal/config"
	"github.com/lox/moltpoker/internal/eventlog"
	"github.com/lox/moltpoker/internal/session"
	"github.com/lox/moltpoker/internal/stats"
	"github.com/lox/moltpoker/internal/store"
	"github.com/lox/moltpoker/internal/tablemgr"
	"github.com/lox/moltpoker/internal/timeout"
	"github.com/lox/moltpoker/internal/transport"
)

// CLI mirrors the teacher's cmd/server flag surface (kong struct tags,
// addr/debug/blind knobs) but defers most defaults to internal/config so the
// same settings can come from an HCL file or environment, per spec §6.
type CLI struct {
	Addr       string `kong:"help='Server bind address (overrides config and environment)'"`
	Debug      bool   `kong:"help='Enable debug logging'"`
	ConfigFile string `kong:"name='config',help='Path to an HCL config file'"`
	DBPath     string `kong:"name='db',help='Path to a sqlite database file; empty uses in-memory storage'"`
	PublicURL  string `kong:"help='Externally reachable base URL (defaults to http://<addr>)'"`
	Seed       string `kong:"help='Deterministic shuffle seed for the table created at startup (defaults to default-seed)'"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("moltpoker-server"),
		kong.Description("Server-authoritative No-Limit Hold'em table runtime for autonomous agents"),
		kong.UsageOnError(),
	)

	level := log.InfoLevel
	if cli.Debug {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{Level: level, ReportTimestamp: true})

	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		logger.Fatal("failed to load config", "err", err)
	}
	if cli.Addr != "" {
		cfg.Server.BindAddress = cli.Addr
	}

	var st store.Store
	var eventStore eventlog.Store = eventlog.NewMemory()
	if cli.DBPath != "" {
		sqliteStore, err := store.OpenSQLite(cli.DBPath)
		if err != nil {
			logger.Fatal("failed to open sqlite store", "err", err)
		}
		st = sqliteStore
		logger.Info("using sqlite store", "path", cli.DBPath)

		sqliteEvents, err := eventlog.OpenSQLiteStore(sqliteStore.DB())
		if err != nil {
			logger.Fatal("failed to open sqlite event store", "err", err)
		}
		eventStore = sqliteEvents
	} else {
		st = store.NewMemory()
		logger.Info("using in-memory store")
	}

	events := eventlog.New(eventStore)
	clock := timeout.New()

	sessions := session.New(time.Duration(cfg.Session.TTLSeconds) * time.Second)
	statsCollector := stats.New()

	tables := tablemgr.New(tablemgr.Options{
		MaxSeats:         cfg.Table.MaxSeats,
		SmallBlind:       cfg.Table.SmallBlind,
		BigBlind:         cfg.Table.BigBlind,
		InitialStack:     cfg.Table.InitialStack,
		ActionTimeoutMs:  cfg.Table.ActionTimeoutMs,
		AbandonmentGrace: time.Duration(cfg.Table.AbandonmentGraceMs) * time.Millisecond,
	}, events, st, clock, statsCollector, logger)

	// One table is provisioned at startup so agents have somewhere to join;
	// operators may add more via their own admin tooling against the Manager.
	seed := cli.Seed
	if seed == "" {
		seed = "default-seed"
	}
	if _, err := tables.Create(context.Background(), seed); err != nil {
		logger.Fatal("failed to create default table", "err", err)
	}

	var validator auth.Validator
	if cfg.Session.AuthURL != "" {
		validator = auth.NewHTTPValidator(cfg.Session.AuthURL)
	}

	publicURL := cli.PublicURL
	if publicURL == "" {
		publicURL = "http://" + toHostPort(cfg.Server.BindAddress)
	}
	wsURL := "ws://" + toHostPort(cfg.Server.BindAddress)

	a := &api{
		tables:      tables,
		sessions:    sessions,
		store:       st,
		stats:       statsCollector,
		validator:   validator,
		baseURL:     publicURL,
		wsBaseURL:   wsURL,
		skillDocURL: publicURL + "/skill.md",
		logger:      logger,
	}

	mux := http.NewServeMux()
	a.routes(mux)

	gw := transport.NewGateway(sessions, tables, logger)
	mux.Handle("/v1/ws", gw)

	srv := &http.Server{
		Addr:    cfg.Server.BindAddress,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.Server.BindAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-gctx.Done():
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}

	if err := g.Wait(); err != nil {
		kctx.FatalIfErrorf(err)
	}
}

// toHostPort turns a listen address like ":8080" into a dialable host:port
// for templating ws/http URLs, the way the teacher's toWSURL/toHTTPBase
// helpers do in cmd/server/main.go.
func toHostPort(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
