package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"arbvault/config"
	"arbvault/core"
	"arbvault/native/common"
	"arbvault/native/router"
	"arbvault/native/vault"
	"arbvault/observability/audit"
	"arbvault/observability/logging"
	telemetry "arbvault/observability/otel"
	"arbvault/services/vaultd/server"
	"arbvault/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "vaultd.toml", "path to vaultd configuration file (.toml, .yaml)")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		slog.Error("vaultd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := []logging.Option{logging.WithLevel(logging.ParseLevel(cfg.LogLevel))}
	if cfg.LogFile != "" {
		opts = append(opts, logging.WithFile(cfg.LogFile, 100, 5))
	}
	logger := logging.Setup("vaultd", cfg.Environment, opts...)
	logger.Info("configuration loaded",
		slog.String("config", cfgPath),
		slog.String("listen", cfg.ListenAddress),
		slog.String("dataDir", cfg.DataDir),
		logging.MaskField("jwtSecret", cfg.Auth.JWTSecret))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "vaultd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Traces:      cfg.Telemetry.Traces,
			Metrics:     cfg.Telemetry.Metrics,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			_ = shutdownTelemetry(context.Background())
		}()
	}

	lg, err := openLedger(cfg, logger)
	if err != nil {
		return err
	}
	defer lg.Close()
	if err := bootstrap(ctx, cfg, lg.node, logger); err != nil {
		return err
	}

	auth, err := server.NewAuthenticator(server.AuthConfig{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.Issuer}, logger)
	if err != nil {
		return err
	}
	srv, err := server.New(server.Config{
		ListenAddress:   cfg.ListenAddress,
		ShutdownTimeout: cfg.ShutdownTimeout.Duration,
		RateLimit: server.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
			TrustedProxies:    cfg.RateLimit.TrustedProxies,
		},
	}, lg.node, lg.journal, auth, logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// ledger is the persistent state of one vaultd process.
type ledger struct {
	db      *storage.LevelDB
	journal *audit.Journal
	runtime *core.Runtime
	node    *core.Node
}

// openLedger opens the state and audit databases under cfg.DataDir, applies
// genesis on an empty database and wires the node over the result.
func openLedger(cfg *config.Config, logger *slog.Logger) (*ledger, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	journalStore, err := audit.NewLevelDBStore(filepath.Join(cfg.DataDir, "audit"))
	if err != nil {
		db.Close()
		return nil, err
	}
	l := &ledger{db: db}
	fail := func(err error) (*ledger, error) {
		_ = journalStore.Close()
		db.Close()
		return nil, err
	}
	if l.journal, err = audit.NewJournal(journalStore, logger); err != nil {
		return fail(err)
	}
	if l.runtime, err = core.NewRuntime(db, l.journal); err != nil {
		return fail(err)
	}
	if err := l.runtime.Genesis(cfg.GenesisSpec()); err == nil {
		logger.Info("genesis applied", slog.String("root", l.runtime.Head().Root.Hex()))
	} else if !errors.Is(err, core.ErrGenesisApplied) {
		return fail(err)
	}
	if l.node, err = buildNode(cfg, l.runtime, logger); err != nil {
		return fail(err)
	}
	return l, nil
}

func (l *ledger) Close() error {
	err := l.journal.Close()
	l.db.Close()
	return err
}

func buildNode(cfg *config.Config, runtime *core.Runtime, logger *slog.Logger) (*core.Node, error) {
	ids, err := cfg.Identities()
	if err != nil {
		return nil, err
	}
	venues, strategies, err := cfg.VenueTable()
	if err != nil {
		return nil, err
	}
	return core.NewNode(runtime, core.NodeConfig{
		RouterProgram: ids.RouterProgram,
		VaultProgram:  ids.VaultProgram,
		Venues:        venues,
		Params:        cfg.RouterParams(),
		Strategies:    strategies,
		PausedModules: cfg.Paused(),
	}, logger)
}

// bootstrap initialises the router and vault on first start when the
// configuration names their authorities. Paused modules are left as they are.
func bootstrap(ctx context.Context, cfg *config.Config, node *core.Node, logger *slog.Logger) error {
	ids, err := cfg.Identities()
	if err != nil {
		return err
	}
	paused := common.NewPausedSet(cfg.Paused()...)
	for _, module := range []string{router.ModuleName, vault.ModuleName} {
		if paused.IsPaused(module) {
			logger.Warn("bootstrap skipped paused module", slog.String("module", module))
		}
	}
	if !ids.RouterAuthority.IsZero() && !paused.IsPaused(router.ModuleName) {
		_, err := node.InitializeRouter(ctx, ids.RouterAuthority, cfg.Router.FeeRateBps, ids.FeeCollector)
		switch {
		case err == nil:
			logger.Info("router initialized", slog.String("authority", ids.RouterAuthority.String()))
		case errors.Is(err, router.ErrAlreadyInitialized):
		default:
			return fmt.Errorf("initialize router: %w", err)
		}
	}
	if !ids.VaultAuthority.IsZero() && !paused.IsPaused(vault.ModuleName) {
		_, err := node.InitializeVault(ctx, ids.VaultAuthority, ids.RouterProgram, cfg.Vault.Asset)
		switch {
		case err == nil:
			logger.Info("vault initialized",
				slog.String("authority", ids.VaultAuthority.String()),
				slog.String("account", node.Vault().Account().String()))
		case errors.Is(err, vault.ErrAlreadyInitialized):
		default:
			return fmt.Errorf("initialize vault: %w", err)
		}
	}
	return nil
}
