package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/armon/go-metrics"
	"github.com/ethereum/go-ethereum/crypto"
	"gorm.io/gorm"

	"github.com/jdziat/agent-escrow/pkg/admin"
	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/directory"
	"github.com/jdziat/agent-escrow/pkg/ledger"
	"github.com/jdziat/agent-escrow/pkg/oracle"
	"github.com/jdziat/agent-escrow/pkg/resolver"
	"github.com/jdziat/agent-escrow/pkg/settlement"
	"github.com/jdziat/agent-escrow/pkg/storage"
	"github.com/jdziat/agent-escrow/pkg/telemetry"
)

// app is the daemon's wired object graph.
type app struct {
	cfg       Config
	logger    *slog.Logger
	db        *gorm.DB
	storage   *storage.GormStorage
	directory *directory.Gorm
	simulator *oracle.Simulator
	ledger    *ledger.Ledger
	resolver  *resolver.Resolver
	bank      *settlement.BookBank
	settler   *settlement.Settler
	admin     *admin.Admin
	sink      *metrics.InmemSink
}

func openApp(ctx context.Context, cfg Config, log *slog.Logger) (*app, error) {
	db, err := openDB(cfg.Database, log)
	if err != nil {
		return nil, err
	}

	store := storage.NewGormStorage(db)
	dir := directory.NewGorm(db)
	bank := settlement.NewBookBank(db)
	for _, m := range []interface{ Migrate(context.Context) error }{store, dir, bank} {
		if err := m.Migrate(ctx); err != nil {
			storage.Close(db)
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	recorder, sink, err := telemetry.NewInmem(cfg.metricsInterval(), 6*cfg.metricsInterval())
	if err != nil {
		storage.Close(db)
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    log,
		db:        db,
		storage:   store,
		directory: dir,
		bank:      bank,
		sink:      sink,
	}

	var submitter core.Oracle
	switch cfg.Oracle.Mode {
	case "simulator":
		key, err := loadOrCreateKey(cfg.Oracle.RouterKey)
		if err != nil {
			storage.Close(db)
			return nil, err
		}
		a.simulator = oracle.NewSimulator(key)
		submitter = a.simulator
	case "http":
		submitter = oracle.NewHTTPClient(cfg.Oracle.GatewayURL, oracle.WithAPIKey(cfg.Oracle.APIKey))
	}

	a.ledger = ledger.New(store, dir, submitter, bank,
		ledger.WithLogger(log),
		ledger.WithMetrics(recorder))
	a.settler = settlement.NewSettler(a.ledger, bank, settlement.WithLogger(log))
	a.resolver = resolver.New(a.ledger, resolver.WithSettler(a.settler))
	a.admin = admin.New(a.ledger)

	if a.simulator != nil {
		a.simulator.SetCallback(a.resolver.Callback)
		if out := cfg.Oracle.SimulateOutput; out != "" {
			a.ledger.OnJobCreated(func(_ context.Context, job *core.Job) {
				go func() {
					if err := a.simulator.Fulfill(context.Background(), job.RequestHandle, out); err != nil {
						log.Warn("simulated fulfillment failed", "request_handle", job.RequestHandle, "error", err)
					}
				}()
			})
		}
	}
	return a, nil
}

func (a *app) Close() {
	storage.Close(a.db)
}

func openDB(cfg DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	var opts []storage.PoolOption
	if cfg.MaxOpenConns > 0 && cfg.Driver != storage.DriverSQLite {
		opts = append(opts, storage.MaxOpenConns(cfg.MaxOpenConns))
	}
	verbose := log.Enabled(context.Background(), slog.LevelDebug)
	return storage.Open(cfg.Driver, cfg.DSN, verbose, opts...)
}

func loadKey(path string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", path, err)
	}
	return key, nil
}

// loadOrCreateKey loads the key at path, generating it on first use.
func loadOrCreateKey(path string) (*ecdsa.PrivateKey, error) {
	if _, err := os.Stat(path); err == nil {
		return loadKey(path)
	}
	return newKeyFile(path)
}

func newKeyFile(path string) (*ecdsa.PrivateKey, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveECDSA(path, key); err != nil {
		return nil, fmt.Errorf("save key %s: %w", path, err)
	}
	return key, nil
}
