package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	appCatalog "github.com/Zhima-Mochi/modushop/internal/application/catalog"
	appInventory "github.com/Zhima-Mochi/modushop/internal/application/inventory"
	domainCatalog "github.com/Zhima-Mochi/modushop/internal/domain/catalog"
	domainInventory "github.com/Zhima-Mochi/modushop/internal/domain/inventory"
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/eventbus"
	"github.com/Zhima-Mochi/modushop/internal/infrastructure/sqlstore"
	"github.com/Zhima-Mochi/modushop/internal/observability"
	httppresentation "github.com/Zhima-Mochi/modushop/internal/presentation/http"
)

type Config struct {
	ServiceName      string
	Env              string
	HTTPAddr         string
	DBPath           string
	RecoveryInterval time.Duration
}

// App wires the durable bus, the business modules, and the HTTP layer over
// one SQLite database. Construction registers every event type and listener;
// call Recover before serving traffic so envelopes from a previous run are
// replayed first.
type App struct {
	cfg Config
	db  *sql.DB

	Bus       *eventbus.Bus
	Scanner   *eventbus.Scanner
	Catalog   *appCatalog.Service
	Inventory *appInventory.Service

	handler http.Handler
	log     observability.Logger
}

func New(cfg Config, logger observability.Logger, tel observability.Telemetry) (*App, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if tel == nil {
		tel = observability.NopTelemetry()
	}

	db, err := sqlstore.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	eventLog, err := sqlstore.NewEventLog(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	catalogRepo, err := sqlstore.NewCatalogRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	inventoryRepo, err := sqlstore.NewInventoryRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	runner := sqlstore.NewTxRunner(db)

	bus, err := eventbus.New(eventLog,
		eventbus.WithLogger(logger),
		eventbus.WithTelemetry(tel),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := eventbus.RegisterType[domainCatalog.ProductCreatedEvent](bus); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: register event types: %w", err)
	}
	if err := eventbus.RegisterType[domainInventory.QuantityChangedEvent](bus); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: register event types: %w", err)
	}

	catalogSvc := appCatalog.NewService(catalogRepo, runner, bus, tel)
	inventorySvc := appInventory.NewService(inventoryRepo, runner, bus, tel)

	if err := appCatalog.NewWorker(catalogSvc).Register(bus); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: register listeners: %w", err)
	}
	if err := appInventory.NewWorker(inventorySvc).Register(bus); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: register listeners: %w", err)
	}

	scanner, err := eventbus.NewScanner(bus)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &App{
		cfg:       cfg,
		db:        db,
		Bus:       bus,
		Scanner:   scanner,
		Catalog:   catalogSvc,
		Inventory: inventorySvc,
		handler:   httppresentation.NewHandler(catalogSvc, inventorySvc, logger, tel).Router(),
		log:       logger.With(observability.F("component", "app")),
	}, nil
}

// Recover replays envelopes left pending by a previous run. A failure to
// read the log is returned so startup can abort instead of serving with an
// unrecovered backlog.
func (a *App) Recover(ctx context.Context) error {
	result, err := a.Scanner.Recover(ctx)
	if err != nil {
		return err
	}
	a.log.Info("startup_recovery_done",
		observability.F("scanned", result.Scanned),
		observability.F("delivered", result.Delivered),
		observability.F("still_failed", result.StillFailed),
	)
	return nil
}

// Seed inserts demo catalog data on an empty database.
func (a *App) Seed(ctx context.Context) error {
	return a.Catalog.Seed(ctx)
}

func (a *App) Router() http.Handler { return a.handler }

func (a *App) Close() error { return a.db.Close() }
