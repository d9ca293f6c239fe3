package main

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/supershop/internal/config"
	domanalysis "github.com/Zhima-Mochi/supershop/internal/domain/analysis"
	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
	"github.com/Zhima-Mochi/supershop/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/supershop/internal/domain/order"
	"github.com/Zhima-Mochi/supershop/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/supershop/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/supershop/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/supershop/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/supershop/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/supershop/internal/infrastructure/sqlstore"
	"github.com/Zhima-Mochi/supershop/internal/observability"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const connectTimeout = 10 * time.Second

// storage is everything the use cases need from the storage collaborator.
type storage interface {
	domorder.UnitOfWork
	catalog.Reader
	domanalysis.Reader
	inventory.Adjuster
}

// runtime holds the process-wide collaborators shared by every command.
type runtime struct {
	cfg      *config.Config
	logger   *zaplogger.Logger
	system   observability.Logger
	registry *prometheus.Registry
	tel      observability.Observability
	store    storage
	closers  []func() error
}

func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := config.Load(c.String("config"), c.StringSlice("env-file")...)
	if err != nil {
		return nil, err
	}

	logger, err := zaplogger.New(zaplogger.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
		Fields: []observability.Field{
			observability.F("service", cfg.Service),
			observability.F("env", cfg.Env),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counters, histograms := prometrics.Standard(prometrics.New(reg, "", ""))

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		system:   logger.With(observability.F("component", "system")),
		registry: reg,
		tel:      infraobs.New(oteltrace.New(cfg.Service), logger, counters, histograms),
		closers:  []func() error{logger.Sync},
	}

	ctx, cancel := context.WithTimeout(c.Context, connectTimeout)
	defer cancel()
	if err := rt.openStore(ctx); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context) error {
	db := rt.cfg.Database
	if db.Driver == config.DriverMemory {
		store := memory.NewStore()
		seedDemoCatalog(store)
		rt.store = store
		rt.system.Warn("storage_in_memory",
			observability.F("products", len(demoCatalog)),
		)
		return nil
	}

	store, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:          db.Driver,
		DSN:             db.DSN,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	rt.store = store
	rt.closers = append(rt.closers, store.Close)
	rt.system.Info("storage_connected", observability.F("driver", db.Driver))
	return nil
}

// close releases resources in reverse order of acquisition.
func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
}

var demoCatalog = []catalog.Product{
	{ID: 1, Name: "Espresso Beans 1kg", Price: decimal.RequireFromString("24.90"), Stock: 40, CategoryID: 1, Category: "Coffee"},
	{ID: 2, Name: "Milk Frother", Price: decimal.RequireFromString("39.00"), Stock: 12, CategoryID: 2, Category: "Equipment"},
	{ID: 3, Name: "Ceramic Cup", Price: decimal.RequireFromString("8.50"), Stock: 60, CategoryID: 2, Category: "Equipment"},
	{ID: 4, Name: "Oat Milk 1l", Price: decimal.RequireFromString("2.80"), Stock: 100, CategoryID: 3, Category: "Dairy-free"},
	{ID: 5, Name: "Descaler", Price: decimal.RequireFromString("11.20"), Stock: 8, CategoryID: 4, Category: "Care"},
}

func seedDemoCatalog(s *memory.Store) {
	for _, p := range demoCatalog {
		s.PutProduct(p)
	}
}
