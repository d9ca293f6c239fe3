package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	appanalysis "github.com/Zhima-Mochi/supershop/internal/application/analysis"
	appinv "github.com/Zhima-Mochi/supershop/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/supershop/internal/application/order"
	"github.com/Zhima-Mochi/supershop/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/supershop/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/supershop/internal/infrastructure/redisstore"
	"github.com/Zhima-Mochi/supershop/internal/observability"
	httppresentation "github.com/Zhima-Mochi/supershop/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/supershop/internal/presentation/worker"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

func main() {
	app := &cli.App{
		Name:  "supershop",
		Usage: "storefront inventory ledger and co-purchase analytics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"CONFIG_FILE"},
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "dotenv files loaded before reading the environment",
				Value: cli.NewStringSlice(".env"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the order-placed worker",
				Action: serve,
			},
			{
				Name:   "associations",
				Usage:  "print the global co-purchase matrix",
				Action: printAssociations,
			},
			{
				Name:      "product-analysis",
				Usage:     "print the analysis of one product",
				ArgsUsage: "<product-id>",
				Action:    printProductAnalysis,
			},
			{
				Name:   "sales-overview",
				Usage:  "print best sellers and store totals",
				Action: printSalesOverview,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	idem, err := rt.idempotencyStore(ctx)
	if err != nil {
		return err
	}

	cfg := rt.cfg
	bus := outbox.NewBus(rt.logger, rt.tel, outbox.Options{
		QueueSize:      cfg.Outbox.QueueSize,
		Concurrency:    cfg.Outbox.Concurrency,
		HandlerTimeout: cfg.Outbox.HandlerTimeout,
	})
	worker := apporder.NewWorker(workerpresentation.NewSubscriber(bus, rt.logger, rt.tel), rt.tel, cfg.Orders.LowStockThreshold)
	worker.Start()
	bus.Start(ctx)

	placeOrder := apporder.NewPlaceOrderUseCase(rt.store, idem, bus, rt.tel, apporder.Options{TxTimeout: cfg.Database.TxTimeout})
	adjustStock := appinv.NewAdjustStockUseCase(rt.store, rt.tel)
	analysis := appanalysis.NewService(rt.store, rt.store, rt.tel)

	handler := httppresentation.NewHandler(placeOrder, adjustStock, analysis,
		promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}), rt.logger, rt.tel)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.system.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			rt.system.Error("http_server_shutdown_error", observability.F("error", err))
		} else {
			rt.system.Info("http_server_stopped")
		}
		bus.Stop(shutdownCtx)
		return err
	})
	return g.Wait()
}

// idempotencyStore shares keys across instances through Redis when configured.
func (rt *runtime) idempotencyStore(ctx context.Context) (apporder.IdempotencyStore, error) {
	orders := rt.cfg.Orders
	if rt.cfg.Redis.URL == "" {
		return memory.NewIdempotencyStore(orders.IdempotencyTTL, orders.PendingTTL), nil
	}
	client, err := redisstore.NewClient(ctx, redisstore.Config{
		URL:          rt.cfg.Redis.URL,
		DialTimeout:  rt.cfg.Redis.DialTimeout,
		ReadTimeout:  rt.cfg.Redis.ReadTimeout,
		WriteTimeout: rt.cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, client.Close)
	rt.system.Info("idempotency_redis_connected")
	return redisstore.NewIdempotencyStore(client, orders.IdempotencyTTL, orders.PendingTTL), nil
}

func printAssociations(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.close()

	res, err := appanalysis.NewService(rt.store, rt.store, rt.tel).GlobalAssociations(c.Context)
	if err != nil {
		return err
	}
	return writeReport(c, map[string]any{"associations": res.Associations})
}

func printProductAnalysis(c *cli.Context) error {
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return cli.Exit("product-analysis needs a positive product id", 2)
	}

	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.close()

	res, err := appanalysis.NewService(rt.store, rt.store, rt.tel).ProductAnalysis(c.Context, id)
	if err != nil {
		return err
	}

	related := make([]map[string]any, len(res.Associated))
	for i, a := range res.Associated {
		related[i] = map[string]any{
			"id":         a.ProductID,
			"name":       a.Name,
			"count":      a.Count,
			"percentage": a.Percentage,
		}
	}
	trend := make([]map[string]any, len(res.Trend))
	for i, p := range res.Trend {
		trend[i] = map[string]any{"month": p.Month, "sold": p.Sold, "revenue": p.Revenue.StringFixed(2)}
	}
	return writeReport(c, map[string]any{
		"product": map[string]any{"id": res.Product.ID, "name": res.Product.Name, "stock": res.Product.Stock},
		"stats": map[string]any{
			"total_orders":           res.Stats.TotalOrders,
			"total_sold":             res.Stats.TotalSold,
			"total_revenue":          res.Stats.TotalRevenue.StringFixed(2),
			"avg_quantity_per_order": res.Stats.AvgQuantityPerOrder.StringFixed(2),
		},
		"associated":    related,
		"monthly_trend": trend,
	})
}

func printSalesOverview(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.close()

	res, err := appanalysis.NewService(rt.store, rt.store, rt.tel).SalesOverview(c.Context)
	if err != nil {
		return err
	}

	top := make([]map[string]any, len(res.TopProducts))
	for i, p := range res.TopProducts {
		top[i] = map[string]any{
			"id":         p.ProductID,
			"name":       p.Name,
			"total_sold": p.TotalSold,
			"revenue":    p.Revenue.StringFixed(2),
		}
	}
	return writeReport(c, map[string]any{
		"top_products": top,
		"totals": map[string]any{
			"products": res.Totals.Products,
			"orders":   res.Totals.Orders,
			"revenue":  res.Totals.Revenue.StringFixed(2),
			"stock":    res.Totals.Stock,
		},
	})
}

func writeReport(c *cli.Context, report any) error {
	enc := yaml.NewEncoder(c.App.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return errors.Wrap(err, "write report")
	}
	return enc.Close()
}
