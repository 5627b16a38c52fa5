package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tienda/internal/checkout"
	"tienda/internal/config"
	"tienda/internal/handlers"
	"tienda/internal/repositories"
	"tienda/internal/services"
	"tienda/pkg/criptoya"
	applog "tienda/pkg/logger"
	"tienda/pkg/mercadopago"
	"tienda/pkg/rabbitmq"

	"github.com/spf13/viper"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// --- Configuration ---
	cfg, err := config.Load(viper.New())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lg, err := applog.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Error("Server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Server gracefully stopped")
}

func run(ctx context.Context, cfg *config.Config, lg *zap.Logger) error {
	// --- Repositories ---
	orderRepo, err := openOrderRepository(cfg)
	if err != nil {
		return err
	}
	catalogRepo, err := repositories.NewStaticCatalogRepository(repositories.SeedProducts())
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	sessionRepo := repositories.NewInMemoryCheckoutSessionRepository()

	// --- External clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	quotes := criptoya.NewClient(criptoya.Config{URL: cfg.CriptoYaURL, Market: cfg.CriptoYaMarket}, httpClient)
	processor := mercadopago.NewClient(mercadopago.Config{
		BaseURL:     cfg.MercadoPagoURL,
		AccessToken: cfg.MercadoPagoAccessToken,
		Sandbox:     cfg.MercadoPagoSandbox,
	}, httpClient)

	// RabbitMQ is optional; orders are still taken when it is down
	var publisher services.EventPublisher
	if cfg.RabbitMQURL != "" {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{
			URL:      cfg.RabbitMQURL,
			Exchange: cfg.RabbitMQExchange,
			Queue:    cfg.RabbitMQQueue,
		}, lg.Named("rabbitmq"))
		if err != nil {
			lg.Warn("Order events disabled", zap.Error(err))
		} else {
			defer mqClient.Close()
			publisher = mqClient
			if err := mqClient.ConsumeOrderEvents(logOrderEvent(lg.Named("order-events"))); err != nil {
				lg.Warn("Failed to start order event consumer", zap.Error(err))
			}
		}
	}

	// --- Services ---
	rateService := services.NewRateService(quotes, cfg.RateFallback, cfg.RateRefresh, lg.Named("rates"))
	orderService := services.NewOrderService(orderRepo, rateService, publisher, lg.Named("orders"))
	orderService.SetCompensationPolicy(services.CompensationPolicy{
		Attempts:  cfg.CompensationAttempts,
		BaseDelay: cfg.CompensationBackoff,
	})
	tokens := services.NewNotificationTokenService(cfg.NotificationSecret, cfg.NotificationTokenTTL)
	paymentService := services.NewPaymentService(orderService, processor, tokens, cfg.BaseURL, cfg.Currency, lg.Named("payments"))
	checkoutService := services.NewCheckoutService(
		sessionRepo,
		catalogRepo,
		rateService,
		orderService,
		paymentService,
		checkout.NewDetailsValidator(cfg.StoreTimezone),
		lg.Named("checkout"),
	)

	// --- HTTP ---
	app := newApp(lg,
		handlers.NewCatalogHandler(services.NewCatalogService(catalogRepo), lg),
		handlers.NewExchangeRateHandler(rateService),
		handlers.NewOrderHandler(orderService, lg),
		handlers.NewPaymentHandler(paymentService, tokens, lg),
		handlers.NewCheckoutHandler(checkoutService, lg),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rateService.Run(gctx)
		return nil
	})
	g.Go(func() error {
		checkoutService.RunPruner(gctx, cfg.SessionPruneInterval, cfg.SessionMaxAge)
		return nil
	})
	g.Go(func() error {
		lg.Info("Starting server", zap.String("addr", cfg.AppPort), zap.String("database", cfg.DatabaseDriver))
		if err := app.Listen(cfg.AppPort); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("Shutting down server...")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	return g.Wait()
}

// routeRegistrar is implemented by every handler.
type routeRegistrar interface {
	RegisterRoutes(router fiber.Router)
}

// newApp builds the Fiber app with the middleware stack, the health check
// and the handlers grouped under /api/v1.
func newApp(lg *zap.Logger, routes ...routeRegistrar) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "tienda",
		DisableStartupMessage: true,
	})

	// --- Middleware ---
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			lg.Error("Recovered from panic", zap.String("path", c.Path()), zap.Any("panic", e), zap.Stack("stack"))
		},
	}))
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	// --- Health Check Endpoint ---
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// --- API Routes ---
	apiV1 := app.Group("/api/v1")
	for _, r := range routes {
		r.RegisterRoutes(apiV1)
	}
	return app
}

// openOrderRepository selects the order store configured by DATABASE_DRIVER.
func openOrderRepository(cfg *config.Config) (repositories.OrderRepository, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case config.DriverMemory:
		return repositories.NewInMemoryOrderRepository(), nil
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DatabaseDSN)
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repositories.AutoMigrate(db); err != nil {
		return nil, err
	}
	return repositories.NewGORMOrderRepository(db), nil
}

// logOrderEvent records every order event read back from the queue.
func logOrderEvent(lg *zap.Logger) func(amqp.Delivery) error {
	return func(msg amqp.Delivery) error {
		var event services.OrderEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			return fmt.Errorf("malformed order event: %w", err)
		}
		lg.Info("Order event",
			zap.String("routing_key", msg.RoutingKey),
			zap.String("order_id", event.OrderID),
			zap.String("status", string(event.Status)),
			zap.String("previous_status", string(event.PreviousStatus)),
			zap.String("total", event.Total.String()),
		)
		return nil
	}
}
