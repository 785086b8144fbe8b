// Package app assembles the enrollment backend from configuration.  The
// HTTP server and the enrollctl operator tool share the same wiring so a
// manual sweep or reconcile behaves exactly like the running service.
package app

import (
    "context"
    "database/sql"
    "fmt"
    "log"
    "time"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/lingua-enrollment/internal/config"
    "github.com/iliyamo/lingua-enrollment/internal/database"
    "github.com/iliyamo/lingua-enrollment/internal/handler"
    "github.com/iliyamo/lingua-enrollment/internal/middleware"
    "github.com/iliyamo/lingua-enrollment/internal/payment"
    "github.com/iliyamo/lingua-enrollment/internal/queue"
    "github.com/iliyamo/lingua-enrollment/internal/repository"
    "github.com/iliyamo/lingua-enrollment/internal/router"
    "github.com/iliyamo/lingua-enrollment/internal/service"
    "github.com/iliyamo/lingua-enrollment/internal/utils"
)

// App holds the long-lived collaborators of one process.
type App struct {
    Config config.Config
    DB     *sql.DB
    Redis  *redis.Client // nil when Redis is unreachable

    Ledger    *repository.ReservationRepo
    Teachers  *repository.TeacherRepo
    Timeslots *repository.TimeslotRepo
    Checkouts *repository.CheckoutRepo
    Events    *repository.PaymentEventRepo
    Publisher *queue.Publisher
    Processor payment.Processor

    Holds      *service.HoldService
    Checkout   *service.CheckoutService
    Reconciler *service.Reconciler
    Catalog    *service.CatalogService
    Admin      *service.AdminService
    Sweeper    *service.Sweeper
}

// New opens MySQL and Redis and builds every service.  With migrate set the
// schema is applied before anything else touches the database.
func New(ctx context.Context, cfg config.Config, migrate bool) (*App, error) {
    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        return nil, fmt.Errorf("open database: %w", err)
    }
    if migrate {
        if err := database.Migrate(ctx, db); err != nil {
            _ = db.Close()
            return nil, fmt.Errorf("migrate: %w", err)
        }
    }

    a := &App{
        Config:    cfg,
        DB:        db,
        Redis:     config.NewRedisClient(),
        Ledger:    repository.NewReservationRepo(db),
        Teachers:  repository.NewTeacherRepo(db),
        Timeslots: repository.NewTimeslotRepo(db),
        Checkouts: repository.NewCheckoutRepo(db),
        Events:    repository.NewPaymentEventRepo(db),
        Publisher: queue.NewPublisher(cfg.RabbitURL),
        Processor: payment.NewMidtransProcessor(cfg.MidtransServerKey, cfg.MidtransProduction),
    }

    a.Holds = service.NewHoldService(a.Ledger, service.WithHoldTTL(cfg.HoldDuration))
    a.Checkout = service.NewCheckoutService(a.Holds, a.Ledger, a.Checkouts, a.Processor, service.CheckoutSettings{
        Currency: cfg.Currency,
        ReturnURLs: payment.ReturnURLs{
            Success: cfg.CheckoutFinishURL,
            Failure: cfg.CheckoutFinishURL,
            Pending: cfg.CheckoutFinishURL,
        },
    })
    a.Reconciler = service.NewReconciler(a.Ledger, a.Processor,
        service.WithCheckoutStore(a.Checkouts),
        service.WithEventLog(a.Events),
        service.WithProcessedStore(repository.NewProcessedCache(a.Redis, cfg.WebhookDedupTTL)),
        service.WithNotifier(a.Publisher),
        service.WithSignatureKey(cfg.MidtransServerKey),
    )
    a.Catalog = service.NewCatalogService(a.Timeslots, a.Teachers)
    a.Admin = service.NewAdminService(a.Teachers, a.Timeslots, a.Ledger, cfg.HoldDuration)
    a.Sweeper = service.NewSweeper(a.Ledger, cfg.SweepInterval, time.Now).
        WithRelay(a.Reconciler.RedeliverAnnouncements)
    return a, nil
}

// HTTP builds the echo instance with every route registered.  The admin
// key is hashed once here so requests only pay for a bcrypt compare.
func (a *App) HTTP() (*echo.Echo, error) {
    keyHash, err := utils.HashSecret(a.Config.AdminKey, a.Config.BcryptCost)
    if err != nil {
        return nil, fmt.Errorf("hash admin key: %w", err)
    }

    e := echo.New()
    e.HideBanner = true
    e.Validator = handler.NewRequestValidator()
    e.Use(echomw.Logger())
    e.Use(echomw.Recover())

    router.RegisterRoutes(e, a.DB)
    router.RegisterPublic(e,
        handler.NewCatalogHandler(a.Catalog),
        middleware.NewRedisCache(config.LoadCacheConfig(), a.Redis))
    router.RegisterStudent(e,
        handler.NewEnrollmentHandler(a.Holds, a.Checkout),
        middleware.NewTokenBucket(config.LoadRateLimitConfig(), a.Redis))
    router.RegisterWebhook(e, handler.NewWebhookHandler(a.Reconciler))
    router.RegisterAdmin(e,
        handler.NewAdminHandler(a.Admin, a.Config.JWTSecret, a.Config.AdminTokenTTLMin),
        middleware.AdminAuth(keyHash, a.Config.JWTSecret))
    return e, nil
}

// Consumer returns the confirmation event consumer for the configured
// broker.
func (a *App) Consumer() *queue.Consumer {
    return queue.NewConsumer(a.Config.RabbitURL)
}

// Close releases the database and Redis connections.
func (a *App) Close() {
    if a.Redis != nil {
        if err := a.Redis.Close(); err != nil {
            log.Printf("app: close redis: %v", err)
        }
    }
    if err := a.DB.Close(); err != nil {
        log.Printf("app: close database: %v", err)
    }
}

// SweepOnce runs a single sweeper tick.
func (a *App) SweepOnce(ctx context.Context) (int64, error) {
    return a.Sweeper.RunOnce(ctx)
}

// RedeliverAnnouncements republishes confirmation events that never
// reached the broker.
func (a *App) RedeliverAnnouncements(ctx context.Context) (int, error) {
    return a.Reconciler.RedeliverAnnouncements(ctx)
}

// ReconcilePayment re-drives reconciliation for one payment id.
func (a *App) ReconcilePayment(ctx context.Context, paymentID string) (service.ReconcileResult, error) {
    return a.Reconciler.ReconcilePayment(ctx, paymentID)
}
