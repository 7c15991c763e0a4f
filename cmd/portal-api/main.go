// cmd/portal-api/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	commonaws "eservices-portal/internal/common/aws"

	"eservices-portal/internal/api"
	"eservices-portal/internal/assignment"
	"eservices-portal/internal/audit"
	"eservices-portal/internal/common/auth"
	"eservices-portal/internal/common/config"
	"eservices-portal/internal/common/database"
	"eservices-portal/internal/common/logger"
	"eservices-portal/internal/common/observability"
	"eservices-portal/internal/models"
	"eservices-portal/internal/notify"
	"eservices-portal/internal/services"
	"eservices-portal/internal/stats"
	"eservices-portal/internal/store"
	"eservices-portal/internal/workflow"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting portal API...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs := observability.New("portal-api")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init MongoDB with retry ---
	var mongoClient *database.MongoClient
	err = retryWithBackoff(func() error {
		var err error
		mongoClient, err = database.NewMongo(ctx, cfg.Database.Mongo)
		if err != nil {
			return err
		}
		return mongoClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "MongoDB connection")

	if err != nil {
		zapLog.Fatal("mongo failed after retries", zap.Error(err))
	}
	defer mongoClient.Close(ctx)
	zapLog.Info("MongoDB connected successfully")

	recordStore := store.NewMongoStore(mongoClient.Database)
	if err := recordStore.EnsureIndexes(ctx); err != nil {
		zapLog.Fatal("index creation failed", zap.Error(err))
	}

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Service catalog ---
	catalog, err := services.LoadCatalog(cfg.Services.CatalogPath)
	if err != nil {
		zapLog.Fatal("service catalog load failed", zap.Error(err))
	}
	zapLog.Info("Service catalog loaded", zap.Strings("types", catalog.Types()))

	// --- Notification channels ---
	var sesClient *commonaws.SESClient
	var snsClient *commonaws.SNSClient
	if cfg.Notifications.Email.Enabled {
		sesClient, err = commonaws.NewSESClient(ctx, cfg.Notifications.AWS.Region, cfg.Notifications.Email.FromEmail)
		if err != nil {
			zapLog.Fatal("SES client failed", zap.Error(err))
		}
	}
	if cfg.Notifications.SMS.Enabled {
		snsClient, err = commonaws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("SNS client failed", zap.Error(err))
		}
	}

	dispatcher := notify.NewDispatcher(recordStore,
		&notify.SQLContactResolver{DB: pg.DB},
		sesClient, snsClient,
		notify.Config{
			EmailEnabled: cfg.Notifications.Email.Enabled,
			SMSEnabled:   cfg.Notifications.SMS.Enabled,
			SMSThreshold: cfg.Notifications.SMS.PriorityThreshold,
		}, log)

	trail := audit.NewTrail(recordStore, log)
	aggregator := stats.NewAggregator(redisClient.Client, recordStore, log)

	// --- Workflow engine with post-commit hooks ---
	engine := workflow.NewEngine(recordStore, catalog, log,
		workflow.Hook{Name: "audit", Run: func(ctx context.Context, ev workflow.Event) error {
			action := models.ActionStatusChanged
			if ev.FromStatus == "" {
				action = models.ActionApplicationSubmitted
			}
			trail.Record(ctx, action, ev.ActorID, models.ResourceApplication, ev.Application.ID,
				map[string]interface{}{"from": ev.FromStatus, "to": ev.ToStatus, "remarks": ev.Remarks}, true)
			return nil
		}},
		workflow.Hook{Name: "notify", Run: func(ctx context.Context, ev workflow.Event) error {
			title := "Application status updated"
			message := fmt.Sprintf("Your application %s is now %s", ev.Application.ID, ev.ToStatus)
			if ev.FromStatus == "" {
				title = "Application received"
				message = fmt.Sprintf("Your application %s has been submitted", ev.Application.ID)
			}
			dispatcher.Dispatch(ctx, notify.Input{
				UserID:    ev.Application.ApplicantID,
				Title:     title,
				Message:   message,
				Type:      models.NotificationStatusUpdate,
				RelatedID: ev.Application.ID,
				Priority:  ev.Application.Priority,
			})
			return nil
		}},
		workflow.Hook{Name: "stats", Run: func(ctx context.Context, ev workflow.Event) error {
			return aggregator.Increment(ctx, ev.Application.ServiceType, ev.FromStatus, ev.ToStatus)
		}},
	)

	assigner := assignment.NewEngine(pg.DB, recordStore, engine, dispatcher, trail, log)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	server := api.NewServer(api.Deps{
		Workflow:   engine,
		Assigner:   assigner,
		Trail:      trail,
		Dispatcher: dispatcher,
		Aggregator: aggregator,
		Catalog:    catalog,
		Store:      recordStore,
		Verifier:   verifier,
		Obs:        obs,
		Logger:     log,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      server,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Millisecond,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.HTTP.Address))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownTimeout)*time.Millisecond)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Portal API stopped gracefully")
}
