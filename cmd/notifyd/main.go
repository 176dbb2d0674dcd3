package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"intranet/internal/config"
	"intranet/internal/database"
	"intranet/internal/domain/notification"
	"intranet/internal/ingest"
	"intranet/internal/metrics"
	"intranet/internal/middleware"
	jwtsvc "intranet/internal/pkg/jwt"
	"intranet/internal/pkg/logger"
	"intranet/internal/realtime"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		// logger config lives in cfg, so this one goes to stderr
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("notifyd stopped", zap.Error(err))
	}
}

func run(cfg *config.ServerConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	repo := notification.NewRepository(db)
	service := notification.NewService(repo, log)
	handler := notification.NewHandler(service)

	var (
		observer realtime.Observer
		recorder ingest.Recorder
		m        *metrics.Metrics
	)
	if cfg.MetricsEnabled {
		m = metrics.New()
		observer, recorder = m, m
	}

	hub := realtime.NewHub(service, observer, log)
	service.SetPublisher(hub)

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTAccessTTL)
	wsHandler := realtime.NewWSHandler(hub, j, cfg.AllowedOrigins, log)

	if cfg.CleanupEnabled {
		notification.NewCleanupService(repo, log).Schedule(ctx, notification.CleanupConfig{
			ArchivedRetention: cfg.ArchivedRetention,
			Interval:          cfg.CleanupInterval,
			Enabled:           true,
		})
	}

	if cfg.KafkaEnabled() {
		consumer := ingest.NewConsumer(ingest.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, service, recorder, log)
		defer consumer.Close()

		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
		log.Info("kafka ingest started", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	if !isDevEnv(cfg.AppEnv) {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.ErrorLogger(log), middleware.RequestLogger(log), middleware.CORS(cfg.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ws/notifications", wsHandler.HandleWebSocket)
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(j))
		notification.RegisterRoutes(protected, handler)

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalTokenAuth(cfg.InternalToken, log))
		notification.RegisterInternalRoutes(internal, handler)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("notifyd listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func isDevEnv(env string) bool {
	return env == "dev" || env == "development" || env == "local"
}
