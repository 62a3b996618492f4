package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/evms/internal/config"
	"github.com/iliyamo/evms/internal/database"
	"github.com/iliyamo/evms/internal/handler"
	"github.com/iliyamo/evms/internal/logger"
	"github.com/iliyamo/evms/internal/middleware"
	"github.com/iliyamo/evms/internal/queue"
	"github.com/iliyamo/evms/internal/repository"
	"github.com/iliyamo/evms/internal/router"
	"github.com/iliyamo/evms/internal/service"
	"github.com/iliyamo/evms/internal/storage"
	"github.com/iliyamo/evms/internal/validation"
)

// Multipart overhead on top of the largest upload.
const bodySlack = 5 << 20

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	log := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("apply schema")
	}

	var rdb *redis.Client
	if cfg.Cache.Enabled || cfg.RateLimit.Enabled {
		rdb, err = config.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, running without cache and rate limit")
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	disk, err := storage.NewDisk(cfg.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("prepare upload directory")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	colleges := repository.NewCollegeRepo(db)
	venues := repository.NewVenueRepo(db)
	events := repository.NewEventRepo(db)
	migrations := repository.NewMigrationLogRepo(db)

	processor := service.NewMigrationProcessor(migrations, disk, log)
	jobs, closeJobs := startJobs(ctx, cfg, processor.Process, log)

	authSvc := service.NewAuthService(users, tokens, service.AuthConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
		BcryptCost:    cfg.BcryptCost,
	}, log)
	userSvc := service.NewUserService(users, tokens, cfg.BcryptCost, log)
	collegeSvc := service.NewCollegeService(colleges)
	venueSvc := service.NewVenueService(venues)
	eventSvc := service.NewEventService(events, venues, colleges, log)
	regSvc := service.NewRegistrationService(repository.NewRegistrationRepo(db), log)
	invoiceSvc := service.NewInvoiceService(repository.NewInvoiceRepo(db), events, log)
	docSvc := service.NewDocumentService(repository.NewDocumentRepo(db), events, disk, storage.Documents(cfg.DocumentMaxBytes), log)
	migrationSvc := service.NewMigrationService(migrations, disk, jobs, storage.Migrations(cfg.MigrationMaxBytes), log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(log)
	e.Validator = validation.New()

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.Use(echomw.BodyLimit(bodyLimit(cfg)))
	e.Use(middleware.NewTokenBucket(cfg.RateLimit, cfg.JWTSecret, rdb, log))

	cache := router.Cache{Config: cfg.Cache, Redis: rdb, Log: log}
	secret := cfg.JWTSecret
	router.RegisterRoutes(e, func(ctx context.Context) error { return database.Ping(ctx, db) })
	router.RegisterAuth(e, handler.NewAuthHandler(authSvc), secret)
	router.RegisterEvents(e, handler.NewEventHandler(eventSvc), secret)
	router.RegisterRegistrations(e, handler.NewRegistrationHandler(regSvc), secret)
	router.RegisterInvoices(e, handler.NewInvoiceHandler(invoiceSvc), secret)
	router.RegisterDocuments(e, handler.NewDocumentHandler(docSvc), secret)
	router.RegisterVenues(e, handler.NewVenueHandler(venueSvc), secret, cache)
	router.RegisterColleges(e, handler.NewCollegeHandler(collegeSvc), secret, cache)
	router.RegisterUsers(e, handler.NewUserHandler(userSvc), secret)
	router.RegisterMigration(e, handler.NewMigrationHandler(migrationSvc), secret)

	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	closeJobs()
	if err := db.Close(); err != nil {
		log.Warn().Err(err).Msg("close database")
	}
}

// startJobs picks the migration job queue.  With a broker URL jobs go to
// RabbitMQ and a consumer in this process handles them; otherwise they run
// on an in-process worker pool.
func startJobs(ctx context.Context, cfg config.Config, handle queue.Handler, log zerolog.Logger) (service.JobQueue, func()) {
	if cfg.AMQPURL == "" {
		local := queue.NewLocal(cfg.MigrationWorkers, 64, handle, log)
		return local, func() {
			c, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := local.Close(c); err != nil {
				log.Warn().Err(err).Msg("job runner did not drain")
			}
		}
	}

	pub, err := queue.NewPublisher(cfg.AMQPURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to broker")
	}
	consumer := &queue.Consumer{URL: cfg.AMQPURL, Prefetch: cfg.MigrationWorkers, Handle: handle, Log: log}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("migration consumer stopped")
		}
	}()
	return pub, func() {
		_ = pub.Close()
		<-done
	}
}

func bodyLimit(cfg config.Config) string {
	n := max(cfg.DocumentMaxBytes, cfg.MigrationMaxBytes) + bodySlack
	return strconv.FormatInt(n, 10)
}
