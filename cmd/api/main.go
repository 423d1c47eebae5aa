package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/nfe-api/internal/application/billing"
	"github.com/jhoicas/nfe-api/internal/domain/nfe"
	"github.com/jhoicas/nfe-api/internal/domain/repository"
	"github.com/jhoicas/nfe-api/internal/infrastructure/cache"
	"github.com/jhoicas/nfe-api/internal/infrastructure/memory"
	"github.com/jhoicas/nfe-api/internal/infrastructure/metrics"
	"github.com/jhoicas/nfe-api/internal/infrastructure/postgres"
	"github.com/jhoicas/nfe-api/internal/infrastructure/processor"
	"github.com/jhoicas/nfe-api/internal/infrastructure/storage"
	httpRouter "github.com/jhoicas/nfe-api/internal/interfaces/http"
	"github.com/jhoicas/nfe-api/pkg/config"
	"github.com/jhoicas/nfe-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("ambiente", cfg.NFe.Environment).
		Str("processor", cfg.NFe.ProcessorDriver).
		Str("db", cfg.DB.Driver).
		Msg("iniciando aplicación")

	ctx := context.Background()

	// Persistencia: PostgreSQL o memoria
	var (
		records repository.InvoiceRecordRepository
		txr     billing.RecordTxRunner
	)
	switch cfg.DB.Driver {
	case config.DriverMemory:
		store := memory.NewRecordStore()
		records, txr = store, store
		log.Warn().Msg("persistencia en memoria: los registros se pierden al reiniciar")
	default:
		if cfg.DB.AutoMigrate {
			if err := postgres.Migrate(cfg.DB.ConnectionString(), log.Named("migrate")); err != nil {
				log.Fatal().Err(err).Msg("migraciones")
			}
		}
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()
		records = postgres.NewInvoiceRecordRepository(pool)
		txr = postgres.NewTxRunner(pool)
	}

	// Procesador de documentos
	var proc billing.DocumentProcessor
	switch cfg.NFe.ProcessorDriver {
	case config.ProcessorBridge:
		proc = processor.NewBridge(cfg.NFe.ProcessorURL, cfg.NFe.ProcessorTimeout, log)
	default:
		proc = processor.NewFake()
		log.Warn().Msg("procesador fake: las respuestas de la SEFAZ son simuladas")
	}

	// Numeración de lotes: Redis compartido o contador local
	var lots billing.LotSequencer = memory.NewLotSequencer(time.Now().Unix() % 1_000_000)
	if cfg.Redis.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a Redis")
		}
		defer rdb.Close()
		lots = cache.NewRedisLotSequencer(rdb, cache.DefaultLotKey)
	}

	// Archivo de XML autorizados (opcional)
	var archiver billing.XMLArchiver
	if cfg.Storage.Bucket != "" {
		s3a, err := storage.NewS3ArchiverFromConfig(ctx, cfg.Storage)
		if err != nil {
			log.Fatal().Err(err).Msg("cliente S3")
		}
		archiver = s3a
	}

	prom := metrics.NewPrometheus()

	assembler := nfe.NewAssembler(nfe.TechnicalContact{
		CNPJ:    cfg.NFe.RespTec.CNPJ,
		Contact: cfg.NFe.RespTec.Contact,
		Email:   cfg.NFe.RespTec.Email,
		Phone:   cfg.NFe.RespTec.Phone,
	}, nfe.WithStripAccents(cfg.NFe.StripAccents))

	session := billing.NewProcessorSession(proc, cfg.NFe.ProcessorTimeout, prom)
	batch := billing.NewBatchCoordinator(records, txr, session, lots, archiver, prom, log)
	lifecycle := billing.NewLifecycleManager(records, assembler, session, batch, lots, billing.LifecycleConfig{
		Environment:   cfg.NFe.Environment,
		QueryRetries:  cfg.NFe.QueryRetries,
		QueryInterval: cfg.NFe.QueryInterval,
	}, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.NFe.ProcessorTimeout + 10*time.Second,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "NF-e API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Lifecycle:   lifecycle,
		Batch:       batch,
		JWTSecret:   cfg.JWT.Secret,
		ServiceName: cfg.App.Name,
		Metrics:     prom.Handler(),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
