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

	"github.com/tu-usuario/mifiscal-api/internal/application/cfdis"
	appsync "github.com/tu-usuario/mifiscal-api/internal/application/sync"
	"github.com/tu-usuario/mifiscal-api/internal/infrastructure/paquete"
	infrapdf "github.com/tu-usuario/mifiscal-api/internal/infrastructure/pdf"
	"github.com/tu-usuario/mifiscal-api/internal/infrastructure/postgres"
	"github.com/tu-usuario/mifiscal-api/internal/infrastructure/rediscache"
	"github.com/tu-usuario/mifiscal-api/internal/infrastructure/sat"
	httpRouter "github.com/tu-usuario/mifiscal-api/internal/interfaces/http"
	"github.com/tu-usuario/mifiscal-api/pkg/config"
	"github.com/tu-usuario/mifiscal-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	redisClient, err := rediscache.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a Redis")
	}
	defer redisClient.Close()

	credRepo := postgres.NewCredencialesRepository(pool)
	cfdiRepo := postgres.NewCFDIRepository(pool)
	historyRepo := postgres.NewSyncHistoryRepository(pool)
	solicitudRepo := postgres.NewSolicitudRepository(pool)

	cache := rediscache.NewCache(redisClient)

	// Cliente SOAP del SAT: solicita → verifica (polling) → descarga.
	satClient := sat.NewCliente(sat.Endpoints{
		Solicita: cfg.SAT.URLSolicita,
		Verifica: cfg.SAT.URLVerifica,
		Descarga: cfg.SAT.URLDescarga,
	})
	procesador := paquete.NewProcesador()

	syncUC := appsync.NewUseCase(
		credRepo, cfdiRepo, historyRepo, solicitudRepo,
		satClient, procesador, cache, cache, cfg.SAT,
	)

	// PDF: representación impresa del CFDI
	pdfGenerator := infrapdf.NewMarotoPDFGenerator()
	cfdiUC := cfdis.NewUseCase(cfdiRepo, pdfGenerator)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "MiFiscal API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		SyncUC:    syncUC,
		CFDIUC:    cfdiUC,
		JWTSecret: cfg.JWT.Secret,
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
