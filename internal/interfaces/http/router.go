package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tu-usuario/mifiscal-api/internal/application/cfdis"
	appsync "github.com/tu-usuario/mifiscal-api/internal/application/sync"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	SyncUC    *appsync.UseCase
	CFDIUC    *cfdis.UseCase
	JWTSecret string
}

// Router registra las rutas de la API. Todo el API es protegido: el token
// identifica al contribuyente dueño de los comprobantes.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Sincronización con el SAT (protegido)
	sat := protected.Group("/sat")
	syncHandler := NewSyncHandler(deps.SyncUC)
	sat.Post("/sync", syncHandler.StartFull)
	sat.Post("/sync/quick", syncHandler.StartQuick)
	sat.Get("/sync/status", syncHandler.Status)

	// Comprobantes sincronizados (protegido)
	cfdisGroup := protected.Group("/cfdis")
	cfdiHandler := NewCFDIHandler(deps.CFDIUC)
	cfdisGroup.Get("/", cfdiHandler.List)
	cfdisGroup.Get("/:id", cfdiHandler.GetByID)
	cfdisGroup.Get("/:id/pdf", cfdiHandler.DownloadPDF)
}
