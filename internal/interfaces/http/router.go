package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jhoicas/nfe-api/internal/application/billing"
	"github.com/jhoicas/nfe-api/pkg/jwt"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Lifecycle   *billing.LifecycleManager
	Batch       *billing.BatchCoordinator
	JWTSecret   string
	ServiceName string
	Metrics     http.Handler // nil = sin /metrics
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": deps.ServiceName})
	})
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}

	api := app.Group("/api")
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	readers := RequireRole(jwt.RoleEmissor, jwt.RoleConsulta)
	writers := RequireRole(jwt.RoleEmissor)
	admins := RequireRole()

	h := NewNFeHandler(deps.Lifecycle, deps.Batch)
	nfeGroup := protected.Group("/nfe")

	// Rutas fijas antes de /:id
	nfeGroup.Get("/status-servico", readers, h.ServiceStatus)
	nfeGroup.Get("/consultar/:chave", readers, h.QueryStatus)
	nfeGroup.Post("/emitir", writers, h.Emit)
	nfeGroup.Post("/lote", writers, h.SubmitBatch)
	nfeGroup.Post("/importar", writers, h.Import)
	nfeGroup.Post("/inutilizar", admins, h.VoidRange)

	nfeGroup.Get("/", readers, h.List)
	nfeGroup.Post("/", writers, h.Create)
	nfeGroup.Get("/:id", readers, h.GetByID)
	nfeGroup.Get("/:id/xml", readers, h.GetXML)
	nfeGroup.Post("/:id/sign", writers, h.Sign)
	nfeGroup.Post("/:id/validate", writers, h.Validate)
	nfeGroup.Post("/:id/sign-validate", writers, h.SignAndValidate)
	nfeGroup.Post("/:id/submit", writers, h.Submit)
	nfeGroup.Post("/:id/cancel", writers, h.Cancel)
	nfeGroup.Post("/:id/reconciliar", writers, h.Reconcile)
	nfeGroup.Post("/:id/pdf", readers, h.RenderPrintable)
}
