package http

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/nfe-api/internal/application/billing"
	"github.com/jhoicas/nfe-api/internal/application/dto"
	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/internal/domain/entity"
	"github.com/jhoicas/nfe-api/internal/domain/nfe"
	"github.com/jhoicas/nfe-api/internal/domain/repository"
	"github.com/jhoicas/nfe-api/pkg/sefaz"
)

// NFeHandler maneja el ciclo de vida de la NF-e (protegido).
// Un token con CNPJ solo opera sobre documentos de ese emisor.
type NFeHandler struct {
	mgr   *billing.LifecycleManager
	batch *billing.BatchCoordinator
}

// NewNFeHandler construye el handler.
func NewNFeHandler(mgr *billing.LifecycleManager, batch *billing.BatchCoordinator) *NFeHandler {
	return &NFeHandler{mgr: mgr, batch: batch}
}

// ── Creación y lectura ──────────────────────────────────────────────────────

// Create monta la NF-e y la deja en DRAFT.
// POST /api/nfe
func (h *NFeHandler) Create(c *fiber.Ctx) error {
	var req nfe.InvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := checkIssuer(c, req.Issuer.CNPJ); err != nil {
		return mapError(c, err)
	}
	rec, err := h.mgr.Create(c.UserContext(), &req)
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewNFeResponse(rec))
}

// Emit crea, firma y valida en una sola llamada.
// POST /api/nfe/emitir
func (h *NFeHandler) Emit(c *fiber.Ctx) error {
	var req nfe.InvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := checkIssuer(c, req.Issuer.CNPJ); err != nil {
		return mapError(c, err)
	}
	rec, err := h.mgr.CreateSignValidate(c.UserContext(), &req)
	if err != nil {
		if rec == nil {
			return mapError(c, err)
		}
		status, body := errorBody(err)
		return c.Status(status).JSON(dto.EmitResponse{NFe: dto.NewNFeResponse(rec), Error: &body})
	}
	return c.Status(fiber.StatusCreated).JSON(dto.EmitResponse{NFe: dto.NewNFeResponse(rec)})
}

// Import registra en DRAFT un XML externo. Acepta {"xml": "..."} o el XML crudo.
// POST /api/nfe/importar
func (h *NFeHandler) Import(c *fiber.Ctx) error {
	var text string
	if strings.Contains(string(c.Request().Header.ContentType()), "xml") {
		text = string(c.Body())
	} else {
		var in dto.ImportRequest
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
		}
		text = in.XML
	}
	if strings.TrimSpace(text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "xml requerido"})
	}
	info, err := nfe.InspectDocument(text)
	if err != nil {
		return mapError(c, err)
	}
	if err := checkIssuer(c, info.IssuerCNPJ); err != nil {
		return mapError(c, err)
	}
	rec, err := h.mgr.ImportXML(c.UserContext(), text)
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewNFeResponse(rec))
}

// GetByID detalle del registro.
// GET /api/nfe/:id
func (h *NFeHandler) GetByID(c *fiber.Ctx) error {
	rec, err := h.scoped(c)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(dto.NewNFeResponse(rec))
}

// GetXML XML firmado si existe, si no el original.
// GET /api/nfe/:id/xml
func (h *NFeHandler) GetXML(c *fiber.Ctx) error {
	rec, err := h.scoped(c)
	if err != nil {
		return mapError(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
	return c.SendString(rec.CurrentXML())
}

// List registros filtrados por status, paginados.
// GET /api/nfe?status=AUTHORIZED&limit=20&offset=0
func (h *NFeHandler) List(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_QUERY", Message: "parámetros inválidos"})
	}
	page.DefaultPage()

	f := repository.RecordFilter{Limit: page.Limit, Offset: page.Offset, IssuerCNPJ: GetCNPJ(c)}
	if s := c.Query("status"); s != "" {
		st, err := entity.ParseStatus(strings.ToUpper(s))
		if err != nil {
			return mapError(c, err)
		}
		f.Status = st
	}
	if f.IssuerCNPJ == "" {
		f.IssuerCNPJ = c.Query("cnpj")
	}

	items, total, err := h.mgr.List(c.UserContext(), f)
	if err != nil {
		return mapError(c, err)
	}
	out := dto.NFeListResponse{
		Items: make([]*dto.NFeResponse, 0, len(items)),
		Page:  dto.PageResponse{Limit: f.Limit, Offset: f.Offset, Total: total},
	}
	for _, rec := range items {
		out.Items = append(out.Items, dto.NewNFeResponse(rec))
	}
	return c.JSON(out)
}

// ── Firma, validación y envío ──────────────────────────────────────────────

// Sign POST /api/nfe/:id/sign
func (h *NFeHandler) Sign(c *fiber.Ctx) error {
	rec, err := h.scoped(c)
	if err != nil {
		return mapError(c, err)
	}
	if rec, err = h.mgr.Sign(c.UserContext(), rec.ID); err != nil {
		return mapError(c, err)
	}
	return c.JSON(dto.NewNFeResponse(rec))
}

// Validate POST /api/nfe/:id/validate
func (h *NFeHandler) Validate(c *fiber.Ctx) error {
	rec, err := h.scoped(c)
	if err != nil {
		return mapError(c, err)
	}
	if rec, err = h.mgr.Validate(c.UserContext(), rec.ID); err != nil {
		return mapError(c, err)
	}
	return c.JSON(dto.NewNFeResponse(rec))
}

// SignAndValidate POST /api/nfe/:id/sign-validate
func (h *NFeHandler) SignAndValidate(c *fiber.Ctx) error {
	rec, err := h.scoped(c)
	if err != nil {
		return mapError(c, err)
	}
	if rec, err = h.mgr.SignAndValidate(c.UserContext(), rec.ID); err != nil {
		return mapError(c, err)
	}
	return c.JSON(dto.NewNFeResponse(rec))
}

// Submit envía una NF-e VALIDATED como lote de uno.
// POST /api/nfe/:id/submit
func (h *NFeHandler) Submit(c *fiber.Ctx) error {
	rec, err := h.scoped(c)
	if err != nil {
		return mapError(c, err)
	}
	var in dto.SubmitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
		}
	}
	res, err := h.mgr.Submit(c.UserContext(), rec.ID, in.Options())
	return batchResponse(c, res, err)
}

// SubmitBatch envía varias NF-e en un solo lote.
// POST /api/nfe/lote
func (h *NFeHandler) SubmitBatch(c *fiber.Ctx) error {
	var in dto.BatchSubmitRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	for _, id := range in.IDs {
		if _, err := h.load(c, id); err != nil {
			return mapError(c, err)
		}
	}
	res, err := h.batch.Submit(c.UserContext(), in.IDs, in.Options())
	return batchResponse(c, res, err)
}

// ── Eventos y consultas ────────────────────────────────────────────────────

// Cancel POST /api/nfe/:id/cancel
func (h *NFeHandler) Cancel(c *fiber.Ctx) error {
	rec, err := h.scoped(c)
	if err != nil {
		return mapError(c, err)
	}
	var in dto.CancelRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	rec, resp, err := h.mgr.Cancel(c.UserContext(), rec.ID, in.Justification, in.TaxID)
	return gatewayResponse(c, resp, rec, err)
}

// Reconcile aplica la consulta de situación a una NF-e VALIDATED.
// POST /api/nfe/:id/reconciliar
func (h *NFeHandler) Reconcile(c *fiber.Ctx) error {
	rec, err := h.scoped(c)
	if err != nil {
		return mapError(c, err)
	}
	if rec, err = h.mgr.Reconcile(c.UserContext(), rec.ID); err != nil {
		return mapError(c, err)
	}
	return c.JSON(dto.NewNFeResponse(rec))
}

// QueryStatus consulta la situación por clave. extrairEventos vale true salvo "false".
// GET /api/nfe/consultar/:chave
func (h *NFeHandler) QueryStatus(c *fiber.Ctx) error {
	key := sefaz.OnlyDigits(c.Params("chave"))
	if cnpj := GetCNPJ(c); cnpj != "" {
		parts, err := nfe.ParseAccessKey(key)
		if err != nil {
			return mapError(c, err)
		}
		if parts.CNPJ != cnpj {
			return mapError(c, fmt.Errorf("%w: la clave pertenece a otro emisor", domain.ErrForbidden))
		}
	}
	extract := c.Query("extrairEventos") != "false"
	resp, err := h.mgr.QueryStatus(c.UserContext(), key, extract)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(dto.NewGatewayResponse(resp, resp.Success()))
}

// VoidRange inutiliza una franja de numeración.
// POST /api/nfe/inutilizar
func (h *NFeHandler) VoidRange(c *fiber.Ctx) error {
	var in nfe.VoidRange
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if err := checkIssuer(c, in.TaxID); err != nil {
		return mapError(c, err)
	}
	resp, err := h.mgr.VoidRange(c.UserContext(), in)
	return gatewayResponse(c, resp, nil, err)
}

// ServiceStatus GET /api/nfe/status-servico
func (h *NFeHandler) ServiceStatus(c *fiber.Ctx) error {
	resp, err := h.mgr.ServiceStatus(c.UserContext())
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(dto.NewGatewayResponse(resp, resp.Code() == sefaz.StatusServiceRunning))
}

// RenderPrintable pide el DANFE al procesador.
// POST /api/nfe/:id/pdf
func (h *NFeHandler) RenderPrintable(c *fiber.Ctx) error {
	rec, err := h.scoped(c)
	if err != nil {
		return mapError(c, err)
	}
	if err := h.mgr.RenderPrintable(c.UserContext(), rec.ID); err != nil {
		return mapError(c, err)
	}
	return c.JSON(fiber.Map{"id": rec.ID, "message": "DANFE gerado pelo processador"})
}

// ── helpers ────────────────────────────────────────────────────────────────

// scoped carga el registro de :id respetando el emisor del token.
func (h *NFeHandler) scoped(c *fiber.Ctx) (*entity.InvoiceRecord, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: id debe ser un entero positivo", domain.ErrInvalidInput)
	}
	return h.load(c, id)
}

func (h *NFeHandler) load(c *fiber.Ctx, id int64) (*entity.InvoiceRecord, error) {
	rec, err := h.mgr.Get(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if err := checkIssuer(c, rec.IssuerCNPJ); err != nil {
		return nil, err
	}
	return rec, nil
}

func checkIssuer(c *fiber.Ctx, cnpj string) error {
	if scope := GetCNPJ(c); scope != "" && scope != cnpj {
		return fmt.Errorf("%w: el token solo opera sobre el emisor %s", domain.ErrForbidden, scope)
	}
	return nil
}

// batchResponse rechazo y denegación devuelven 422 con el resultado completo.
func batchResponse(c *fiber.Ctx, res *billing.BatchResult, err error) error {
	if err != nil && res == nil {
		return mapError(c, err)
	}
	out := dto.NewBatchResultResponse(res)
	if err != nil {
		status, body := errorBody(err)
		out.Error = &body
		return c.Status(status).JSON(out)
	}
	return c.JSON(out)
}

// gatewayResponse con respuesta y error (rechazo de la SEFAZ) devuelve ambos.
func gatewayResponse(c *fiber.Ctx, resp *nfe.Response, rec *entity.InvoiceRecord, err error) error {
	if err != nil && resp == nil {
		return mapError(c, err)
	}
	out := dto.NewGatewayResponse(resp, err == nil)
	out.NFe = dto.NewNFeResponse(rec)
	if err != nil {
		status, body := errorBody(err)
		out.Error = &body
		return c.Status(status).JSON(out)
	}
	return c.JSON(out)
}
