package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfe-api/internal/application/billing"
	"github.com/jhoicas/nfe-api/internal/domain/entity"
	"github.com/jhoicas/nfe-api/internal/domain/nfe"
)

// NFeResponse registro de NF-e en respuestas. Los XML se sirven aparte
// (GET /api/nfe/:id/xml).
type NFeResponse struct {
	ID              int64           `json:"id"`
	AccessKey       string          `json:"access_key,omitempty"`
	Series          int             `json:"series"`
	Number          int64           `json:"number"`
	OperationNature string          `json:"operation_nature"`
	Environment     string          `json:"environment"`
	IssuerCNPJ      string          `json:"issuer_cnpj"`
	IssuerName      string          `json:"issuer_name"`
	RecipientDoc    string          `json:"recipient_document"`
	RecipientName   string          `json:"recipient_name"`
	ProductTotal    decimal.Decimal `json:"product_total"`
	InvoiceTotal    decimal.Decimal `json:"invoice_total"`
	ICMSTotal       decimal.Decimal `json:"icms_total"`
	PISTotal        decimal.Decimal `json:"pis_total"`
	COFINSTotal     decimal.Decimal `json:"cofins_total"`
	Status          entity.Status   `json:"status"`
	Signed          bool            `json:"signed"`
	Protocol        string          `json:"protocol,omitempty"`
	AuthorizedAt    *time.Time      `json:"authorized_at,omitempty"`
	ReceiptNumber   string          `json:"receipt_number,omitempty"`
	GatewayCode     *int            `json:"gateway_code,omitempty"`
	GatewayMessage  string          `json:"gateway_message,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewNFeResponse convierte el registro persistido.
func NewNFeResponse(rec *entity.InvoiceRecord) *NFeResponse {
	if rec == nil {
		return nil
	}
	return &NFeResponse{
		ID:              rec.ID,
		AccessKey:       rec.AccessKey,
		Series:          rec.Series,
		Number:          rec.Number,
		OperationNature: rec.OperationNature,
		Environment:     rec.Environment,
		IssuerCNPJ:      rec.IssuerCNPJ,
		IssuerName:      rec.IssuerName,
		RecipientDoc:    rec.RecipientDoc,
		RecipientName:   rec.RecipientName,
		ProductTotal:    rec.ProductTotal,
		InvoiceTotal:    rec.InvoiceTotal,
		ICMSTotal:       rec.ICMSTotal,
		PISTotal:        rec.PISTotal,
		COFINSTotal:     rec.COFINSTotal,
		Status:          rec.Status,
		Signed:          rec.SignedXML != "",
		Protocol:        rec.Protocol,
		AuthorizedAt:    rec.AuthorizedAt,
		ReceiptNumber:   rec.ReceiptNumber,
		GatewayCode:     rec.GatewayCode,
		GatewayMessage:  rec.GatewayMessage,
		Notes:           rec.Notes,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

// NFeListResponse página de registros para GET /api/nfe.
type NFeListResponse struct {
	Items []*NFeResponse `json:"items"`
	Page  PageResponse   `json:"page"`
}

// SubmitRequest body de POST /api/nfe/:id/submit. Todos los campos son opcionales.
type SubmitRequest struct {
	Lot        int64 `json:"lot,omitempty"` // 0 = siguiente número de lote
	Print      bool  `json:"print"`
	Sync       *bool `json:"sync,omitempty"` // por defecto síncrono
	Compressed bool  `json:"compressed"`
}

// Options convierte al formato del coordinador.
func (r SubmitRequest) Options() billing.SubmitOptions {
	return billing.SubmitOptions{Lot: r.Lot, Print: r.Print, Sync: r.Sync, Compressed: r.Compressed}
}

// BatchSubmitRequest body de POST /api/nfe/lote.
type BatchSubmitRequest struct {
	IDs []int64 `json:"ids"`
	SubmitRequest
}

// BatchResultResponse veredicto del lote. Error acompaña rechazos y denegaciones.
type BatchResultResponse struct {
	CorrelationID string         `json:"correlation_id"`
	Lot           int64          `json:"lot"`
	Outcome       string         `json:"outcome"`
	CStat         string         `json:"cstat"`
	Reason        string         `json:"reason"`
	Records       []*NFeResponse `json:"records"`
	Response      map[string]any `json:"response,omitempty"`
	Error         *ErrorResponse `json:"error,omitempty"`
}

// NewBatchResultResponse convierte el resultado del coordinador.
func NewBatchResultResponse(res *billing.BatchResult) *BatchResultResponse {
	out := &BatchResultResponse{
		CorrelationID: res.CorrelationID,
		Lot:           res.Lot,
		Outcome:       res.Outcome,
		CStat:         res.Code,
		Reason:        res.Reason,
		Records:       make([]*NFeResponse, 0, len(res.Records)),
	}
	for _, rec := range res.Records {
		out.Records = append(out.Records, NewNFeResponse(rec))
	}
	if res.Response != nil {
		out.Response = res.Response.Map()
	}
	return out
}

// CancelRequest body de POST /api/nfe/:id/cancel.
type CancelRequest struct {
	Justification string `json:"justification"`
	TaxID         string `json:"tax_id,omitempty"` // vacío = CNPJ del emisor
}

// ImportRequest body JSON de POST /api/nfe/importar (también se acepta XML crudo).
type ImportRequest struct {
	XML string `json:"xml"`
}

// GatewayResponse respuesta interpretada del procesador (consulta, estado,
// cancelación, inutilización).
type GatewayResponse struct {
	Success  bool           `json:"success"`
	CStat    string         `json:"cstat"`
	Reason   string         `json:"reason"`
	Protocol string         `json:"protocol,omitempty"`
	Response map[string]any `json:"response"`
	NFe      *NFeResponse   `json:"nfe,omitempty"`
	Error    *ErrorResponse `json:"error,omitempty"`
}

// NewGatewayResponse usa Find para cStat y motivo: eventos traen su propia sección.
func NewGatewayResponse(resp *nfe.Response, success bool) *GatewayResponse {
	code, _ := resp.Find("CStat")
	reason, _ := resp.Find("XMotivo")
	return &GatewayResponse{
		Success:  success,
		CStat:    code,
		Reason:   reason,
		Protocol: resp.Protocol(),
		Response: resp.Map(),
	}
}

// EmitResponse resultado de POST /api/nfe/emitir. Con error, NFe trae el
// registro que quedó en DRAFT.
type EmitResponse struct {
	NFe   *NFeResponse   `json:"nfe"`
	Error *ErrorResponse `json:"error,omitempty"`
}
