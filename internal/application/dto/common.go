package dto

import "github.com/jhoicas/nfe-api/internal/domain"

// PageRequest paginación para listados.
type PageRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// DefaultPage aplica valores por defecto si Limit/Offset están fuera de rango.
func (p *PageRequest) DefaultPage() {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// PageResponse metadatos de página en respuestas.
type PageResponse struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// ErrorResponse cuerpo de error HTTP. Fields solo en errores de validación;
// Diagnostic conserva el texto original del procesador.
type ErrorResponse struct {
	Code       string              `json:"code"`
	Message    string              `json:"message"`
	Fields     []domain.FieldError `json:"fields,omitempty"`
	CStat      string              `json:"cstat,omitempty"`
	Diagnostic string              `json:"diagnostic,omitempty"`
}
