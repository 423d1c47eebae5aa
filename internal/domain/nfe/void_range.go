package nfe

import (
	"fmt"

	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/pkg/sefaz"
)

// Largo admitido para justificativas de cancelación e inutilización.
const (
	MinJustification = 15
	MaxJustification = 255
)

// VoidRange pedido de inutilización de una franja de numeración.
type VoidRange struct {
	TaxID         string `json:"cnpj"`
	Justification string `json:"justificativa"`
	Year          int    `json:"ano"` // dos dígitos (24 = 2024)
	Model         string `json:"modelo"`
	Series        int    `json:"serie"`
	First         int    `json:"numeroInicial"`
	Last          int    `json:"numeroFinal"`
}

// Validate chequea la franja antes de llamar al procesador.
func (v *VoidRange) Validate() error {
	var fields []domain.FieldError
	if err := sefaz.ValidateCNPJ(v.TaxID); err != nil {
		fields = append(fields, domain.FieldError{Field: "cnpj", Message: "CNPJ inválido"})
	}
	if err := ValidateJustification(v.Justification); err != nil {
		fields = append(fields, domain.FieldError{Field: "justificativa", Message: err.Error()})
	}
	if v.Year < 0 || v.Year > 99 {
		fields = append(fields, domain.FieldError{Field: "ano", Message: "debe tener dos dígitos"})
	}
	if v.Model == "" {
		v.Model = sefaz.ModelNFe
	}
	if v.Series < 0 || v.Series > 999 {
		fields = append(fields, domain.FieldError{Field: "serie", Message: "fuera de 0..999"})
	}
	if v.First < 1 || v.Last > 999_999_999 || v.First > v.Last {
		fields = append(fields, domain.FieldError{Field: "numeroInicial", Message: fmt.Sprintf("franja %d..%d inválida", v.First, v.Last)})
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

// ValidateJustification largo de la justificativa en caracteres.
func ValidateJustification(s string) error {
	n := len([]rune(s))
	if n < MinJustification || n > MaxJustification {
		return fmt.Errorf("debe tener entre %d y %d caracteres", MinJustification, MaxJustification)
	}
	return nil
}
