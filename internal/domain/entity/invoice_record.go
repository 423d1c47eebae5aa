package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfe-api/internal/domain"
)

// Status estado de la NF-e en su ciclo de vida.
type Status string

const (
	StatusDraft      Status = "DRAFT"      // XML montado, aún no firmado/validado
	StatusValidated  Status = "VALIDATED"  // firmada y validada, lista para envío
	StatusAuthorized Status = "AUTHORIZED" // autorizada por la SEFAZ (cStat 100/101/150)
	StatusRejected   Status = "REJECTED"   // rechazada; hay que emitir un documento corregido
	StatusCancelled  Status = "CANCELLED"  // cancelada después de autorizada
	StatusDenied     Status = "DENIED"     // uso denegado por irregularidad del emisor o destinatario
)

var transitions = map[Status][]Status{
	StatusDraft:      {StatusValidated, StatusDenied},
	StatusValidated:  {StatusValidated, StatusAuthorized, StatusRejected, StatusDenied},
	StatusAuthorized: {StatusCancelled},
}

// ParseStatus convierte el texto persistido en Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusValidated, StatusAuthorized, StatusRejected, StatusCancelled, StatusDenied:
		return st, nil
	}
	return "", fmt.Errorf("%w: estado desconocido %q", domain.ErrInvalidInput, s)
}

// CanTransition indica si el paso from -> to está permitido.
func (s Status) CanTransition(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsFinal indica que el registro ya no cambiará de estado.
func (s Status) IsFinal() bool {
	return len(transitions[s]) == 0
}

// InvoiceRecord registro persistido de una NF-e.
type InvoiceRecord struct {
	ID              int64
	AccessKey       string // 44 dígitos; vacío = NULL
	Series          int
	Number          int64
	OperationNature string
	Direction       string // tpNF
	Purpose         string // finNFe
	Environment     string // tpAmb

	IssuerCNPJ    string
	IssuerName    string
	IssuerUF      string
	RecipientDoc  string // CNPJ o CPF
	RecipientName string

	ProductTotal decimal.Decimal
	InvoiceTotal decimal.Decimal
	ICMSTotal    decimal.Decimal
	PISTotal     decimal.Decimal
	COFINSTotal  decimal.Decimal

	Status         Status
	Protocol       string     // nProt
	AuthorizedAt   *time.Time // dhRecbto
	GatewayMessage string     // xMotivo de la última respuesta
	GatewayCode    *int       // cStat de la última respuesta
	ReceiptNumber  string     // nRec de envíos asíncronos

	OriginalXML string
	SignedXML   string
	Request     json.RawMessage // requisición original, opaca
	Notes       string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransitionTo cambia el estado si el paso es válido.
func (r *InvoiceRecord) TransitionTo(to Status, now time.Time) error {
	if !r.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = now
	return nil
}

// CurrentXML devuelve el XML firmado si existe, si no el original.
func (r *InvoiceRecord) CurrentXML() string {
	if r.SignedXML != "" {
		return r.SignedXML
	}
	return r.OriginalXML
}

// Clone copia profunda para que los repositorios en memoria no compartan punteros.
func (r *InvoiceRecord) Clone() *InvoiceRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.AuthorizedAt != nil {
		t := *r.AuthorizedAt
		c.AuthorizedAt = &t
	}
	if r.GatewayCode != nil {
		code := *r.GatewayCode
		c.GatewayCode = &code
	}
	if r.Request != nil {
		c.Request = append(json.RawMessage(nil), r.Request...)
	}
	return &c
}
