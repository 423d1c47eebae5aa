package billing

import (
	"context"
	"time"

	"github.com/jhoicas/nfe-api/internal/domain/nfe"
	"github.com/jhoicas/nfe-api/internal/domain/repository"
)

// DocumentProcessor componente externo que firma, valida y transmite la NF-e.
// Tiene un único espacio de trabajo: Sign, Validate, Text, Submit y
// RenderPrintable actúan sobre lo que esté cargado. Las respuestas son texto
// seccionado (ver nfe.ParseResponse).
type DocumentProcessor interface {
	Load(ctx context.Context, doc string) error
	Sign(ctx context.Context) error
	Validate(ctx context.Context) error
	Text(ctx context.Context, index int) (string, error)
	Submit(ctx context.Context, lot int64, print, sync, compressed bool) (string, error)
	QueryStatus(ctx context.Context, accessKey string, extractEvents bool) (string, error)
	Cancel(ctx context.Context, accessKey, justification, taxID string, lot int64) (string, error)
	VoidRange(ctx context.Context, req nfe.VoidRange) (string, error)
	RenderPrintable(ctx context.Context) error
	Clear(ctx context.Context) error
	ServiceStatus(ctx context.Context) (string, error)
}

// RecordTxRunner ejecuta fn dentro de una transacción con el repositorio de registros.
type RecordTxRunner interface {
	RunRecords(ctx context.Context, fn func(repo repository.InvoiceRecordRepository) error) error
}

// LotSequencer entrega números de lote (idLote) crecientes.
type LotSequencer interface {
	Next(ctx context.Context) (int64, error)
}

// XMLArchiver guarda el XML autorizado fuera de la base. Opcional.
type XMLArchiver interface {
	Archive(ctx context.Context, accessKey, xml string) error
}

// Metrics observa llamadas al procesador y resultados de lotes. Opcional.
type Metrics interface {
	ProcessorCall(op string, elapsed time.Duration, err error)
	BatchOutcome(outcome string, documents int)
}

type nopMetrics struct{}

func (nopMetrics) ProcessorCall(string, time.Duration, error) {}
func (nopMetrics) BatchOutcome(string, int)                   {}
