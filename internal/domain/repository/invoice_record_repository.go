package repository

import (
	"context"

	"github.com/jhoicas/nfe-api/internal/domain/entity"
)

// RecordFilter criterios de listado.
type RecordFilter struct {
	Status     entity.Status // vacío = todos
	IssuerCNPJ string        // vacío = todos
	Limit      int
	Offset     int
}

// InvoiceRecordRepository define el puerto de persistencia para registros de NF-e.
type InvoiceRecordRepository interface {
	// Create persiste el registro y asigna ID, CreatedAt y UpdatedAt.
	// Devuelve domain.ErrDuplicate si la clave de acceso ya existe.
	Create(ctx context.Context, rec *entity.InvoiceRecord) error
	// Update persiste rec solo si el estado almacenado sigue siendo from.
	// Devuelve domain.ErrConflict si otro proceso lo cambió antes y
	// domain.ErrNotFound si no existe.
	Update(ctx context.Context, rec *entity.InvoiceRecord, from entity.Status) error
	// GetByID devuelve nil, nil si no existe.
	GetByID(ctx context.Context, id int64) (*entity.InvoiceRecord, error)
	// GetByAccessKey devuelve nil, nil si no existe.
	GetByAccessKey(ctx context.Context, key string) (*entity.InvoiceRecord, error)
	List(ctx context.Context, f RecordFilter) ([]*entity.InvoiceRecord, int, error)
}
