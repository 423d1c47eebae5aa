// Package memory implementaciones en memoria de los puertos de persistencia,
// para desarrollo sin base de datos y para tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jhoicas/nfe-api/internal/application/billing"
	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/internal/domain/entity"
	"github.com/jhoicas/nfe-api/internal/domain/repository"
)

var (
	_ repository.InvoiceRecordRepository = (*RecordStore)(nil)
	_ billing.RecordTxRunner             = (*RecordStore)(nil)
)

// RecordStore repositorio de registros NF-e en memoria. Guarda y devuelve
// copias para que los llamadores no compartan punteros.
type RecordStore struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	nextID int64
	byID   map[int64]*entity.InvoiceRecord
}

// NewRecordStore repositorio vacío.
func NewRecordStore() *RecordStore {
	return &RecordStore{byID: map[int64]*entity.InvoiceRecord{}}
}

func (s *RecordStore) Create(ctx context.Context, rec *entity.InvoiceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.AccessKey != "" && s.findKey(rec.AccessKey) != nil {
		return fmt.Errorf("%w: clave de acceso %s", domain.ErrDuplicate, rec.AccessKey)
	}
	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = rec.CreatedAt
	s.byID[rec.ID] = rec.Clone()
	return nil
}

func (s *RecordStore) Update(ctx context.Context, rec *entity.InvoiceRecord, from entity.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[rec.ID]
	if !ok {
		return fmt.Errorf("%w: NF-e %d", domain.ErrNotFound, rec.ID)
	}
	if stored.Status != from {
		return fmt.Errorf("%w: NF-e %d está en %s, se esperaba %s", domain.ErrConflict, rec.ID, stored.Status, from)
	}
	s.byID[rec.ID] = rec.Clone()
	return nil
}

func (s *RecordStore) GetByID(ctx context.Context, id int64) (*entity.InvoiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id].Clone(), nil
}

func (s *RecordStore) GetByAccessKey(ctx context.Context, key string) (*entity.InvoiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findKey(key).Clone(), nil
}

// List mismo orden que PostgreSQL: más reciente primero.
func (s *RecordStore) List(ctx context.Context, f repository.RecordFilter) ([]*entity.InvoiceRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*entity.InvoiceRecord
	for _, rec := range s.byID {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.IssuerCNPJ != "" && rec.IssuerCNPJ != f.IssuerCNPJ {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	start := min(max(f.Offset, 0), total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}
	out := make([]*entity.InvoiceRecord, 0, end-start)
	for _, rec := range matched[start:end] {
		out = append(out, rec.Clone())
	}
	return out, total, nil
}

// RunRecords serializa las transacciones; si fn falla se restaura el estado previo.
func (s *RecordStore) RunRecords(ctx context.Context, fn func(repo repository.InvoiceRecordRepository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := make(map[int64]*entity.InvoiceRecord, len(s.byID))
	for id, rec := range s.byID {
		snapshot[id] = rec.Clone()
	}
	nextID := s.nextID
	s.mu.RUnlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.byID = snapshot
		s.nextID = nextID
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *RecordStore) findKey(key string) *entity.InvoiceRecord {
	for _, rec := range s.byID {
		if rec.AccessKey == key {
			return rec
		}
	}
	return nil
}
