package memory

import (
	"context"
	"sync/atomic"

	"github.com/jhoicas/nfe-api/internal/application/billing"
)

var _ billing.LotSequencer = (*LotSequencer)(nil)

// LotSequencer numeración de lotes local al proceso.
type LotSequencer struct {
	last atomic.Int64
}

// NewLotSequencer el primer Next devuelve start+1.
func NewLotSequencer(start int64) *LotSequencer {
	s := &LotSequencer{}
	s.last.Store(start)
	return s
}

func (s *LotSequencer) Next(ctx context.Context) (int64, error) {
	return s.last.Add(1), nil
}
