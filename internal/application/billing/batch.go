package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/internal/domain/entity"
	"github.com/jhoicas/nfe-api/internal/domain/nfe"
	"github.com/jhoicas/nfe-api/internal/domain/repository"
	"github.com/jhoicas/nfe-api/pkg/logger"
)

// Resultados de un lote, usados en logs y métricas.
const (
	OutcomeAuthorized = "authorized"
	OutcomeRejected   = "rejected"
	OutcomeDenied     = "denied"
	OutcomePending    = "pending"
	OutcomeError      = "error"
)

// SubmitOptions opciones de envío. Sync nil equivale a síncrono.
type SubmitOptions struct {
	Lot        int64 // 0 = tomar del LotSequencer
	Print      bool
	Sync       *bool
	Compressed bool
}

func (o SubmitOptions) sync() bool {
	return o.Sync == nil || *o.Sync
}

// BatchResult veredicto único del lote y los registros ya actualizados.
type BatchResult struct {
	CorrelationID string
	Lot           int64
	Outcome       string
	Code          string
	Reason        string
	Records       []*entity.InvoiceRecord
	Response      *nfe.Response
}

// BatchCoordinator envía uno o más registros VALIDATED como un lote y reparte
// el veredicto entre todos.
type BatchCoordinator struct {
	repo     repository.InvoiceRecordRepository
	tx       RecordTxRunner
	session  *ProcessorSession
	lots     LotSequencer
	archiver XMLArchiver
	metrics  Metrics
	log      *logger.Logger
	now      func() time.Time
}

// NewBatchCoordinator archiver y metrics pueden ser nil.
func NewBatchCoordinator(
	repo repository.InvoiceRecordRepository,
	tx RecordTxRunner,
	session *ProcessorSession,
	lots LotSequencer,
	archiver XMLArchiver,
	metrics Metrics,
	log *logger.Logger,
) *BatchCoordinator {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BatchCoordinator{
		repo:     repo,
		tx:       tx,
		session:  session,
		lots:     lots,
		archiver: archiver,
		metrics:  metrics,
		log:      log.Named("batch"),
		now:      time.Now,
	}
}

// Submit valida el lote, lo transmite en una sola llamada y aplica el
// veredicto. Con rechazo o denegación devuelve el resultado junto con un
// *domain.RejectedByAuthorityError. Errores del procesador (incluido
// timeout) no cambian ningún estado. El envío nunca se reintenta.
//
// La relectura de los registros, el envío y la persistencia del veredicto
// ocurren con el procesador tomado: un mismo registro no se envía dos veces.
func (b *BatchCoordinator) Submit(ctx context.Context, ids []int64, opts SubmitOptions) (*BatchResult, error) {
	if len(ids) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	var unique []int64
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	records, err := b.submittable(ctx, unique)
	if err != nil {
		return nil, err
	}

	lot := opts.Lot
	if lot == 0 {
		next, err := b.lots.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("batch: número de lote: %w", err)
		}
		lot = next
	}

	result := &BatchResult{CorrelationID: uuid.NewString(), Lot: lot}
	log := b.log.With().Str("correlation_id", result.CorrelationID).Int64("lot", lot).Int("documents", len(records)).Logger()

	var sent, persisted bool
	err = b.session.Do(ctx, "submit", func(ctx context.Context, p DocumentProcessor) error {
		fresh, err := b.submittable(ctx, unique)
		if err != nil {
			return keep(err)
		}
		records = fresh

		if err := p.Clear(ctx); err != nil {
			return err
		}
		for _, rec := range records {
			if err := p.Load(ctx, rec.CurrentXML()); err != nil {
				return fmt.Errorf("cargar %s: %w", rec.AccessKey, err)
			}
		}
		raw, err := p.Submit(ctx, lot, opts.Print, opts.sync(), opts.Compressed)
		if err != nil {
			return err
		}
		sent = true

		resp := nfe.ParseResponse(raw)
		result.Response = resp
		result.Code = resp.Code()
		result.Reason = resp.Reason()
		result.Outcome = outcomeOf(resp)

		// el veredicto ya existe en la SEFAZ; se persiste fuera del plazo del procesador
		wctx := context.WithoutCancel(ctx)
		now := b.now()
		err = b.tx.RunRecords(wctx, func(repo repository.InvoiceRecordRepository) error {
			for _, rec := range records {
				if err := applyVerdict(rec, resp, result.Outcome, now); err != nil {
					return err
				}
				if err := repo.Update(wctx, rec, entity.StatusValidated); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return keep(fmt.Errorf("batch: persistir veredicto del lote %d: %w", lot, err))
		}
		persisted = true
		return nil
	})
	switch {
	case err == nil:
	case persisted:
		log.Warn().Err(err).Msg("veredicto persistido; falló la limpieza del procesador")
	case sent:
		b.metrics.BatchOutcome(OutcomeError, len(records))
		log.Error().Err(err).Str("cstat", result.Code).Msg("veredicto recibido pero no persistido")
		return nil, err
	default:
		var pe *domain.ProcessorError
		if errors.As(err, &pe) {
			b.metrics.BatchOutcome(OutcomeError, len(records))
			log.Error().Err(err).Msg("envío del lote falló; estados sin cambios")
		}
		return nil, err
	}

	result.Records = records
	b.metrics.BatchOutcome(result.Outcome, len(records))

	log.Info().Str("cstat", result.Code).Str("outcome", result.Outcome).Msg(result.Reason)

	if result.Outcome == OutcomeAuthorized && b.archiver != nil {
		for _, rec := range records {
			if aerr := b.archiver.Archive(ctx, rec.AccessKey, rec.CurrentXML()); aerr != nil {
				log.Warn().Err(aerr).Str("access_key", rec.AccessKey).Msg("no se pudo archivar el XML autorizado")
			}
		}
	}

	switch result.Outcome {
	case OutcomeRejected, OutcomeDenied:
		return result, &domain.RejectedByAuthorityError{Code: result.Code, Reason: result.Reason}
	}
	return result, nil
}

// submittable lee los registros y exige que todos estén en VALIDATED.
func (b *BatchCoordinator) submittable(ctx context.Context, ids []int64) ([]*entity.InvoiceRecord, error) {
	records := make([]*entity.InvoiceRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := b.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("%w: registro %d", domain.ErrNotFound, id)
		}
		if rec.Status != entity.StatusValidated {
			return nil, fmt.Errorf("%w: registro %d está en %s, se requiere %s",
				domain.ErrInvalidTransition, id, rec.Status, entity.StatusValidated)
		}
		records = append(records, rec)
	}
	return records, nil
}

func outcomeOf(resp *nfe.Response) string {
	switch {
	case resp.Success():
		return OutcomeAuthorized
	case resp.LotReceived():
		return OutcomePending
	case resp.Denied():
		return OutcomeDenied
	default:
		return OutcomeRejected
	}
}

// applyVerdict traduce el resultado del lote al registro.
func applyVerdict(rec *entity.InvoiceRecord, resp *nfe.Response, outcome string, now time.Time) error {
	if code, err := strconv.Atoi(resp.Code()); err == nil {
		rec.GatewayCode = &code
	}
	rec.GatewayMessage = resp.Reason()

	switch outcome {
	case OutcomeAuthorized:
		if err := rec.TransitionTo(entity.StatusAuthorized, now); err != nil {
			return err
		}
		rec.Protocol = protocolFor(resp, rec.AccessKey)
		at := now
		if received, ok := resp.ReceivedAt(); ok {
			at = received
		}
		rec.AuthorizedAt = &at
	case OutcomePending:
		rec.ReceiptNumber = resp.ReceiptNumber()
		rec.UpdatedAt = now
	case OutcomeDenied:
		return rec.TransitionTo(entity.StatusDenied, now)
	default:
		return rec.TransitionTo(entity.StatusRejected, now)
	}
	return nil
}

// protocolFor en lotes con varios documentos el nProt viene en la sección NFe<chave>.
func protocolFor(resp *nfe.Response, key string) string {
	if v, ok := resp.Value("NFe"+key, "nProt"); ok {
		return v
	}
	return resp.Protocol()
}
