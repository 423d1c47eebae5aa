package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/internal/domain/entity"
	"github.com/jhoicas/nfe-api/internal/domain/nfe"
	"github.com/jhoicas/nfe-api/internal/domain/repository"
	"github.com/jhoicas/nfe-api/pkg/logger"
	"github.com/jhoicas/nfe-api/pkg/sefaz"
)

// LifecycleConfig parámetros del ciclo de vida.
type LifecycleConfig struct {
	Environment   string        // tpAmb aplicado cuando la requisición no lo trae
	QueryRetries  uint64        // reintentos de QueryStatus ante timeout
	QueryBackoff  time.Duration // espera inicial entre reintentos; 0 = la de backoff
	QueryInterval time.Duration // separación mínima entre consultas; 0 = sin límite
}

// LifecycleManager conduce cada NF-e por DRAFT → VALIDATED → AUTHORIZED | REJECTED,
// AUTHORIZED → CANCELLED y DENIED.
type LifecycleManager struct {
	repo      repository.InvoiceRecordRepository
	validator *nfe.RequestValidator
	assembler *nfe.Assembler
	session   *ProcessorSession
	batch     *BatchCoordinator
	lots      LotSequencer
	limiter   *rate.Limiter
	cfg       LifecycleConfig
	log       *logger.Logger
	now       func() time.Time
}

// NewLifecycleManager crea el gestor. session y batch deben compartir el mismo procesador.
func NewLifecycleManager(
	repo repository.InvoiceRecordRepository,
	assembler *nfe.Assembler,
	session *ProcessorSession,
	batch *BatchCoordinator,
	lots LotSequencer,
	cfg LifecycleConfig,
	log *logger.Logger,
) *LifecycleManager {
	if log == nil {
		log = logger.Nop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.QueryInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.QueryInterval), 1)
	}
	return &LifecycleManager{
		repo:      repo,
		validator: nfe.NewRequestValidator(),
		assembler: assembler,
		session:   session,
		batch:     batch,
		lots:      lots,
		limiter:   limiter,
		cfg:       cfg,
		log:       log.Named("nfe"),
		now:       time.Now,
	}
}

// Create valida la requisición, monta el XML y lo persiste en DRAFT. La
// requisición del llamador no se modifica.
func (m *LifecycleManager) Create(ctx context.Context, in *nfe.InvoiceRequest) (*entity.InvoiceRecord, error) {
	r := *in
	req := &r
	if req.Environment == "" {
		req.Environment = m.cfg.Environment
	}
	if err := m.validator.Validate(req); err != nil {
		return nil, err
	}
	doc, err := m.assembler.Assemble(req)
	if err != nil {
		return nil, err
	}
	snapshot, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("nfe: serializar requisición: %w", err)
	}

	rec := &entity.InvoiceRecord{
		AccessKey:       doc.AccessKey,
		Series:          req.Series,
		Number:          int64(req.Number),
		OperationNature: req.OperationNature,
		Direction:       req.Direction,
		Purpose:         req.Purpose,
		Environment:     req.EnvironmentOrDefault(),
		IssuerCNPJ:      req.Issuer.CNPJ,
		IssuerName:      req.Issuer.Name,
		IssuerUF:        req.Issuer.Address.UF,
		RecipientDoc:    req.Recipient.Document(),
		RecipientName:   req.Recipient.Name,
		ProductTotal:    doc.Totals.Products,
		InvoiceTotal:    doc.Totals.Invoice,
		ICMSTotal:       doc.Totals.ICMS,
		PISTotal:        doc.Totals.PIS,
		COFINSTotal:     doc.Totals.COFINS,
		Status:          entity.StatusDraft,
		OriginalXML:     doc.XML,
		Request:         snapshot,
		Notes:           req.Notes,
	}
	if err := m.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	m.log.Info().Int64("record_id", rec.ID).Str("access_key", rec.AccessKey).Msg("NF-e creada")
	return rec, nil
}

// Get devuelve domain.ErrNotFound si el registro no existe.
func (m *LifecycleManager) Get(ctx context.Context, id int64) (*entity.InvoiceRecord, error) {
	rec, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: NF-e %d", domain.ErrNotFound, id)
	}
	return rec, nil
}

// List registros filtrados, con el total para paginar.
func (m *LifecycleManager) List(ctx context.Context, f repository.RecordFilter) ([]*entity.InvoiceRecord, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return m.repo.List(ctx, f)
}

// GetXML XML firmado si existe, si no el original.
func (m *LifecycleManager) GetXML(ctx context.Context, id int64) (string, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.CurrentXML(), nil
}

// ImportXML registra en DRAFT un XML producido fuera del servicio.
func (m *LifecycleManager) ImportXML(ctx context.Context, xmlText string) (*entity.InvoiceRecord, error) {
	info, err := nfe.InspectDocument(xmlText)
	if err != nil {
		return nil, err
	}
	existing, err := m.repo.GetByAccessKey(ctx, info.AccessKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: la clave %s ya está registrada (id %d)", domain.ErrDuplicate, info.AccessKey, existing.ID)
	}

	rec := &entity.InvoiceRecord{
		AccessKey:       info.AccessKey,
		Series:          info.Series,
		Number:          int64(info.Number),
		OperationNature: info.OperationNature,
		Direction:       info.Direction,
		Purpose:         info.Purpose,
		Environment:     info.Environment,
		IssuerCNPJ:      info.IssuerCNPJ,
		IssuerName:      info.IssuerName,
		IssuerUF:        info.IssuerUF,
		RecipientDoc:    info.RecipientDoc,
		RecipientName:   info.RecipientName,
		ProductTotal:    info.ProductTotal,
		InvoiceTotal:    info.InvoiceTotal,
		ICMSTotal:       info.ICMSTotal,
		PISTotal:        info.PISTotal,
		COFINSTotal:     info.COFINSTotal,
		Status:          entity.StatusDraft,
		OriginalXML:     xmlText,
	}
	if err := m.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	m.log.Info().Int64("record_id", rec.ID).Str("access_key", rec.AccessKey).Msg("XML importado")
	return rec, nil
}

// Sign firma el XML original y guarda el texto firmado. El estado no avanza
// hasta que la validación también pase.
func (m *LifecycleManager) Sign(ctx context.Context, id int64) (*entity.InvoiceRecord, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireSignable(rec); err != nil {
		return nil, err
	}

	err = m.session.Do(ctx, "sign", func(ctx context.Context, p DocumentProcessor) error {
		fresh, err := m.reload(ctx, id, requireSignable)
		if err != nil {
			return err
		}
		signed, err := signLoaded(ctx, p, fresh.OriginalXML)
		if err != nil {
			return err
		}
		fresh.SignedXML = signed
		fresh.UpdatedAt = m.now()
		rec = fresh
		return keep(m.repo.Update(ctx, rec, rec.Status))
	})
	if err != nil {
		m.log.Warn().Err(err).Int64("record_id", id).Msg("firma falló")
		return nil, err
	}
	return rec, nil
}

// Validate valida el XML firmado; con éxito pasa a VALIDATED.
func (m *LifecycleManager) Validate(ctx context.Context, id int64) (*entity.InvoiceRecord, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireValidatable(rec); err != nil {
		return nil, err
	}

	err = m.session.Do(ctx, "validate", func(ctx context.Context, p DocumentProcessor) error {
		fresh, err := m.reload(ctx, id, requireValidatable)
		if err != nil {
			return err
		}
		if err := p.Load(ctx, fresh.SignedXML); err != nil {
			return err
		}
		if err := p.Validate(ctx); err != nil {
			return err
		}
		rec = fresh
		return keep(m.markValidated(ctx, rec))
	})
	if err != nil {
		m.log.Warn().Err(err).Int64("record_id", id).Msg("validación falló")
		return nil, err
	}
	m.log.Info().Int64("record_id", rec.ID).Str("access_key", rec.AccessKey).Msg("NF-e validada")
	return rec, nil
}

// SignAndValidate firma y valida en una sola secuencia del procesador. Si la
// firma falla nada cambia; si falla la validación se guarda el texto firmado,
// el registro sigue en DRAFT y se devuelve el error.
func (m *LifecycleManager) SignAndValidate(ctx context.Context, id int64) (*entity.InvoiceRecord, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireSignable(rec); err != nil {
		return nil, err
	}

	var signed bool
	err = m.session.Do(ctx, "sign_validate", func(ctx context.Context, p DocumentProcessor) error {
		fresh, err := m.reload(ctx, id, requireSignable)
		if err != nil {
			return err
		}
		text, err := signLoaded(ctx, p, fresh.OriginalXML)
		if err != nil {
			return err
		}
		signed = true
		fresh.SignedXML = text
		fresh.UpdatedAt = m.now()
		rec = fresh

		if verr := p.Validate(ctx); verr != nil {
			if uerr := m.repo.Update(ctx, rec, rec.Status); uerr != nil {
				return errors.Join(verr, uerr)
			}
			return verr
		}
		return keep(m.markValidated(ctx, rec))
	})
	switch {
	case err == nil:
		m.log.Info().Int64("record_id", rec.ID).Str("access_key", rec.AccessKey).Msg("NF-e validada")
		return rec, nil
	case signed:
		m.log.Warn().Err(err).Int64("record_id", id).Msg("validación falló; NF-e firmada queda en DRAFT")
	default:
		m.log.Warn().Err(err).Int64("record_id", id).Msg("firma falló")
	}
	return nil, err
}

// CreateSignValidate monta, persiste, firma y valida. Si la firma o la
// validación fallan, el registro creado queda en DRAFT y se devuelve junto al error.
func (m *LifecycleManager) CreateSignValidate(ctx context.Context, req *nfe.InvoiceRequest) (*entity.InvoiceRecord, error) {
	rec, err := m.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	validated, err := m.SignAndValidate(ctx, rec.ID)
	if err != nil {
		if current, gerr := m.Get(ctx, rec.ID); gerr == nil {
			rec = current
		}
		return rec, err
	}
	return validated, nil
}

// Submit envía un único registro como lote.
func (m *LifecycleManager) Submit(ctx context.Context, id int64, opts SubmitOptions) (*BatchResult, error) {
	return m.batch.Submit(ctx, []int64{id}, opts)
}

// Cancel cancela una NF-e autorizada. taxID vacío usa el CNPJ del emisor.
func (m *LifecycleManager) Cancel(ctx context.Context, id int64, justification, taxID string) (*entity.InvoiceRecord, *nfe.Response, error) {
	if err := nfe.ValidateJustification(justification); err != nil {
		return nil, nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "justificativa", Message: err.Error()}}}
	}
	rec, err := m.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := requireCancellable(rec); err != nil {
		return nil, nil, err
	}
	lot, err := m.lots.Next(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("nfe: número de lote: %w", err)
	}

	var (
		resp     *nfe.Response
		code     string
		reason   string
		accepted bool
	)
	err = m.session.Do(ctx, "cancel", func(ctx context.Context, p DocumentProcessor) error {
		fresh, err := m.reload(ctx, id, requireCancellable)
		if err != nil {
			return err
		}
		rec = fresh
		if taxID == "" {
			taxID = rec.IssuerCNPJ
		}
		raw, err := p.Cancel(ctx, rec.AccessKey, justification, taxID, lot)
		if err != nil {
			return err
		}

		resp = nfe.ParseResponse(raw)
		code, _ = resp.Find("CStat")
		reason, _ = resp.Find("XMotivo")
		if !sefaz.CancellationCodes[code] {
			return nil
		}
		accepted = true
		if err := rec.TransitionTo(entity.StatusCancelled, m.now()); err != nil {
			return keep(err)
		}
		setGateway(rec, code, reason)
		// el evento ya consta en la SEFAZ; se persiste fuera del plazo del procesador
		return keep(m.repo.Update(context.WithoutCancel(ctx), rec, entity.StatusAuthorized))
	})
	if err != nil {
		return nil, nil, err
	}

	log := m.log.With().Int64("record_id", id).Str("access_key", rec.AccessKey).Int64("lot", lot).Str("cstat", code).Logger()
	if !accepted {
		log.Warn().Msg("cancelación rechazada: " + reason)
		return rec, resp, &domain.RejectedByAuthorityError{Code: code, Reason: reason}
	}
	log.Info().Msg("NF-e cancelada")
	return rec, resp, nil
}

// QueryStatus consulta la situación de una clave. Se reintenta solo ante
// timeout; submit y cancel nunca se reintentan.
func (m *LifecycleManager) QueryStatus(ctx context.Context, accessKey string, extractEvents bool) (*nfe.Response, error) {
	key := sefaz.OnlyDigits(accessKey)
	if len(key) != nfe.AccessKeyLength {
		return nil, fmt.Errorf("%w: la clave debe tener %d dígitos", domain.ErrInvalidKeyInput, nfe.AccessKeyLength)
	}

	var raw string
	op := func() error {
		if err := m.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := m.session.Do(ctx, "query_status", func(ctx context.Context, p DocumentProcessor) error {
			var err error
			raw, err = p.QueryStatus(ctx, key, extractEvents)
			return err
		})
		if err != nil && !errors.Is(err, domain.ErrTimeout) {
			return backoff.Permanent(err)
		}
		return err
	}

	exp := backoff.NewExponentialBackOff()
	if m.cfg.QueryBackoff > 0 {
		exp.InitialInterval = m.cfg.QueryBackoff
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, m.cfg.QueryRetries), ctx)
	notify := func(err error, wait time.Duration) {
		m.log.Warn().Err(err).Str("access_key", key).Dur("wait", wait).Msg("consulta de situación: reintentando")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return nfe.ParseResponse(raw), nil
}

// Reconcile aplica a un registro VALIDATED el veredicto de la consulta de
// situación. Códigos pendientes (lote en proceso, NF-e aún no consta) no cambian nada.
func (m *LifecycleManager) Reconcile(ctx context.Context, id int64) (*entity.InvoiceRecord, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != entity.StatusValidated {
		return nil, fmt.Errorf("%w: solo se reconcilian registros VALIDATED (estado %s)", domain.ErrInvalidTransition, rec.Status)
	}
	resp, err := m.QueryStatus(ctx, rec.AccessKey, false)
	if err != nil {
		return nil, err
	}

	code := resp.Code()
	if code == "" || sefaz.PendingCodes[code] {
		return rec, nil
	}
	now := m.now()
	switch {
	case resp.Success():
		err = rec.TransitionTo(entity.StatusAuthorized, now)
		rec.Protocol = resp.Protocol()
		at := now
		if received, ok := resp.ReceivedAt(); ok {
			at = received
		}
		rec.AuthorizedAt = &at
	case resp.Denied():
		err = rec.TransitionTo(entity.StatusDenied, now)
	default:
		err = rec.TransitionTo(entity.StatusRejected, now)
	}
	if err != nil {
		return nil, err
	}
	setGateway(rec, code, resp.Reason())
	if err := m.repo.Update(ctx, rec, entity.StatusValidated); err != nil {
		return nil, err
	}
	m.log.Info().Int64("record_id", id).Str("cstat", code).Str("status", string(rec.Status)).Msg("NF-e reconciliada")
	return rec, nil
}

// VoidRange inutiliza una franja de numeración.
func (m *LifecycleManager) VoidRange(ctx context.Context, req nfe.VoidRange) (*nfe.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var raw string
	err := m.session.Do(ctx, "void_range", func(ctx context.Context, p DocumentProcessor) error {
		var err error
		raw, err = p.VoidRange(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	resp := nfe.ParseResponse(raw)
	code, _ := resp.Find("CStat")
	if code != sefaz.StatusVoidHomologated {
		reason, _ := resp.Find("XMotivo")
		return resp, &domain.RejectedByAuthorityError{Code: code, Reason: reason}
	}
	m.log.Info().Int("serie", req.Series).Int("first", req.First).Int("last", req.Last).Msg("numeración inutilizada")
	return resp, nil
}

// ServiceStatus estado del servicio de la SEFAZ.
func (m *LifecycleManager) ServiceStatus(ctx context.Context) (*nfe.Response, error) {
	var raw string
	err := m.session.Do(ctx, "service_status", func(ctx context.Context, p DocumentProcessor) error {
		var err error
		raw, err = p.ServiceStatus(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return nfe.ParseResponse(raw), nil
}

// RenderPrintable pide al procesador el DANFE del documento actual.
func (m *LifecycleManager) RenderPrintable(ctx context.Context, id int64) error {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	return m.session.Do(ctx, "render_printable", func(ctx context.Context, p DocumentProcessor) error {
		if err := p.Load(ctx, rec.CurrentXML()); err != nil {
			return err
		}
		return p.RenderPrintable(ctx)
	})
}

// markValidated pasa rec a VALIDATED condicionado a su estado previo.
func (m *LifecycleManager) markValidated(ctx context.Context, rec *entity.InvoiceRecord) error {
	from := rec.Status
	if err := rec.TransitionTo(entity.StatusValidated, m.now()); err != nil {
		return err
	}
	return m.repo.Update(ctx, rec, from)
}

// reload relee el registro con el procesador ya tomado y repite la
// comprobación sobre la copia fresca. Los errores salen marcados con keep.
func (m *LifecycleManager) reload(ctx context.Context, id int64, check func(*entity.InvoiceRecord) error) (*entity.InvoiceRecord, error) {
	rec, err := m.Get(ctx, id)
	if err == nil {
		err = check(rec)
	}
	if err != nil {
		return nil, keep(err)
	}
	return rec, nil
}

func requireSignable(rec *entity.InvoiceRecord) error {
	if rec.Status != entity.StatusDraft && rec.Status != entity.StatusValidated {
		return fmt.Errorf("%w: no se puede firmar una NF-e en %s", domain.ErrInvalidTransition, rec.Status)
	}
	return nil
}

func requireValidatable(rec *entity.InvoiceRecord) error {
	if !rec.Status.CanTransition(entity.StatusValidated) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, rec.Status, entity.StatusValidated)
	}
	if rec.SignedXML == "" {
		return fmt.Errorf("%w: la NF-e %d no está firmada", domain.ErrConflict, rec.ID)
	}
	return nil
}

func requireCancellable(rec *entity.InvoiceRecord) error {
	if !rec.Status.CanTransition(entity.StatusCancelled) {
		return fmt.Errorf("%w: solo una NF-e AUTHORIZED puede cancelarse (estado %s)", domain.ErrInvalidTransition, rec.Status)
	}
	return nil
}

// signLoaded carga, firma y devuelve el texto firmado del primer documento.
func signLoaded(ctx context.Context, p DocumentProcessor, original string) (string, error) {
	if err := p.Load(ctx, original); err != nil {
		return "", err
	}
	if err := p.Sign(ctx); err != nil {
		return "", err
	}
	return p.Text(ctx, 0)
}

func setGateway(rec *entity.InvoiceRecord, code, reason string) {
	if n, err := strconv.Atoi(code); err == nil {
		rec.GatewayCode = &n
	}
	rec.GatewayMessage = reason
}
