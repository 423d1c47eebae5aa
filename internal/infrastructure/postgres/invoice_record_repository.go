package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/internal/domain/entity"
	"github.com/jhoicas/nfe-api/internal/domain/repository"
)

var _ repository.InvoiceRecordRepository = (*InvoiceRecordRepo)(nil)

// InvoiceRecordRepo implementación de InvoiceRecordRepository (usable con pool o tx).
type InvoiceRecordRepo struct {
	q Querier
}

// NewInvoiceRecordRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRecordRepository(q Querier) *InvoiceRecordRepo {
	return &InvoiceRecordRepo{q: q}
}

const recordColumns = `
	id, access_key, series, number, operation_nature, direction, purpose, environment,
	issuer_cnpj, issuer_name, issuer_uf, recipient_doc, recipient_name,
	product_total, invoice_total, icms_total, pis_total, cofins_total,
	status, protocol, authorized_at, gateway_message, gateway_code, receipt_number,
	original_xml, signed_xml, request, notes, created_at, updated_at`

// Create persiste el registro y completa ID, CreatedAt y UpdatedAt.
func (r *InvoiceRecordRepo) Create(ctx context.Context, rec *entity.InvoiceRecord) error {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt

	query := `
		INSERT INTO nfe_records (
			access_key, series, number, operation_nature, direction, purpose, environment,
			issuer_cnpj, issuer_name, issuer_uf, recipient_doc, recipient_name,
			product_total, invoice_total, icms_total, pis_total, cofins_total,
			status, protocol, authorized_at, gateway_message, gateway_code, receipt_number,
			original_xml, signed_xml, request, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		        $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
		RETURNING id`
	err := r.q.QueryRow(ctx, query,
		nullIfEmpty(rec.AccessKey), rec.Series, rec.Number, rec.OperationNature,
		rec.Direction, rec.Purpose, rec.Environment,
		rec.IssuerCNPJ, rec.IssuerName, rec.IssuerUF, rec.RecipientDoc, rec.RecipientName,
		rec.ProductTotal, rec.InvoiceTotal, rec.ICMSTotal, rec.PISTotal, rec.COFINSTotal,
		string(rec.Status), nullIfEmpty(rec.Protocol), rec.AuthorizedAt, nullIfEmpty(rec.GatewayMessage),
		rec.GatewayCode, nullIfEmpty(rec.ReceiptNumber),
		rec.OriginalXML, nullIfEmpty(rec.SignedXML), nullIfEmptyJSON(rec.Request), nullIfEmpty(rec.Notes),
		rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: clave de acceso %s", domain.ErrDuplicate, rec.AccessKey)
		}
		return fmt.Errorf("insert nfe_record: %w", err)
	}
	return nil
}

// Update reescribe el estado y los campos que cambian durante el ciclo de
// vida, condicionado a que la fila siga en from.
func (r *InvoiceRecordRepo) Update(ctx context.Context, rec *entity.InvoiceRecord, from entity.Status) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	query := `
		UPDATE nfe_records
		SET status          = $2,
		    protocol        = $3,
		    authorized_at   = $4,
		    gateway_message = $5,
		    gateway_code    = $6,
		    receipt_number  = $7,
		    signed_xml      = $8,
		    notes           = $9,
		    updated_at      = $10
		WHERE id = $1 AND status = $11`
	tag, err := r.q.Exec(ctx, query,
		rec.ID,
		string(rec.Status),
		nullIfEmpty(rec.Protocol),
		rec.AuthorizedAt,
		nullIfEmpty(rec.GatewayMessage),
		rec.GatewayCode,
		nullIfEmpty(rec.ReceiptNumber),
		nullIfEmpty(rec.SignedXML),
		nullIfEmpty(rec.Notes),
		rec.UpdatedAt,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("update nfe_record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := r.q.QueryRow(ctx, `SELECT status FROM nfe_records WHERE id = $1`, rec.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: NF-e %d", domain.ErrNotFound, rec.ID)
		}
		if err != nil {
			return fmt.Errorf("update nfe_record: %w", err)
		}
		return fmt.Errorf("%w: NF-e %d está en %s, se esperaba %s", domain.ErrConflict, rec.ID, current, from)
	}
	return nil
}

// GetByID devuelve nil, nil si no existe.
func (r *InvoiceRecordRepo) GetByID(ctx context.Context, id int64) (*entity.InvoiceRecord, error) {
	rec, err := scanRecord(r.q.QueryRow(ctx, `SELECT `+recordColumns+` FROM nfe_records WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get nfe_record: %w", err)
	}
	return rec, nil
}

// GetByAccessKey devuelve nil, nil si no existe.
func (r *InvoiceRecordRepo) GetByAccessKey(ctx context.Context, key string) (*entity.InvoiceRecord, error) {
	rec, err := scanRecord(r.q.QueryRow(ctx, `SELECT `+recordColumns+` FROM nfe_records WHERE access_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get nfe_record by key: %w", err)
	}
	return rec, nil
}

// List filtra por estado y emisor; ordena del más reciente al más antiguo.
func (r *InvoiceRecordRepo) List(ctx context.Context, f repository.RecordFilter) ([]*entity.InvoiceRecord, int, error) {
	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.IssuerCNPJ != "" {
		args = append(args, f.IssuerCNPJ)
		where = append(where, fmt.Sprintf("issuer_cnpj = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM nfe_records`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count nfe_records: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM nfe_records%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		recordColumns, clause, len(args)-1, len(args))
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list nfe_records: %w", err)
	}
	defer rows.Close()

	var out []*entity.InvoiceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan nfe_record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterar nfe_records: %w", err)
	}
	return out, total, nil
}

func scanRecord(row pgx.Row) (*entity.InvoiceRecord, error) {
	var rec entity.InvoiceRecord
	var status string
	var accessKey, protocol, gatewayMessage, receipt, signed, notes *string
	var request []byte
	err := row.Scan(
		&rec.ID, &accessKey, &rec.Series, &rec.Number, &rec.OperationNature,
		&rec.Direction, &rec.Purpose, &rec.Environment,
		&rec.IssuerCNPJ, &rec.IssuerName, &rec.IssuerUF, &rec.RecipientDoc, &rec.RecipientName,
		&rec.ProductTotal, &rec.InvoiceTotal, &rec.ICMSTotal, &rec.PISTotal, &rec.COFINSTotal,
		&status, &protocol, &rec.AuthorizedAt, &gatewayMessage, &rec.GatewayCode, &receipt,
		&rec.OriginalXML, &signed, &request, &notes, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if rec.Status, err = entity.ParseStatus(status); err != nil {
		return nil, err
	}
	rec.AccessKey = derefStr(accessKey)
	rec.Protocol = derefStr(protocol)
	rec.GatewayMessage = derefStr(gatewayMessage)
	rec.ReceiptNumber = derefStr(receipt)
	rec.SignedXML = derefStr(signed)
	rec.Notes = derefStr(notes)
	if len(request) > 0 {
		rec.Request = request
	}
	return &rec, nil
}

func nullIfEmptyJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
