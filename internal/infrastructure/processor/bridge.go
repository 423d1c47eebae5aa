package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jhoicas/nfe-api/internal/application/billing"
	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/internal/domain/nfe"
	"github.com/jhoicas/nfe-api/pkg/logger"
)

var _ billing.DocumentProcessor = (*Bridge)(nil)

// ── Contrato con el daemon ─────────────────────────────────────────────────────

// Cada operación es un POST {baseURL}/commands/{op} con un JSON de parámetros.
// El daemon responde siempre JSON: ok=false trae el diagnóstico en "error".
type bridgeReply struct {
	OK     bool   `json:"ok"`
	Result string `json:"result"`
	Error  string `json:"error"`
}

// ── Implementación HTTP ────────────────────────────────────────────────────────

// Bridge implementa billing.DocumentProcessor contra el daemon del procesador.
// Mantiene una copia de los documentos cargados para poder enviar lotes comprimidos.
type Bridge struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger

	mu     sync.Mutex
	loaded []string
}

// NewBridge timeout es el límite de red por comando; el ctx del llamador manda si es menor.
func NewBridge(baseURL string, timeout time.Duration, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Bridge{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Named("processor"),
	}
}

func (b *Bridge) Load(ctx context.Context, doc string) error {
	if _, err := b.call(ctx, OpLoad, map[string]any{"xml": doc}); err != nil {
		return err
	}
	b.mu.Lock()
	b.loaded = append(b.loaded, doc)
	b.mu.Unlock()
	return nil
}

func (b *Bridge) Sign(ctx context.Context) error {
	_, err := b.call(ctx, OpSign, nil)
	return err
}

func (b *Bridge) Validate(ctx context.Context) error {
	_, err := b.call(ctx, OpValidate, nil)
	return err
}

func (b *Bridge) Text(ctx context.Context, index int) (string, error) {
	return b.call(ctx, OpText, map[string]any{"index": index})
}

// Submit con compressed=true envía el lote como ZIP en Base64 en lugar de
// usar los documentos ya cargados en el daemon.
func (b *Bridge) Submit(ctx context.Context, lot int64, print, sync, compressed bool) (string, error) {
	params := map[string]any{
		"lot":   lot,
		"print": print,
		"sync":  sync,
	}
	if compressed {
		b.mu.Lock()
		docs := append([]string(nil), b.loaded...)
		b.mu.Unlock()
		zipBytes, err := CompressLot(docs)
		if err != nil {
			return "", &domain.ProcessorError{Op: OpSubmit, Err: err}
		}
		params["zip"] = base64.StdEncoding.EncodeToString(zipBytes)
	}
	return b.call(ctx, OpSubmit, params)
}

func (b *Bridge) QueryStatus(ctx context.Context, accessKey string, extractEvents bool) (string, error) {
	return b.call(ctx, OpQueryStatus, map[string]any{"accessKey": accessKey, "extractEvents": extractEvents})
}

func (b *Bridge) Cancel(ctx context.Context, accessKey, justification, taxID string, lot int64) (string, error) {
	return b.call(ctx, OpCancel, map[string]any{
		"accessKey":     accessKey,
		"justification": justification,
		"taxId":         taxID,
		"lot":           lot,
	})
}

func (b *Bridge) VoidRange(ctx context.Context, req nfe.VoidRange) (string, error) {
	return b.call(ctx, OpVoidRange, map[string]any{
		"taxId":         req.TaxID,
		"justification": req.Justification,
		"year":          req.Year,
		"model":         req.Model,
		"series":        req.Series,
		"first":         req.First,
		"last":          req.Last,
	})
}

func (b *Bridge) RenderPrintable(ctx context.Context) error {
	_, err := b.call(ctx, OpRenderPrintable, nil)
	return err
}

// Clear vacía la copia local aunque el daemon falle.
func (b *Bridge) Clear(ctx context.Context) error {
	b.mu.Lock()
	b.loaded = nil
	b.mu.Unlock()
	_, err := b.call(ctx, OpClear, nil)
	return err
}

func (b *Bridge) ServiceStatus(ctx context.Context) (string, error) {
	return b.call(ctx, OpServiceStatus, nil)
}

// ── Transporte ─────────────────────────────────────────────────────────────────

func (b *Bridge) call(ctx context.Context, op string, params map[string]any) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return "", &domain.ProcessorError{Op: op, Err: fmt.Errorf("serializar parámetros: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/commands/"+op, bytes.NewReader(payload))
	if err != nil {
		return "", &domain.ProcessorError{Op: op, Err: fmt.Errorf("crear request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", &domain.ProcessorError{Op: op, Err: transportError(ctx, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", &domain.ProcessorError{Op: op, Err: transportError(ctx, err)}
	}
	b.log.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("comando del procesador")

	var reply bridgeReply
	if jerr := json.Unmarshal(raw, &reply); jerr != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return "", &domain.ProcessorError{Op: op, Diagnostic: strings.TrimSpace(string(raw)), Err: domain.ErrProcessorUnavailable}
		}
		return "", &domain.ProcessorError{Op: op, Err: fmt.Errorf("respuesta ilegible (HTTP %d): %w", resp.StatusCode, jerr)}
	}
	if !reply.OK {
		pe := &domain.ProcessorError{Op: op, Diagnostic: reply.Error}
		if resp.StatusCode == http.StatusServiceUnavailable {
			pe.Err = domain.ErrProcessorUnavailable
		}
		return "", pe
	}
	return reply.Result, nil
}

// transportError traduce fallos de red: timeout → ErrTimeout, el resto → ErrProcessorUnavailable.
func transportError(ctx context.Context, err error) error {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &nerr) && nerr.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrProcessorUnavailable, err)
}
