// Package processor contiene las implementaciones de billing.DocumentProcessor:
// Fake (en memoria) y Bridge (daemon del procesador vía HTTP).
package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"

	"github.com/jhoicas/nfe-api/internal/application/billing"
	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/internal/domain/nfe"
)

var _ billing.DocumentProcessor = (*Fake)(nil)

// Operaciones del procesador (nombres usados en Call, métricas y comandos del bridge).
const (
	OpLoad            = "load"
	OpSign            = "sign"
	OpValidate        = "validate"
	OpText            = "text"
	OpSubmit          = "submit"
	OpQueryStatus     = "query_status"
	OpCancel          = "cancel"
	OpVoidRange       = "void_range"
	OpRenderPrintable = "render_printable"
	OpClear           = "clear"
	OpServiceStatus   = "service_status"
)

// Call una invocación registrada por Fake.
type Call struct {
	Op  string
	Key string // clave de acceso, si aplica
	Lot int64
}

// Fake procesador en memoria: registra el orden de las llamadas y devuelve
// respuestas y errores programados. Seguro para uso concurrente; Overlapped
// informa si dos secuencias llegaron a pisarse.
type Fake struct {
	mu         sync.Mutex
	loaded     []string
	calls      []Call
	responses  map[string]string
	errs       map[string]error
	delay      map[string]time.Duration
	active     int
	overlapped bool
	now        func() time.Time
}

// NewFake procesador que autoriza todo.
func NewFake() *Fake {
	return &Fake{
		responses: map[string]string{},
		errs:      map[string]error{},
		delay:     map[string]time.Duration{},
		now:       time.Now,
	}
}

// SetResponse reemplaza la respuesta por defecto de op.
func (f *Fake) SetResponse(op, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[op] = raw
}

// FailOn hace que op devuelva err (nil lo quita).
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// SetDelay demora op; respeta la cancelación del ctx.
func (f *Fake) SetDelay(op string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay[op] = d
}

// Calls copia de las llamadas registradas.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops solo los nombres, en orden.
func (f *Fake) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Op
	}
	return out
}

// Loaded documentos cargados en este momento.
func (f *Fake) Loaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loaded...)
}

// Overlapped verdadero si alguna vez hubo dos operaciones en curso a la vez.
func (f *Fake) Overlapped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlapped
}

// enter registra la llamada, aplica demora y error programados.
func (f *Fake) enter(ctx context.Context, c Call) (func(), error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.active++
	if f.active > 1 {
		f.overlapped = true
	}
	d := f.delay[c.Op]
	err := f.errs[c.Op]
	f.mu.Unlock()

	leave := func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			leave()
			return nil, fmt.Errorf("%s: %w", c.Op, ctx.Err())
		}
	}
	if err != nil {
		leave()
		return nil, err
	}
	return leave, nil
}

func (f *Fake) response(op, def string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if raw, ok := f.responses[op]; ok {
		return raw
	}
	return def
}

func (f *Fake) Load(ctx context.Context, doc string) error {
	key, _ := nfe.ExtractAccessKey(doc)
	leave, err := f.enter(ctx, Call{Op: OpLoad, Key: key})
	if err != nil {
		return err
	}
	defer leave()
	if strings.TrimSpace(doc) == "" {
		return &domain.ProcessorError{Op: OpLoad, Diagnostic: "documento vazio"}
	}
	f.mu.Lock()
	f.loaded = append(f.loaded, doc)
	f.mu.Unlock()
	return nil
}

// Sign agrega un elemento Signature a cada documento cargado.
func (f *Fake) Sign(ctx context.Context) error {
	leave, err := f.enter(ctx, Call{Op: OpSign})
	if err != nil {
		return err
	}
	defer leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loaded) == 0 {
		return &domain.ProcessorError{Op: OpSign, Diagnostic: "nenhuma NF-e carregada"}
	}
	for i, doc := range f.loaded {
		signed, err := fakeSign(doc)
		if err != nil {
			return &domain.ProcessorError{Op: OpSign, Diagnostic: err.Error()}
		}
		f.loaded[i] = signed
	}
	return nil
}

// Validate exige que cada documento esté firmado.
func (f *Fake) Validate(ctx context.Context) error {
	leave, err := f.enter(ctx, Call{Op: OpValidate})
	if err != nil {
		return err
	}
	defer leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loaded) == 0 {
		return &domain.ProcessorError{Op: OpValidate, Diagnostic: "nenhuma NF-e carregada"}
	}
	for _, doc := range f.loaded {
		if !strings.Contains(doc, "<Signature") {
			return &domain.ProcessorError{Op: OpValidate, Diagnostic: "Rejeição: NF-e não assinada"}
		}
	}
	return nil
}

func (f *Fake) Text(ctx context.Context, index int) (string, error) {
	leave, err := f.enter(ctx, Call{Op: OpText})
	if err != nil {
		return "", err
	}
	defer leave()

	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.loaded) {
		return "", &domain.ProcessorError{Op: OpText, Diagnostic: fmt.Sprintf("índice %d fora da lista", index)}
	}
	return f.loaded[index], nil
}

// Submit por defecto autoriza el lote con un protocolo por documento.
func (f *Fake) Submit(ctx context.Context, lot int64, print, sync, compressed bool) (string, error) {
	leave, err := f.enter(ctx, Call{Op: OpSubmit, Lot: lot})
	if err != nil {
		return "", err
	}
	defer leave()

	f.mu.Lock()
	docs := append([]string(nil), f.loaded...)
	f.mu.Unlock()
	if len(docs) == 0 {
		return "", &domain.ProcessorError{Op: OpSubmit, Diagnostic: "nenhuma NF-e carregada"}
	}

	received := f.now().In(nfe.BrasiliaZone).Format(nfe.DateTimeLayout)
	var b strings.Builder
	fmt.Fprintf(&b, "[Envio]\nCStat=100\nXMotivo=Autorizado o uso da NF-e\nnRec=%015d\ndhRecbto=%s\nnProt=135%012d\n", lot, received, lot)
	for i, doc := range docs {
		key, _ := nfe.ExtractAccessKey(doc)
		fmt.Fprintf(&b, "[NFe%s]\nchNFe=%s\nCStat=100\nnProt=135%09d%03d\n", key, key, lot, i+1)
	}
	return f.response(OpSubmit, b.String()), nil
}

func (f *Fake) QueryStatus(ctx context.Context, accessKey string, extractEvents bool) (string, error) {
	leave, err := f.enter(ctx, Call{Op: OpQueryStatus, Key: accessKey})
	if err != nil {
		return "", err
	}
	defer leave()
	def := fmt.Sprintf("CStat=100\nXMotivo=Autorizado o uso da NF-e\nchNFe=%s\nnProt=135000000000001\n", accessKey)
	return f.response(OpQueryStatus, def), nil
}

func (f *Fake) Cancel(ctx context.Context, accessKey, justification, taxID string, lot int64) (string, error) {
	leave, err := f.enter(ctx, Call{Op: OpCancel, Key: accessKey, Lot: lot})
	if err != nil {
		return "", err
	}
	defer leave()
	def := fmt.Sprintf("[Cancelamento]\nCStat=135\nXMotivo=Evento registrado e vinculado a NF-e\nchNFe=%s\nCNPJ=%s\nnProt=135000000000002\n", accessKey, taxID)
	return f.response(OpCancel, def), nil
}

func (f *Fake) VoidRange(ctx context.Context, req nfe.VoidRange) (string, error) {
	leave, err := f.enter(ctx, Call{Op: OpVoidRange})
	if err != nil {
		return "", err
	}
	defer leave()
	def := fmt.Sprintf("[Inutilizacao]\nCStat=102\nXMotivo=Inutilizacao de numero homologado\nnNFIni=%d\nnNFFin=%d\n", req.First, req.Last)
	return f.response(OpVoidRange, def), nil
}

func (f *Fake) RenderPrintable(ctx context.Context) error {
	leave, err := f.enter(ctx, Call{Op: OpRenderPrintable})
	if err != nil {
		return err
	}
	defer leave()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loaded) == 0 {
		return &domain.ProcessorError{Op: OpRenderPrintable, Diagnostic: "nenhuma NF-e carregada"}
	}
	return nil
}

func (f *Fake) Clear(ctx context.Context) error {
	leave, err := f.enter(ctx, Call{Op: OpClear})
	if err != nil {
		return err
	}
	defer leave()
	f.mu.Lock()
	f.loaded = nil
	f.mu.Unlock()
	return nil
}

func (f *Fake) ServiceStatus(ctx context.Context) (string, error) {
	leave, err := f.enter(ctx, Call{Op: OpServiceStatus})
	if err != nil {
		return "", err
	}
	defer leave()
	def := "[Status]\nCStat=107\nXMotivo=Servico em Operacao\ntMed=1\n"
	return f.response(OpServiceStatus, def), nil
}

// fakeSign inserta una firma ficticia al final de la raíz NFe.
func fakeSign(doc string) (string, error) {
	d := etree.NewDocument()
	if err := d.ReadFromString(doc); err != nil {
		return "", fmt.Errorf("XML mal formado: %v", err)
	}
	root := d.Root()
	if root == nil {
		return "", fmt.Errorf("XML sem raiz")
	}
	if root.FindElement("Signature") != nil {
		return doc, nil
	}
	sig := root.CreateElement("Signature")
	sig.CreateAttr("xmlns", "http://www.w3.org/2000/09/xmldsig#")
	sig.CreateElement("SignatureValue").SetText("ZmFrZQ==")
	d.Indent(2)
	return d.WriteToString()
}
