package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-api/internal/application/billing"
	"github.com/jhoicas/nfe-api/internal/domain/entity"
	"github.com/jhoicas/nfe-api/internal/domain/nfe"
	"github.com/jhoicas/nfe-api/internal/infrastructure/memory"
	"github.com/jhoicas/nfe-api/internal/infrastructure/processor"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────────────────────────────────

const (
	testIssuerCNPJ    = "11222333000181"
	testJustification = "Erro de digitação no valor do produto"
)

var testEmission = time.Date(2024, 5, 10, 12, 0, 0, 0, nfe.BrasiliaZone)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func request(number int) *nfe.InvoiceRequest {
	emittedAt := testEmission
	address := nfe.Address{
		Street:           "Rua das Flores",
		Number:           "100",
		District:         "Centro",
		MunicipalityCode: "3550308",
		MunicipalityName: "Sao Paulo",
		UF:               "SP",
		PostalCode:       "01001000",
	}
	return &nfe.InvoiceRequest{
		OperationNature:  "Venda de mercadoria",
		Series:           1,
		Number:           number,
		EmittedAt:        &emittedAt,
		Direction:        "1",
		DestinationScope: "1",
		Purpose:          "1",
		FinalConsumer:    "1",
		Presence:         "1",
		Issuer: nfe.Issuer{
			CNPJ:              testIssuerCNPJ,
			Name:              "Loja Exemplo Ltda",
			Address:           address,
			StateRegistration: "111111111111",
			TaxRegime:         "1",
		},
		Recipient: nfe.Recipient{
			CPF:         "52998224725",
			Name:        "Consumidor Teste",
			Address:     address,
			IEIndicator: "9",
		},
		Items: []nfe.LineItem{{
			Code:        "P001",
			Description: "Produto de teste",
			NCM:         "61091000",
			CFOP:        "5102",
			Unit:        "UN",
			Quantity:    dec("2"),
			UnitPrice:   dec("50"),
			Total:       dec("100.00"),
			Taxes: nfe.TaxProfile{
				ICMS:   nfe.ICMS{Origin: "0", CSOSN: "102"},
				PIS:    nfe.PIS{CST: "99"},
				COFINS: nfe.COFINS{CST: "99"},
			},
		}},
		Payments: []nfe.Payment{{Method: "01", Amount: dec("100.00")}},
	}
}

// harness arma el ciclo completo sobre el procesador falso y el repositorio en memoria.
type harness struct {
	mgr   *billing.LifecycleManager
	batch *billing.BatchCoordinator
	proc  *processor.Fake
	store *memory.RecordStore
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	timeout  time.Duration
	cfg      billing.LifecycleConfig
	archiver billing.XMLArchiver
	metrics  billing.Metrics
}

func withTimeout(d time.Duration) harnessOption {
	return func(c *harnessConfig) { c.timeout = d }
}

func withArchiver(a billing.XMLArchiver) harnessOption {
	return func(c *harnessConfig) { c.archiver = a }
}

func withMetrics(m billing.Metrics) harnessOption {
	return func(c *harnessConfig) { c.metrics = m }
}

func withLifecycle(cfg billing.LifecycleConfig) harnessOption {
	return func(c *harnessConfig) { c.cfg = cfg }
}

func newHarness(opts ...harnessOption) *harness {
	hc := harnessConfig{
		timeout: 5 * time.Second,
		cfg:     billing.LifecycleConfig{QueryRetries: 2, QueryBackoff: time.Millisecond},
	}
	for _, o := range opts {
		o(&hc)
	}

	proc := processor.NewFake()
	store := memory.NewRecordStore()
	lots := memory.NewLotSequencer(0)
	session := billing.NewProcessorSession(proc, hc.timeout, hc.metrics)
	batch := billing.NewBatchCoordinator(store, store, session, lots, hc.archiver, hc.metrics, nil)
	assembler := nfe.NewAssembler(nfe.DefaultTechnicalContact(),
		nfe.WithNumericCode(func() string { return "12345678" }),
		nfe.WithClock(func() time.Time { return testEmission }),
	)
	mgr := billing.NewLifecycleManager(store, assembler, session, batch, lots, hc.cfg, nil)
	return &harness{mgr: mgr, batch: batch, proc: proc, store: store}
}

// validated crea y deja en VALIDATED una NF-e con el número dado.
func (h *harness) validated(t *testing.T, number int) *entity.InvoiceRecord {
	t.Helper()
	ctx := context.Background()
	rec, err := h.mgr.Create(ctx, request(number))
	require.NoError(t, err)
	rec, err = h.mgr.SignAndValidate(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, entity.StatusValidated, rec.Status)
	return rec
}

// authorized crea, valida y envía.
func (h *harness) authorized(t *testing.T, number int) *entity.InvoiceRecord {
	t.Helper()
	rec := h.validated(t, number)
	res, err := h.mgr.Submit(context.Background(), rec.ID, billing.SubmitOptions{})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Equal(t, entity.StatusAuthorized, res.Records[0].Status)
	return res.Records[0]
}

func (h *harness) reload(t *testing.T, id int64) *entity.InvoiceRecord {
	t.Helper()
	rec, err := h.mgr.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}
