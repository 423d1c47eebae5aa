package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-api/internal/infrastructure/metrics"
)

func TestPrometheus_CuentaLlamadasYLotes(t *testing.T) {
	p := metrics.NewPrometheus()

	p.ProcessorCall("submit", 120*time.Millisecond, nil)
	p.ProcessorCall("submit", time.Second, errors.New("timeout"))
	p.ProcessorCall("sign", 10*time.Millisecond, nil)
	p.BatchOutcome("authorized", 3)
	p.BatchOutcome("authorized", 2)
	p.BatchOutcome("rejected", 1)

	n, err := testutil.GatherAndCount(p.Registry(), metrics.MetricProcessorCallsTotal)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "una serie por (op, result)")

	n, err = testutil.GatherAndCount(p.Registry(), metrics.MetricBatchDocumentsTotal)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPrometheus_HandlerExponeLasMetricas(t *testing.T) {
	p := metrics.NewPrometheus()
	p.BatchOutcome("denied", 1)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `nfe_batches_total{outcome="denied"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
