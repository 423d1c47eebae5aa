package entity_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/internal/domain/entity"
)

func TestStatus_Transiciones(t *testing.T) {
	allowed := []struct{ from, to entity.Status }{
		{entity.StatusDraft, entity.StatusValidated},
		{entity.StatusDraft, entity.StatusDenied},
		{entity.StatusValidated, entity.StatusValidated},
		{entity.StatusValidated, entity.StatusAuthorized},
		{entity.StatusValidated, entity.StatusRejected},
		{entity.StatusValidated, entity.StatusDenied},
		{entity.StatusAuthorized, entity.StatusCancelled},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}

	forbidden := []struct{ from, to entity.Status }{
		{entity.StatusDraft, entity.StatusAuthorized},
		{entity.StatusDraft, entity.StatusRejected},
		{entity.StatusDraft, entity.StatusCancelled},
		{entity.StatusValidated, entity.StatusCancelled},
		{entity.StatusValidated, entity.StatusDraft},
		{entity.StatusAuthorized, entity.StatusRejected},
		{entity.StatusRejected, entity.StatusAuthorized},
		{entity.StatusCancelled, entity.StatusAuthorized},
		{entity.StatusDenied, entity.StatusValidated},
	}
	for _, tc := range forbidden {
		assert.False(t, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}

	assert.True(t, entity.StatusCancelled.IsFinal())
	assert.True(t, entity.StatusRejected.IsFinal())
	assert.True(t, entity.StatusDenied.IsFinal())
	assert.False(t, entity.StatusAuthorized.IsFinal())
}

func TestInvoiceRecord_TransitionTo(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	rec := &entity.InvoiceRecord{Status: entity.StatusDraft}

	err := rec.TransitionTo(entity.StatusAuthorized, now)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, entity.StatusDraft, rec.Status)

	require.NoError(t, rec.TransitionTo(entity.StatusValidated, now))
	assert.Equal(t, entity.StatusValidated, rec.Status)
	assert.Equal(t, now, rec.UpdatedAt)
}

func TestParseStatus(t *testing.T) {
	st, err := entity.ParseStatus("AUTHORIZED")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAuthorized, st)

	_, err = entity.ParseStatus("rascunho")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestInvoiceRecord_CloneNoComparteReferencias(t *testing.T) {
	at := time.Now()
	code := 100
	rec := &entity.InvoiceRecord{
		AuthorizedAt: &at,
		GatewayCode:  &code,
		Request:      json.RawMessage(`{"serie":1}`),
	}
	c := rec.Clone()
	*c.GatewayCode = 204
	c.Request[0] = '['
	assert.Equal(t, 100, *rec.GatewayCode)
	assert.Equal(t, byte('{'), rec.Request[0])

	assert.Equal(t, "b", (&entity.InvoiceRecord{OriginalXML: "a", SignedXML: "b"}).CurrentXML())
	assert.Equal(t, "a", (&entity.InvoiceRecord{OriginalXML: "a"}).CurrentXML())
}
