package nfe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/internal/domain/nfe"
)

func TestInspectDocument_LeeLoMontado(t *testing.T) {
	out, err := fixedAssembler().Assemble(validRequest())
	require.NoError(t, err)

	info, err := nfe.InspectDocument(out.XML)
	require.NoError(t, err)
	assert.Equal(t, testExpectedKey, info.AccessKey)
	assert.Equal(t, 1, info.Series)
	assert.Equal(t, 123, info.Number)
	assert.Equal(t, "Venda de mercadoria", info.OperationNature)
	assert.Equal(t, testIssuerCNPJ, info.IssuerCNPJ)
	assert.Equal(t, "SP", info.IssuerUF)
	assert.Equal(t, testRecipientCPF, info.RecipientDoc)
	assert.Equal(t, 1, info.ItemCount)
	assert.True(t, info.ProductTotal.Equal(dec("100")))
	require.NotNil(t, info.EmittedAt)
	assert.True(t, info.EmittedAt.Equal(testEmission()))
}

func TestInspectDocument_AceptaNfeProc(t *testing.T) {
	out, err := fixedAssembler().Assemble(validRequest())
	require.NoError(t, err)
	body := out.XML[len(`<?xml version="1.0" encoding="UTF-8"?>`)+1:]
	wrapped := `<nfeProc versao="4.00" xmlns="http://www.portalfiscal.inf.br/nfe">` + body + `<protNFe/></nfeProc>`

	key, err := nfe.ExtractAccessKey(wrapped)
	require.NoError(t, err)
	assert.Equal(t, testExpectedKey, key)
}

func TestInspectDocument_Errores(t *testing.T) {
	_, err := nfe.InspectDocument("<NFe><infNFe")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = nfe.InspectDocument("<NFe/>")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = nfe.InspectDocument(`<NFe><infNFe Id="NFe123"/></NFe>`)
	assert.ErrorIs(t, err, domain.ErrInvalidKeyInput)
}
