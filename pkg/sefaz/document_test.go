package sefaz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/nfe-api/pkg/sefaz"
)

func TestValidateCNPJ(t *testing.T) {
	assert.NoError(t, sefaz.ValidateCNPJ("11222333000181"))
	assert.NoError(t, sefaz.ValidateCNPJ("11.222.333/0001-81"), "acepta máscara")
	assert.NoError(t, sefaz.ValidateCNPJ("99999999000191"))

	assert.Error(t, sefaz.ValidateCNPJ("11222333000182"), "DV incorrecto")
	assert.Error(t, sefaz.ValidateCNPJ("1122233300018"), "13 dígitos")
	assert.Error(t, sefaz.ValidateCNPJ("00000000000000"), "dígitos repetidos")
}

func TestValidateCPF(t *testing.T) {
	assert.NoError(t, sefaz.ValidateCPF("52998224725"))
	assert.NoError(t, sefaz.ValidateCPF("529.982.247-25"))

	assert.Error(t, sefaz.ValidateCPF("52998224724"))
	assert.Error(t, sefaz.ValidateCPF("11111111111"))
	assert.Error(t, sefaz.ValidateCPF("5299822472"))
}

func TestUFCode_TablaYFallback(t *testing.T) {
	assert.Equal(t, "35", sefaz.UFCode("SP"))
	assert.Equal(t, "33", sefaz.UFCode("RJ"))
	assert.Equal(t, "17", sefaz.UFCode("TO"))
	assert.Equal(t, sefaz.DefaultUFCode, sefaz.UFCode("XX"), "UF desconocida cae en el código por defecto")
	assert.Equal(t, sefaz.DefaultUFCode, sefaz.UFCode(""))
	assert.False(t, sefaz.IsKnownUF("XX"))
}

func TestStripAccents(t *testing.T) {
	assert.Equal(t, "Razao Social Acoes", sefaz.StripAccents("Razão  Social Ações"))
	assert.Equal(t, "Sao Paulo", sefaz.StripAccents("São Paulo"))
	assert.Equal(t, "SEM GTIN", sefaz.StripAccents("SEM GTIN"))
}

func TestOnlyDigitsEIsDigits(t *testing.T) {
	assert.Equal(t, "35240111222333000181", sefaz.OnlyDigits("35 2401 11.222.333/0001-81"))
	assert.True(t, sefaz.IsDigits("0123"))
	assert.False(t, sefaz.IsDigits(""))
	assert.False(t, sefaz.IsDigits("12a"))
}
