package nfe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-api/internal/domain/nfe"
)

func TestParseResponse_SeccionEnvioAutorizada(t *testing.T) {
	r := nfe.ParseResponse("[Envio]\nCStat=100\nXMotivo=Autorizado\n")

	assert.Equal(t, map[string]any{
		"Envio": map[string]string{"CStat": "100", "XMotivo": "Autorizado"},
	}, r.Map())
	assert.True(t, r.Success())
	assert.Equal(t, "100", r.Code())
	assert.Equal(t, "Autorizado", r.Reason())
}

func TestParseResponse_CodigosDeExito(t *testing.T) {
	for _, code := range []string{"100", "101", "150"} {
		assert.True(t, nfe.ParseResponse("CStat="+code).Success(), code)
	}
	for _, code := range []string{"103", "104", "110", "204", "539", ""} {
		assert.False(t, nfe.ParseResponse("CStat="+code).Success(), code)
	}
	assert.False(t, nfe.ParseResponse("").Success())
}

func TestParseResponse_EnvioTienePrioridadSobreNivelSuperior(t *testing.T) {
	raw := "CStat=103\nXMotivo=Lote recebido\n\n[Envio]\nCStat=204\nXMotivo=Duplicidade de NF-e\n"
	r := nfe.ParseResponse(raw)
	assert.Equal(t, "204", r.Code())
	assert.Equal(t, "Duplicidade de NF-e", r.Reason())
	assert.False(t, r.Success())
}

func TestParseResponse_NivelSuperiorYMsg(t *testing.T) {
	r := nfe.ParseResponse("Msg=Certificado vencido")
	assert.Equal(t, "", r.Code())
	assert.Equal(t, "Certificado vencido", r.Reason())
	assert.False(t, r.Success())
}

func TestParseResponse_CortaEnElPrimerIgualYRecorta(t *testing.T) {
	r := nfe.ParseResponse("  [Retorno]  \n  XMotivo = Rejeicao: campo=valor invalido  \nlinha sem separador\n")
	v, ok := r.Value("Retorno", "XMotivo")
	require.True(t, ok)
	assert.Equal(t, "Rejeicao: campo=valor invalido", v)
	assert.Len(t, r.Sections["Retorno"], 1)
}

func TestParseResponse_SeccionRepetidaSeReinicia(t *testing.T) {
	r := nfe.ParseResponse("[NFe1]\nA=1\nB=2\n[NFe1]\nA=3\n")
	assert.Equal(t, map[string]string{"A": "3"}, r.Sections["NFe1"])
}

func TestParseResponse_ClaveSinDistinguirMayusculas(t *testing.T) {
	r := nfe.ParseResponse("[Envio]\ncstat=150\nxmotivo=Autorizado fora de prazo\n")
	assert.True(t, r.Success())
	assert.Equal(t, "Autorizado fora de prazo", r.Reason())
}

func TestParseResponse_ProtocoloYFechaDeRecibo(t *testing.T) {
	raw := `[Envio]
CStat=100
XMotivo=Autorizado o uso da NF-e

[NFe35240511222333000181550010000001231123456785]
nProt=135240000012345
DhRecbto=10/05/2024 12:01:30
`
	r := nfe.ParseResponse(raw)
	assert.Equal(t, "135240000012345", r.Protocol())
	at, ok := r.ReceivedAt()
	require.True(t, ok)
	assert.True(t, at.Equal(time.Date(2024, 5, 10, 15, 1, 30, 0, time.UTC)))
}

func TestParseResponse_ReciboAsincronoYDenegacion(t *testing.T) {
	r := nfe.ParseResponse("[Envio]\nCStat=103\nnRec=351000012345678\n")
	assert.True(t, r.LotReceived())
	assert.Equal(t, "351000012345678", r.ReceiptNumber())
	assert.True(t, nfe.ParseResponse("[Envio]\nCStat=105\n").LotReceived(), "lote em processamento")
	assert.False(t, nfe.ParseResponse("[Envio]\nCStat=100\n").LotReceived())

	assert.True(t, nfe.ParseResponse("[Envio]\nCStat=302\n").Denied())
	assert.False(t, nfe.ParseResponse("[Envio]\nCStat=204\n").Denied())
}

func TestParseResponse_FechaISO(t *testing.T) {
	r := nfe.ParseResponse("dhRecbto=2024-05-10T12:01:30-03:00")
	at, ok := r.ReceivedAt()
	require.True(t, ok)
	assert.Equal(t, 15, at.UTC().Hour())

	_, ok = nfe.ParseResponse("dhRecbto=ontem").ReceivedAt()
	assert.False(t, ok)
}
