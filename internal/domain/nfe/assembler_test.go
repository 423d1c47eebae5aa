package nfe_test

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/internal/domain/nfe"
)

func parseXML(t *testing.T, text string) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(text))
	return doc
}

func text(t *testing.T, doc *etree.Document, path string) string {
	t.Helper()
	el := doc.FindElement(path)
	require.NotNil(t, el, "no existe %s", path)
	return el.Text()
}

// ── Ejemplo de punta a punta ──

func TestAssemble_EjemploSimplesNacional(t *testing.T) {
	out, err := fixedAssembler().Assemble(validRequest())
	require.NoError(t, err)
	assert.Equal(t, testExpectedKey, out.AccessKey)

	doc := parseXML(t, out.XML)
	assert.Equal(t, "100.00", text(t, doc, "//total/ICMSTot/vProd"))
	assert.Equal(t, "100.00", text(t, doc, "//total/ICMSTot/vNF"))
	assert.Equal(t, "0.00", text(t, doc, "//total/ICMSTot/vPIS"))
	assert.Equal(t, "0.00", text(t, doc, "//total/ICMSTot/vCOFINS"))
	assert.NotNil(t, doc.FindElement("//det/imposto/PIS/PISOutr"))
	assert.NotNil(t, doc.FindElement("//det/imposto/COFINS/COFINSOutr"))
	assert.NotNil(t, doc.FindElement("//det/imposto/ICMS/ICMSSN101"))
	assert.Equal(t, "100.00", text(t, doc, "//pag/detPag/vPag"))

	assert.True(t, out.Totals.Products.Equal(dec("100")))
	assert.True(t, out.Totals.Invoice.Equal(dec("100")))
}

func TestAssemble_CabeceraYOrdenDeBloques(t *testing.T) {
	out, err := fixedAssembler().Assemble(validRequest())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.XML, `<?xml version="1.0" encoding="UTF-8"?>`))

	doc := parseXML(t, out.XML)
	root := doc.Root()
	require.Equal(t, "NFe", root.Tag)
	assert.Equal(t, "http://www.portalfiscal.inf.br/nfe", root.SelectAttrValue("xmlns", ""))

	inf := root.SelectElement("infNFe")
	require.NotNil(t, inf)
	assert.Equal(t, "NFe"+testExpectedKey, inf.SelectAttrValue("Id", ""))
	assert.Equal(t, "4.00", inf.SelectAttrValue("versao", ""))
	assert.Equal(t,
		[]string{"ide", "emit", "dest", "det", "total", "transp", "pag", "infRespTec"},
		childTags(inf))

	ide := inf.SelectElement("ide")
	assert.Equal(t,
		[]string{"cUF", "cNF", "natOp", "mod", "serie", "nNF", "dhEmi", "tpNF", "idDest", "cMunFG",
			"tpImp", "tpEmis", "cDV", "tpAmb", "finNFe", "indFinal", "indPres", "procEmi", "verProc"},
		childTags(ide))
	assert.Equal(t, "35", text(t, doc, "//ide/cUF"))
	assert.Equal(t, testNumericCode, text(t, doc, "//ide/cNF"))
	assert.Equal(t, "5", text(t, doc, "//ide/cDV"))
	assert.Equal(t, "1", text(t, doc, "//ide/serie"))
	assert.Equal(t, "123", text(t, doc, "//ide/nNF"))
	assert.Equal(t, testEmissionRFC, text(t, doc, "//ide/dhEmi"))
	assert.Equal(t, "3550308", text(t, doc, "//ide/cMunFG"))

	assert.Equal(t,
		[]string{"vBC", "vICMS", "vICMSDeson", "vFCP", "vBCST", "vST", "vFCPST", "vFCPSTRet", "vProd",
			"vFrete", "vSeg", "vDesc", "vII", "vIPI", "vIPIDevol", "vPIS", "vCOFINS", "vOutro", "vNF"},
		childTags(doc.FindElement("//ICMSTot")))

	resp := inf.SelectElement("infRespTec")
	assert.Equal(t, []string{"CNPJ", "xContato", "email", "fone"}, childTags(resp))
	assert.Equal(t, "99999999000191", resp.SelectElement("CNPJ").Text())
}

func TestAssemble_EmitYDestConDefaults(t *testing.T) {
	out, err := fixedAssembler().Assemble(validRequest())
	require.NoError(t, err)
	doc := parseXML(t, out.XML)

	assert.Equal(t,
		[]string{"xLgr", "nro", "xBairro", "cMun", "xMun", "UF", "CEP", "cPais", "xPais", "fone"},
		childTags(doc.FindElement("//emit/enderEmit")))
	assert.Equal(t, "1058", text(t, doc, "//emit/enderEmit/cPais"))
	assert.Equal(t, "BRASIL", text(t, doc, "//emit/enderEmit/xPais"))
	assert.Equal(t, []string{"CNPJ", "xNome", "xFant", "enderEmit", "IE", "CRT"}, childTags(doc.FindElement("//emit")))

	dest := doc.FindElement("//dest")
	assert.Equal(t, []string{"CPF", "xNome", "enderDest", "indIEDest"}, childTags(dest))
	assert.Nil(t, dest.FindElement("enderDest/fone"), "enderDest no lleva fone")
}

func TestAssemble_FormatoNumericoPorCampo(t *testing.T) {
	req := validRequest()
	req.Items[0].Quantity = dec("3")
	req.Items[0].UnitPrice = dec("33.3333333333")
	req.Items[0].Total = dec("100")
	out, err := fixedAssembler().Assemble(req)
	require.NoError(t, err)
	doc := parseXML(t, out.XML)

	assert.Equal(t, "3.0000", text(t, doc, "//prod/qCom"))
	assert.Equal(t, "33.3333333333", text(t, doc, "//prod/vUnCom"))
	assert.Equal(t, "100.00", text(t, doc, "//prod/vProd"))
	assert.Equal(t, "SEM GTIN", text(t, doc, "//prod/cEAN"))
	assert.Equal(t, "SEM GTIN", text(t, doc, "//prod/cEANTrib"))
	assert.Equal(t, "UN", text(t, doc, "//prod/uTrib"))
	assert.Equal(t, "3.0000", text(t, doc, "//prod/qTrib"))
	assert.Equal(t, "33.3333333333", text(t, doc, "//prod/vUnTrib"))
	assert.Equal(t, "1", text(t, doc, "//prod/indTot"))
}

func TestAssemble_CamposTributablesIndependientes(t *testing.T) {
	req := validRequest()
	req.Items[0].EAN = "7891234567895"
	req.Items[0].TaxableUnit = "KG"
	req.Items[0].TaxableQuantity = decPtr("2.5")
	req.Items[0].TaxableUnitPrice = decPtr("40")
	out, err := fixedAssembler().Assemble(req)
	require.NoError(t, err)
	doc := parseXML(t, out.XML)

	assert.Equal(t, "7891234567895", text(t, doc, "//prod/cEANTrib"))
	assert.Equal(t, "KG", text(t, doc, "//prod/uTrib"))
	assert.Equal(t, "2.5000", text(t, doc, "//prod/qTrib"))
	assert.Equal(t, "40.0000000000", text(t, doc, "//prod/vUnTrib"))
	assert.Equal(t, "1.0000", text(t, doc, "//prod/qCom"))
}

func TestAssemble_TransportePagoYNotasPorDefecto(t *testing.T) {
	req := validRequest()
	req.Transport = nil
	req.Notes = "Pedido 42"
	req.Payments = append(req.Payments, nfe.Payment{Indicator: "1", Method: "15", Amount: dec("0")})
	out, err := fixedAssembler().Assemble(req)
	require.NoError(t, err)
	doc := parseXML(t, out.XML)

	assert.Equal(t, "9", text(t, doc, "//transp/modFrete"))
	pags := doc.FindElements("//pag/detPag")
	require.Len(t, pags, 2)
	assert.Equal(t, "0", pags[0].SelectElement("indPag").Text())
	assert.Equal(t, "1", pags[1].SelectElement("indPag").Text())
	assert.Equal(t, "0.00", pags[1].SelectElement("vPag").Text())
	assert.Equal(t, "Pedido 42", text(t, doc, "//infAdic/infCpl"))

	inf := doc.FindElement("//infNFe")
	tags := childTags(inf)
	assert.Equal(t, "infAdic", tags[len(tags)-2])
}

func TestAssemble_DhEmiPorDefectoDosMinutosAntes(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	req := validRequest()
	req.EmittedAt = nil
	out, err := fixedAssembler(nfe.WithClock(func() time.Time { return now })).Assemble(req)
	require.NoError(t, err)

	doc := parseXML(t, out.XML)
	assert.Equal(t, "2024-05-10T11:58:00-03:00", text(t, doc, "//ide/dhEmi"))
	assert.True(t, out.EmittedAt.Equal(now.Add(-2*time.Minute)))
}

func TestAssemble_TpAmbPorDefectoHomologacion(t *testing.T) {
	req := validRequest()
	req.Environment = ""
	out, err := fixedAssembler().Assemble(req)
	require.NoError(t, err)
	assert.Equal(t, "2", text(t, parseXML(t, out.XML), "//ide/tpAmb"))
}

func TestAssemble_QuitaAcentosSiSeConfigura(t *testing.T) {
	req := validRequest()
	req.Issuer.Name = "Comércio  São João"
	out, err := fixedAssembler(nfe.WithStripAccents(true)).Assemble(req)
	require.NoError(t, err)
	assert.Equal(t, "Comercio Sao Joao", text(t, parseXML(t, out.XML), "//emit/xNome"))

	out, err = fixedAssembler().Assemble(req)
	require.NoError(t, err)
	assert.Equal(t, "Comércio  São João", text(t, parseXML(t, out.XML), "//emit/xNome"))
}

func TestAssemble_EscapaCaracteresEspeciales(t *testing.T) {
	req := validRequest()
	req.Issuer.Name = "Silva & Filhos <Ltda>"
	out, err := fixedAssembler().Assemble(req)
	require.NoError(t, err)
	assert.Contains(t, out.XML, "Silva &amp; Filhos &lt;Ltda&gt;")
	assert.Equal(t, "Silva & Filhos <Ltda>", text(t, parseXML(t, out.XML), "//emit/xNome"))
}

// ── Errores de montaje ──

func TestAssemble_Errores(t *testing.T) {
	cases := []struct {
		name string
		mut  func(r *nfe.InvoiceRequest)
		want error
	}{
		{"sin ítems", func(r *nfe.InvoiceRequest) { r.Items = nil }, domain.ErrAssembly},
		{"sin pagos", func(r *nfe.InvoiceRequest) { r.Payments = nil }, domain.ErrAssembly},
		{"ICMS sin CST ni CSOSN", func(r *nfe.InvoiceRequest) { r.Items[0].Taxes.ICMS.CSOSN = "" }, domain.ErrAssembly},
		{"ICMS con CST y CSOSN", func(r *nfe.InvoiceRequest) { r.Items[0].Taxes.ICMS.CST = "00" }, domain.ErrAssembly},
		{"CNPJ con 13 dígitos", func(r *nfe.InvoiceRequest) { r.Issuer.CNPJ = "1122233300018" }, domain.ErrInvalidKeyInput},
		{"serie fuera de rango", func(r *nfe.InvoiceRequest) { r.Series = 1000 }, domain.ErrInvalidKeyInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mut(req)
			out, err := fixedAssembler().Assemble(req)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := fixedAssembler().Assemble(nil)
	assert.ErrorIs(t, err, domain.ErrAssembly)
}

// ── Propiedades ──

// La suma de vProd de los ítems es el vProd del total con dos decimales.
func TestAssemble_PropiedadTotalDeProductos(t *testing.T) {
	f := gofakeit.New(7)
	for round := 0; round < 50; round++ {
		req := validRequest()
		n := f.IntRange(1, 12)
		req.Items = req.Items[:0]
		sum := decimal.Zero
		for i := 0; i < n; i++ {
			v := decimal.NewFromFloat(f.Float64Range(0.01, 50_000)).Round(2)
			item := simplesItem(v.StringFixed(2))
			item.Description = f.ProductName()
			req.Items = append(req.Items, item)
			sum = sum.Add(v)
		}
		out, err := fixedAssembler().Assemble(req)
		require.NoError(t, err)

		doc := parseXML(t, out.XML)
		require.Equal(t, sum.StringFixed(2), text(t, doc, "//ICMSTot/vProd"))
		require.Equal(t, sum.StringFixed(2), text(t, doc, "//ICMSTot/vNF"))
		require.Len(t, doc.FindElements("//det"), n)
	}
}

// Cada ítem trae exactamente un grupo dentro de ICMS, sea cual sea el régimen.
func TestAssemble_PropiedadUnSoloGrupoICMS(t *testing.T) {
	req := validRequest()
	normal := simplesItem("50.00")
	normal.Taxes.ICMS = nfe.ICMS{Origin: "0", CST: "00", Base: decPtr("50"), Rate: decPtr("12"), Value: decPtr("6")}
	req.Items = append(req.Items, normal)
	out, err := fixedAssembler().Assemble(req)
	require.NoError(t, err)

	doc := parseXML(t, out.XML)
	for _, icms := range doc.FindElements("//det/imposto/ICMS") {
		assert.Len(t, icms.ChildElements(), 1)
	}
	assert.Equal(t, "6.00", text(t, doc, "//ICMSTot/vICMS"))
	assert.Equal(t, "50.00", text(t, doc, "//ICMSTot/vBC"))
	assert.Equal(t, "150.00", text(t, doc, "//ICMSTot/vProd"))
	assert.Equal(t, "2", doc.FindElements("//det")[1].SelectAttrValue("nItem", ""))
}

func TestAssemble_EsSeguroEnParalelo(t *testing.T) {
	a := fixedAssembler()
	var wg sync.WaitGroup
	keys := make([]string, 16)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := a.Assemble(validRequest())
			if err == nil {
				keys[i] = out.AccessKey
			}
		}(i)
	}
	wg.Wait()
	for _, k := range keys {
		assert.Equal(t, testExpectedKey, k)
	}
}
