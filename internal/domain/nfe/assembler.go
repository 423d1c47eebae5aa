package nfe

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/pkg/sefaz"
)

// TechnicalContact grupo infRespTec (responsable técnico del software).
type TechnicalContact struct {
	CNPJ    string
	Contact string
	Email   string
	Phone   string
}

// DefaultTechnicalContact valores de homologación.
func DefaultTechnicalContact() TechnicalContact {
	return TechnicalContact{
		CNPJ:    "99999999000191",
		Contact: "Suporte Tecnico",
		Email:   "suporte@seuteste.com.br",
		Phone:   "1133334444",
	}
}

// Document resultado del montaje.
type Document struct {
	XML       string
	AccessKey string
	EmittedAt time.Time
	Totals    Totals
}

// Assembler monta el XML de la NF-e 4.00. Es puro y seguro para uso concurrente.
type Assembler struct {
	contact      TechnicalContact
	stripAccents bool
	now          func() time.Time
	numericCode  func() string
}

// AssemblerOption configura el Assembler.
type AssemblerOption func(*Assembler)

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *Assembler) { a.now = now }
}

// WithNumericCode reemplaza el generador de cNF (tests).
func WithNumericCode(fn func() string) AssemblerOption {
	return func(a *Assembler) { a.numericCode = fn }
}

// WithStripAccents quita acentos de los textos libres.
func WithStripAccents(enabled bool) AssemblerOption {
	return func(a *Assembler) { a.stripAccents = enabled }
}

// NewAssembler crea el servicio de montaje.
func NewAssembler(contact TechnicalContact, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		contact:     contact,
		now:         time.Now,
		numericCode: RandomNumericCode,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble genera clave de acceso y XML en el orden fijo del layout:
// ide, emit, dest, det*, total, transp, pag, infAdic?, infRespTec.
func (a *Assembler) Assemble(req *InvoiceRequest) (*Document, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: requisición vacía", domain.ErrAssembly)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: la NF-e necesita al menos un ítem", domain.ErrAssembly)
	}
	if len(req.Payments) == 0 {
		return nil, fmt.Errorf("%w: la NF-e necesita al menos un pago", domain.ErrAssembly)
	}
	for i, it := range req.Items {
		if _, err := ICMSGroup(it.Taxes.ICMS); err != nil {
			return nil, fmt.Errorf("ítem %d: %w", i+1, err)
		}
	}

	emittedAt := a.now().Add(-EmissionBackdate)
	if req.EmittedAt != nil {
		emittedAt = *req.EmittedAt
	}
	key, err := GenerateAccessKey(KeyInputFor(req, emittedAt, a.numericCode()))
	if err != nil {
		return nil, err
	}
	totals := ComputeTotals(req.Items)

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	w := newXMLWriter(&buf)

	root := xml.StartElement{Name: xml.Name{Local: "NFe"}, Attr: []xml.Attr{attr("xmlns", sefaz.Namespace)}}
	w.token(root)
	w.start("infNFe", attr("Id", sefaz.AccessKeyPrefix+key), attr("versao", sefaz.LayoutVersion))

	a.writeIde(w, req, key, emittedAt)
	a.writeEmit(w, &req.Issuer)
	a.writeDest(w, &req.Recipient)
	for i := range req.Items {
		if err := a.writeDet(w, i+1, &req.Items[i]); err != nil {
			return nil, err
		}
	}
	writeTotal(w, totals)
	writeTransp(w, req.Transport)
	writePag(w, req.Payments)
	if req.Notes != "" {
		w.start("infAdic")
		w.text("infCpl", a.clean(req.Notes))
		w.end("infAdic")
	}
	a.writeRespTec(w)

	w.end("infNFe")
	w.token(root.End())
	if err := w.flush(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAssembly, err)
	}

	return &Document{
		XML:       buf.String(),
		AccessKey: key,
		EmittedAt: emittedAt,
		Totals:    totals,
	}, nil
}

func (a *Assembler) clean(s string) string {
	if a.stripAccents {
		return sefaz.StripAccents(s)
	}
	return s
}

func (a *Assembler) writeIde(w *xmlWriter, req *InvoiceRequest, key string, emittedAt time.Time) {
	w.start("ide")
	w.text("cUF", sefaz.UFCode(req.Issuer.Address.UF))
	w.text("cNF", key[35:43])
	w.text("natOp", a.clean(req.OperationNature))
	w.text("mod", sefaz.ModelNFe)
	w.text("serie", strconv.Itoa(req.Series))
	w.text("nNF", strconv.Itoa(req.Number))
	w.text("dhEmi", FormatDateTime(emittedAt))
	w.text("tpNF", req.Direction)
	w.text("idDest", req.DestinationScope)
	w.text("cMunFG", req.Issuer.Address.MunicipalityCode)
	w.text("tpImp", "1")
	w.text("tpEmis", sefaz.EmissionNormal)
	w.text("cDV", key[43:])
	w.text("tpAmb", req.EnvironmentOrDefault())
	w.text("finNFe", req.Purpose)
	w.text("indFinal", req.FinalConsumer)
	w.text("indPres", req.Presence)
	w.text("procEmi", "0")
	w.text("verProc", "1.0")
	w.end("ide")
}

func (a *Assembler) writeEmit(w *xmlWriter, is *Issuer) {
	w.start("emit")
	w.text("CNPJ", is.CNPJ)
	w.text("xNome", a.clean(is.Name))
	w.optText("xFant", a.clean(is.TradeName))
	a.writeAddress(w, "enderEmit", &is.Address, true)
	w.text("IE", is.StateRegistration)
	w.text("CRT", is.TaxRegime)
	w.end("emit")
}

func (a *Assembler) writeDest(w *xmlWriter, r *Recipient) {
	w.start("dest")
	w.optText("CNPJ", r.CNPJ)
	w.optText("CPF", r.CPF)
	w.text("xNome", a.clean(r.Name))
	a.writeAddress(w, "enderDest", &r.Address, false)
	w.text("indIEDest", r.IEIndicator)
	w.optText("IE", r.StateRegistration)
	w.optText("email", r.Email)
	w.end("dest")
}

// writeAddress enderEmit lleva fone; enderDest no.
func (a *Assembler) writeAddress(w *xmlWriter, local string, ad *Address, withPhone bool) {
	w.start(local)
	w.text("xLgr", a.clean(ad.Street))
	w.text("nro", ad.Number)
	w.optText("xCpl", a.clean(ad.Complement))
	w.text("xBairro", a.clean(ad.District))
	w.text("cMun", ad.MunicipalityCode)
	w.text("xMun", a.clean(ad.MunicipalityName))
	w.text("UF", ad.UF)
	w.text("CEP", ad.PostalCode)
	w.text("cPais", orDefault(ad.CountryCode, sefaz.CountryBrazilCode))
	w.text("xPais", orDefault(ad.CountryName, sefaz.CountryBrazilName))
	if withPhone {
		w.optText("fone", ad.Phone)
	}
	w.end(local)
}

func (a *Assembler) writeDet(w *xmlWriter, n int, it *LineItem) error {
	w.start("det", attr("nItem", strconv.Itoa(n)))
	w.start("prod")
	w.text("cProd", it.Code)
	ean := orDefault(it.EAN, sefaz.NoGTIN)
	w.text("cEAN", ean)
	w.text("xProd", a.clean(it.Description))
	w.text("NCM", it.NCM)
	w.text("CFOP", it.CFOP)
	w.text("uCom", it.Unit)
	w.text("qCom", FormatQuantity(it.Quantity))
	w.text("vUnCom", FormatUnitPrice(it.UnitPrice))
	w.text("vProd", FormatMoney(it.Total))
	w.text("cEANTrib", orDefault(it.TaxableEAN, ean))
	w.text("uTrib", orDefault(it.TaxableUnit, it.Unit))
	qTrib, vUnTrib := it.Quantity, it.UnitPrice
	if present(it.TaxableQuantity) {
		qTrib = *it.TaxableQuantity
	}
	if present(it.TaxableUnitPrice) {
		vUnTrib = *it.TaxableUnitPrice
	}
	w.text("qTrib", FormatQuantity(qTrib))
	w.text("vUnTrib", FormatUnitPrice(vUnTrib))
	w.text("indTot", orDefault(it.TotalIndicator, sefaz.IndTotCompoeTotal))
	w.end("prod")
	if err := writeImposto(w, it.Taxes); err != nil {
		return fmt.Errorf("ítem %d: %w", n, err)
	}
	w.end("det")
	return nil
}

func writeTotal(w *xmlWriter, t Totals) {
	zero := FormatMoney(decimal.Zero)
	w.start("total")
	w.start("ICMSTot")
	w.text("vBC", FormatMoney(t.Base))
	w.text("vICMS", FormatMoney(t.ICMS))
	for _, tag := range []string{"vICMSDeson", "vFCP", "vBCST", "vST", "vFCPST", "vFCPSTRet"} {
		w.text(tag, zero)
	}
	w.text("vProd", FormatMoney(t.Products))
	for _, tag := range []string{"vFrete", "vSeg", "vDesc", "vII", "vIPI", "vIPIDevol"} {
		w.text(tag, zero)
	}
	w.text("vPIS", FormatMoney(t.PIS))
	w.text("vCOFINS", FormatMoney(t.COFINS))
	w.text("vOutro", zero)
	w.text("vNF", FormatMoney(t.Invoice))
	w.end("ICMSTot")
	w.end("total")
}

func writeTransp(w *xmlWriter, tr *Transport) {
	mode := sefaz.ModFreteSemFrete
	if tr != nil && tr.FreightMode != "" {
		mode = tr.FreightMode
	}
	w.start("transp")
	w.text("modFrete", mode)
	w.end("transp")
}

func writePag(w *xmlWriter, payments []Payment) {
	w.start("pag")
	for _, p := range payments {
		w.start("detPag")
		w.text("indPag", orDefault(p.Indicator, sefaz.IndPagVista))
		w.text("tPag", p.Method)
		w.text("vPag", FormatMoney(p.Amount))
		w.end("detPag")
	}
	w.end("pag")
}

func (a *Assembler) writeRespTec(w *xmlWriter) {
	w.start("infRespTec")
	w.text("CNPJ", a.contact.CNPJ)
	w.text("xContato", a.contact.Contact)
	w.text("email", a.contact.Email)
	w.text("fone", a.contact.Phone)
	w.end("infRespTec")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
