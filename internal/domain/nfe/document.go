package nfe

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/pkg/sefaz"
)

// DocumentInfo datos de cabecera leídos de un XML de NF-e existente
// (montado aquí, firmado por el procesador o importado).
type DocumentInfo struct {
	AccessKey       string
	Series          int
	Number          int
	OperationNature string
	Direction       string
	Purpose         string
	Environment     string
	EmittedAt       *time.Time
	IssuerCNPJ      string
	IssuerName      string
	IssuerUF        string
	RecipientDoc    string
	RecipientName   string
	ItemCount       int
	ProductTotal    decimal.Decimal
	InvoiceTotal    decimal.Decimal
	ICMSTotal       decimal.Decimal
	PISTotal        decimal.Decimal
	COFINSTotal     decimal.Decimal
}

// InspectDocument lee el XML (NFe o nfeProc) y valida la clave del atributo Id.
func InspectDocument(xmlText string) (*DocumentInfo, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlText); err != nil {
		return nil, fmt.Errorf("%w: XML mal formado: %v", domain.ErrInvalidInput, err)
	}
	inf := doc.FindElement("//infNFe")
	if inf == nil {
		return nil, fmt.Errorf("%w: el XML no contiene infNFe", domain.ErrInvalidInput)
	}
	key := strings.TrimPrefix(inf.SelectAttrValue("Id", ""), sefaz.AccessKeyPrefix)
	if err := ValidateAccessKey(key); err != nil {
		return nil, err
	}

	info := &DocumentInfo{
		AccessKey:       key,
		OperationNature: childText(inf, "ide/natOp"),
		Direction:       childText(inf, "ide/tpNF"),
		Purpose:         childText(inf, "ide/finNFe"),
		Environment:     childText(inf, "ide/tpAmb"),
		IssuerCNPJ:      childText(inf, "emit/CNPJ"),
		IssuerName:      childText(inf, "emit/xNome"),
		IssuerUF:        childText(inf, "emit/enderEmit/UF"),
		RecipientName:   childText(inf, "dest/xNome"),
		ItemCount:       len(inf.SelectElements("det")),
		ProductTotal:    childDecimal(inf, "total/ICMSTot/vProd"),
		InvoiceTotal:    childDecimal(inf, "total/ICMSTot/vNF"),
		ICMSTotal:       childDecimal(inf, "total/ICMSTot/vICMS"),
		PISTotal:        childDecimal(inf, "total/ICMSTot/vPIS"),
		COFINSTotal:     childDecimal(inf, "total/ICMSTot/vCOFINS"),
	}
	info.RecipientDoc = childText(inf, "dest/CNPJ")
	if info.RecipientDoc == "" {
		info.RecipientDoc = childText(inf, "dest/CPF")
	}
	info.Series, _ = strconv.Atoi(childText(inf, "ide/serie"))
	info.Number, _ = strconv.Atoi(childText(inf, "ide/nNF"))
	if dh := childText(inf, "ide/dhEmi"); dh != "" {
		if t, err := time.Parse(time.RFC3339, dh); err == nil {
			info.EmittedAt = &t
		}
	}
	return info, nil
}

// ExtractAccessKey solo la clave del atributo Id.
func ExtractAccessKey(xmlText string) (string, error) {
	info, err := InspectDocument(xmlText)
	if err != nil {
		return "", err
	}
	return info.AccessKey, nil
}

func childText(el *etree.Element, path string) string {
	if c := el.FindElement(path); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func childDecimal(el *etree.Element, path string) decimal.Decimal {
	d, err := decimal.NewFromString(childText(el, path))
	if err != nil {
		return decimal.Zero
	}
	return d
}
