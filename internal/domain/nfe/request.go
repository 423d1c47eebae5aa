// Package nfe contiene el núcleo puro de la NF-e modelo 55: requisición,
// clave de acceso, codificación de impuestos, montaje del XML e
// interpretación de las respuestas del procesador. No hace I/O.
package nfe

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfe-api/pkg/sefaz"
)

// Address endereço del emitente o destinatário.
type Address struct {
	Street           string `json:"xLgr" validate:"required,max=60"`
	Number           string `json:"nro" validate:"required,max=60"`
	Complement       string `json:"xCpl,omitempty" validate:"max=60"`
	District         string `json:"xBairro" validate:"required,max=60"`
	MunicipalityCode string `json:"cMun" validate:"required,numeric,len=7"`
	MunicipalityName string `json:"xMun" validate:"required,max=60"`
	UF               string `json:"UF" validate:"required,len=2,alpha"`
	PostalCode       string `json:"CEP" validate:"required,numeric,len=8"`
	CountryCode      string `json:"cPais,omitempty" validate:"omitempty,numeric,max=4"` // default 1058
	CountryName      string `json:"xPais,omitempty" validate:"max=60"`                  // default BRASIL
	Phone            string `json:"fone,omitempty" validate:"omitempty,numeric,min=6,max=14"`
}

// Issuer emitente. Siempre persona jurídica (CNPJ).
type Issuer struct {
	CNPJ              string  `json:"CNPJ" validate:"required,cnpj"`
	Name              string  `json:"xNome" validate:"required,max=60"`
	TradeName         string  `json:"xFant,omitempty" validate:"max=60"`
	Address           Address `json:"endereco"`
	StateRegistration string  `json:"IE" validate:"required,max=14"`
	TaxRegime         string  `json:"CRT" validate:"required,oneof=1 2 3"`
}

// Recipient destinatário: CNPJ o CPF, nunca ambos.
type Recipient struct {
	CNPJ              string  `json:"CNPJ,omitempty" validate:"omitempty,cnpj"`
	CPF               string  `json:"CPF,omitempty" validate:"omitempty,cpf"`
	Name              string  `json:"xNome" validate:"required,max=60"`
	Address           Address `json:"endereco"`
	IEIndicator       string  `json:"indIEDest" validate:"required,oneof=1 2 9"`
	StateRegistration string  `json:"IE,omitempty" validate:"max=14"`
	Email             string  `json:"email,omitempty" validate:"omitempty,email"`
}

// Document devuelve el CNPJ o, si no hay, el CPF.
func (r Recipient) Document() string {
	if r.CNPJ != "" {
		return r.CNPJ
	}
	return r.CPF
}

// ICMS bloque del impuesto principal. CST (régimen normal) y CSOSN (Simples
// Nacional) son excluyentes.
type ICMS struct {
	Origin      string           `json:"orig" validate:"required,oneof=0 1 2 3 4 5 6 7 8"`
	CST         string           `json:"CST,omitempty" validate:"omitempty,numeric,len=2"`
	CSOSN       string           `json:"CSOSN,omitempty" validate:"omitempty,numeric,len=3"`
	BaseMode    string           `json:"modBC,omitempty" validate:"omitempty,oneof=0 1 2 3"`
	Base        *decimal.Decimal `json:"vBC,omitempty" validate:"omitempty,gte=0"`
	Rate        *decimal.Decimal `json:"pICMS,omitempty" validate:"omitempty,gte=0"`
	Value       *decimal.Decimal `json:"vICMS,omitempty" validate:"omitempty,gte=0"`
	CreditRate  *decimal.Decimal `json:"pCredSN,omitempty" validate:"omitempty,gte=0"`
	CreditValue *decimal.Decimal `json:"vCredICMSSN,omitempty" validate:"omitempty,gte=0"`
}

// PIS bloque de PIS.
type PIS struct {
	CST   string           `json:"CST" validate:"required,numeric,len=2"`
	Base  *decimal.Decimal `json:"vBC,omitempty" validate:"omitempty,gte=0"`
	Rate  *decimal.Decimal `json:"pPIS,omitempty" validate:"omitempty,gte=0"`
	Value *decimal.Decimal `json:"vPIS,omitempty" validate:"omitempty,gte=0"`
}

// COFINS bloque de COFINS.
type COFINS struct {
	CST   string           `json:"CST" validate:"required,numeric,len=2"`
	Base  *decimal.Decimal `json:"vBC,omitempty" validate:"omitempty,gte=0"`
	Rate  *decimal.Decimal `json:"pCOFINS,omitempty" validate:"omitempty,gte=0"`
	Value *decimal.Decimal `json:"vCOFINS,omitempty" validate:"omitempty,gte=0"`
}

// TaxProfile impuestos de un ítem.
type TaxProfile struct {
	ICMS   ICMS   `json:"ICMS"`
	PIS    PIS    `json:"PIS"`
	COFINS COFINS `json:"COFINS"`
}

// LineItem ítem (det/prod). Los campos tributables caen en los comerciales si faltan.
type LineItem struct {
	Code             string           `json:"cProd" validate:"required,max=60"`
	EAN              string           `json:"cEAN,omitempty" validate:"max=14"`
	Description      string           `json:"xProd" validate:"required,max=120"`
	NCM              string           `json:"NCM" validate:"required,numeric,min=2,max=8"`
	CFOP             string           `json:"CFOP" validate:"required,numeric,len=4"`
	Unit             string           `json:"uCom" validate:"required,max=6"`
	Quantity         decimal.Decimal  `json:"qCom" validate:"gt=0"`
	UnitPrice        decimal.Decimal  `json:"vUnCom" validate:"gte=0"`
	Total            decimal.Decimal  `json:"vProd" validate:"gte=0"`
	TaxableEAN       string           `json:"cEANTrib,omitempty" validate:"max=14"`
	TaxableUnit      string           `json:"uTrib,omitempty" validate:"max=6"`
	TaxableQuantity  *decimal.Decimal `json:"qTrib,omitempty" validate:"omitempty,gt=0"`
	TaxableUnitPrice *decimal.Decimal `json:"vUnTrib,omitempty" validate:"omitempty,gte=0"`
	TotalIndicator   string           `json:"indTot,omitempty" validate:"omitempty,oneof=0 1"`
	Taxes            TaxProfile       `json:"imposto"`
}

// Payment detPag.
type Payment struct {
	Indicator string          `json:"indPag,omitempty" validate:"omitempty,oneof=0 1"`
	Method    string          `json:"tPag" validate:"required,oneof=01 02 03 04 05 10 11 12 13 14 15 90 99"`
	Amount    decimal.Decimal `json:"vPag" validate:"gte=0"`
}

// Transport transp.
type Transport struct {
	FreightMode string `json:"modFrete" validate:"required,oneof=0 1 2 3 4 9"`
}

// InvoiceRequest requisición de emisión (raíz del agregado).
type InvoiceRequest struct {
	OperationNature  string     `json:"naturezaOperacao" validate:"required,max=60"`
	Series           int        `json:"serie" validate:"gte=0,lte=999"`
	Number           int        `json:"numero" validate:"gte=1,lte=999999999"`
	EmittedAt        *time.Time `json:"dataEmissao,omitempty"`
	Direction        string     `json:"tpNF" validate:"required,oneof=0 1"`
	DestinationScope string     `json:"idDest" validate:"required,oneof=1 2 3"`
	Environment      string     `json:"tpAmb,omitempty" validate:"omitempty,oneof=1 2"`
	Purpose          string     `json:"finNFe" validate:"required,oneof=1 2 3 4"`
	FinalConsumer    string     `json:"indFinal" validate:"required,oneof=0 1"`
	Presence         string     `json:"indPres" validate:"required,oneof=0 1 2 3 4 5 9"`
	Issuer           Issuer     `json:"emitente"`
	Recipient        Recipient  `json:"destinatario"`
	Items            []LineItem `json:"produtos" validate:"dive"`
	Transport        *Transport `json:"transporte,omitempty"`
	Payments         []Payment  `json:"pagamentos" validate:"dive"`
	Notes            string     `json:"infCpl,omitempty" validate:"max=5000"`
}

// EnvironmentOrDefault tpAmb efectivo (homologación si no se informa).
func (r *InvoiceRequest) EnvironmentOrDefault() string {
	if r.Environment == "" {
		return sefaz.DefaultEnvironment
	}
	return r.Environment
}
