package nfe

import "github.com/shopspring/decimal"

// Totals ICMSTot calculado a partir de los ítems. Los valores informados en
// la requisición no se usan.
type Totals struct {
	Base     decimal.Decimal // vBC
	ICMS     decimal.Decimal // vICMS
	Products decimal.Decimal // vProd
	PIS      decimal.Decimal // vPIS
	COFINS   decimal.Decimal // vCOFINS
	Invoice  decimal.Decimal // vNF = vProd
}

// ComputeTotals suma las contribuciones de cada ítem; opcionales ausentes valen cero.
func ComputeTotals(items []LineItem) Totals {
	var t Totals
	for _, it := range items {
		t.Products = t.Products.Add(it.Total)
		t.Base = t.Base.Add(valueOrZero(it.Taxes.ICMS.Base))
		t.ICMS = t.ICMS.Add(valueOrZero(it.Taxes.ICMS.Value))
		t.PIS = t.PIS.Add(valueOrZero(it.Taxes.PIS.Value))
		t.COFINS = t.COFINS.Add(valueOrZero(it.Taxes.COFINS.Value))
	}
	t.Invoice = t.Products
	return t
}
