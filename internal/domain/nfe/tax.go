package nfe

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/pkg/sefaz"
)

// ICMSGroup nombre del grupo ICMS que se emitirá: ICMSSN{CSOSN} o ICMS{CST}.
// Falla si el ítem no trae exactamente uno de los dos códigos.
func ICMSGroup(icms ICMS) (string, error) {
	switch {
	case icms.CSOSN != "" && icms.CST != "":
		return "", fmt.Errorf("%w: ICMS con CST %s y CSOSN %s a la vez", domain.ErrAssembly, icms.CST, icms.CSOSN)
	case icms.CSOSN != "":
		return "ICMSSN" + icms.CSOSN, nil
	case icms.CST != "":
		return "ICMS" + icms.CST, nil
	default:
		return "", fmt.Errorf("%w: ICMS sin CST ni CSOSN", domain.ErrAssembly)
	}
}

// UsesOtherVariant regla de PIS/COFINS: CST 99 o sin base cae en *Outr.
func UsesOtherVariant(cst string, base *decimal.Decimal) bool {
	return cst == sefaz.PISCOFINSOutras || !present(base)
}

func writeImposto(w *xmlWriter, taxes TaxProfile) error {
	group, err := ICMSGroup(taxes.ICMS)
	if err != nil {
		return err
	}
	w.start("imposto")
	writeICMS(w, group, taxes.ICMS)
	writeContribution(w, "PIS", "pPIS", "vPIS", taxes.PIS.CST, taxes.PIS.Base, taxes.PIS.Rate, taxes.PIS.Value)
	writeContribution(w, "COFINS", "pCOFINS", "vCOFINS", taxes.COFINS.CST, taxes.COFINS.Base, taxes.COFINS.Rate, taxes.COFINS.Value)
	w.end("imposto")
	return nil
}

func writeICMS(w *xmlWriter, group string, icms ICMS) {
	w.start("ICMS")
	w.start(group)
	w.text("orig", icms.Origin)
	if icms.CSOSN != "" {
		w.text("CSOSN", icms.CSOSN)
		optMoney(w, "pCredSN", icms.CreditRate)
		optMoney(w, "vCredICMSSN", icms.CreditValue)
	} else {
		w.text("CST", icms.CST)
		w.optText("modBC", icms.BaseMode)
		optMoney(w, "vBC", icms.Base)
		optMoney(w, "pICMS", icms.Rate)
		optMoney(w, "vICMS", icms.Value)
	}
	w.end(group)
	w.end("ICMS")
}

// writeContribution PIS y COFINS comparten forma; solo cambian los nombres.
// En *Outr el valor sale siempre (0.00 si falta); en *Aliq nada se completa.
func writeContribution(w *xmlWriter, tax, rateTag, valueTag, cst string, base, rate, value *decimal.Decimal) {
	w.start(tax)
	if UsesOtherVariant(cst, base) {
		group := tax + "Outr"
		w.start(group)
		w.text("CST", cst)
		optMoney(w, "vBC", base)
		optMoney(w, rateTag, rate)
		w.text(valueTag, FormatMoney(valueOrZero(value)))
		w.end(group)
	} else {
		group := tax + "Aliq"
		w.start(group)
		w.text("CST", cst)
		optMoney(w, "vBC", base)
		optMoney(w, rateTag, rate)
		optMoney(w, valueTag, value)
		w.end(group)
	}
	w.end(tax)
}

func optMoney(w *xmlWriter, local string, d *decimal.Decimal) {
	if present(d) {
		w.text(local, FormatMoney(*d))
	}
}
