package nfe

import (
	"time"

	"github.com/shopspring/decimal"
)

// BrasiliaZone horario fijo UTC-3 usado en dhEmi y en el AAMM de la clave.
var BrasiliaZone = time.FixedZone("BRT", -3*60*60)

// DateTimeLayout formato de dhEmi.
const DateTimeLayout = "2006-01-02T15:04:05-07:00"

// EmissionBackdate retraso aplicado a dhEmi cuando la requisición no lo trae.
const EmissionBackdate = 2 * time.Minute

// FormatDateTime formatea en horario de Brasília (ej: 2024-05-10T09:30:00-03:00).
func FormatDateTime(t time.Time) string {
	return t.In(BrasiliaZone).Format(DateTimeLayout)
}

// Precisiones exigidas por el esquema.
const (
	quantityPlaces  = 4
	unitPricePlaces = 10
	moneyPlaces     = 2
)

// FormatQuantity qCom / qTrib.
func FormatQuantity(d decimal.Decimal) string { return d.StringFixed(quantityPlaces) }

// FormatUnitPrice vUnCom / vUnTrib.
func FormatUnitPrice(d decimal.Decimal) string { return d.StringFixed(unitPricePlaces) }

// FormatMoney valores y alícuotas.
func FormatMoney(d decimal.Decimal) string { return d.StringFixed(moneyPlaces) }

// present: un opcional numérico cuenta solo si viene y no es cero.
func present(d *decimal.Decimal) bool {
	return d != nil && !d.IsZero()
}

func valueOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
