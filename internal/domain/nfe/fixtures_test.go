package nfe_test

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfe-api/internal/domain/nfe"
)

const (
	testIssuerCNPJ    = "11222333000181"
	testRecipientCPF  = "52998224725"
	testNumericCode   = "12345678"
	testExpectedKey   = "35240511222333000181550010000001231123456785"
	testEmissionRFC   = "2024-05-10T12:00:00-03:00"
	testEmissionMonth = "2405"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func testEmission() time.Time {
	t, _ := time.Parse(time.RFC3339, testEmissionRFC)
	return t
}

// simplesItem ítem del Simples Nacional (CSOSN 101) con PIS/COFINS 99 sin base.
func simplesItem(vProd string) nfe.LineItem {
	return nfe.LineItem{
		Code:        "P001",
		Description: "Produto de teste",
		NCM:         "61091000",
		CFOP:        "5102",
		Unit:        "UN",
		Quantity:    dec("1"),
		UnitPrice:   dec(vProd),
		Total:       dec(vProd),
		Taxes: nfe.TaxProfile{
			ICMS:   nfe.ICMS{Origin: "0", CSOSN: "101", CreditRate: decPtr("1.25"), CreditValue: decPtr("1.25")},
			PIS:    nfe.PIS{CST: "99"},
			COFINS: nfe.COFINS{CST: "99"},
		},
	}
}

func validRequest() *nfe.InvoiceRequest {
	emittedAt := testEmission()
	return &nfe.InvoiceRequest{
		OperationNature:  "Venda de mercadoria",
		Series:           1,
		Number:           123,
		EmittedAt:        &emittedAt,
		Direction:        "1",
		DestinationScope: "1",
		Environment:      "2",
		Purpose:          "1",
		FinalConsumer:    "1",
		Presence:         "1",
		Issuer: nfe.Issuer{
			CNPJ:      testIssuerCNPJ,
			Name:      "Loja Exemplo Ltda",
			TradeName: "Loja Exemplo",
			Address: nfe.Address{
				Street:           "Rua das Flores",
				Number:           "100",
				District:         "Centro",
				MunicipalityCode: "3550308",
				MunicipalityName: "Sao Paulo",
				UF:               "SP",
				PostalCode:       "01001000",
				Phone:            "1130000000",
			},
			StateRegistration: "111111111111",
			TaxRegime:         "1",
		},
		Recipient: nfe.Recipient{
			CPF:  testRecipientCPF,
			Name: "Consumidor Teste",
			Address: nfe.Address{
				Street:           "Av. Paulista",
				Number:           "1000",
				District:         "Bela Vista",
				MunicipalityCode: "3550308",
				MunicipalityName: "Sao Paulo",
				UF:               "SP",
				PostalCode:       "01310100",
			},
			IEIndicator: "9",
		},
		Items:     []nfe.LineItem{simplesItem("100.00")},
		Transport: &nfe.Transport{FreightMode: "9"},
		Payments:  []nfe.Payment{{Method: "01", Amount: dec("100.00")}},
	}
}

func fixedAssembler(opts ...nfe.AssemblerOption) *nfe.Assembler {
	base := []nfe.AssemblerOption{
		nfe.WithNumericCode(func() string { return testNumericCode }),
		nfe.WithClock(testEmission),
	}
	return nfe.NewAssembler(nfe.DefaultTechnicalContact(), append(base, opts...)...)
}
