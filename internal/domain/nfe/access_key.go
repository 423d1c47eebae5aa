package nfe

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/pkg/sefaz"
)

// AccessKeyLength largo de la clave de acceso con dígito verificador.
const AccessKeyLength = 44

// KeyInput campos de la clave de acceso en el orden del layout:
// cUF(2) AAMM(4) CNPJ(14) mod(2) serie(3) nNF(9) tpEmis(1) cNF(8) cDV(1).
type KeyInput struct {
	UF          string    // sigla; desconocida cae en sefaz.DefaultUFCode
	EmittedAt   time.Time // AAMM se toma en horario de Brasília
	CNPJ        string
	Series      int
	Number      int
	NumericCode string // cNF, 8 dígitos
}

// KeyInputFor arma el KeyInput de una requisición.
func KeyInputFor(req *InvoiceRequest, emittedAt time.Time, numericCode string) KeyInput {
	return KeyInput{
		UF:          req.Issuer.Address.UF,
		EmittedAt:   emittedAt,
		CNPJ:        req.Issuer.CNPJ,
		Series:      req.Series,
		Number:      req.Number,
		NumericCode: numericCode,
	}
}

// RandomNumericCode cNF aleatorio de 8 dígitos.
func RandomNumericCode() string {
	return fmt.Sprintf("%08d", rand.IntN(100_000_000))
}

// GenerateAccessKey compone los 43 dígitos y agrega el dígito verificador.
func GenerateAccessKey(in KeyInput) (string, error) {
	if len(in.CNPJ) != 14 || !sefaz.IsDigits(in.CNPJ) {
		return "", fmt.Errorf("%w: CNPJ %q debe tener 14 dígitos", domain.ErrInvalidKeyInput, in.CNPJ)
	}
	if in.Series < 0 || in.Series > 999 {
		return "", fmt.Errorf("%w: serie %d fuera de 0..999", domain.ErrInvalidKeyInput, in.Series)
	}
	if in.Number < 0 || in.Number > 999_999_999 {
		return "", fmt.Errorf("%w: número %d fuera de 0..999999999", domain.ErrInvalidKeyInput, in.Number)
	}
	if len(in.NumericCode) != 8 || !sefaz.IsDigits(in.NumericCode) {
		return "", fmt.Errorf("%w: cNF %q debe tener 8 dígitos", domain.ErrInvalidKeyInput, in.NumericCode)
	}

	base := sefaz.UFCode(in.UF) +
		in.EmittedAt.In(BrasiliaZone).Format("0601") +
		in.CNPJ +
		sefaz.ModelNFe +
		fmt.Sprintf("%03d", in.Series) +
		fmt.Sprintf("%09d", in.Number) +
		sefaz.EmissionNormal +
		in.NumericCode

	return base + strconv.Itoa(CheckDigit(base)), nil
}

// CheckDigit módulo 11 con pesos 2..9 desde el último dígito.
// Resto menor que 2 da 0; si no, 11 - resto.
func CheckDigit(digits string) int {
	sum, weight := 0, 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		if weight == 9 {
			weight = 2
		} else {
			weight++
		}
	}
	remainder := sum % 11
	if remainder < 2 {
		return 0
	}
	return 11 - remainder
}

// ValidateAccessKey verifica largo, dígitos y dígito verificador.
func ValidateAccessKey(key string) error {
	if len(key) != AccessKeyLength || !sefaz.IsDigits(key) {
		return fmt.Errorf("%w: la clave debe tener %d dígitos", domain.ErrInvalidKeyInput, AccessKeyLength)
	}
	if want := CheckDigit(key[:43]); int(key[43]-'0') != want {
		return fmt.Errorf("%w: dígito verificador %c, esperado %d", domain.ErrInvalidKeyInput, key[43], want)
	}
	return nil
}

// AccessKeyParts clave descompuesta.
type AccessKeyParts struct {
	UFCode       string `json:"cUF"`
	YearMonth    string `json:"AAMM"`
	CNPJ         string `json:"CNPJ"`
	Model        string `json:"mod"`
	Series       int    `json:"serie"`
	Number       int    `json:"nNF"`
	EmissionType string `json:"tpEmis"`
	NumericCode  string `json:"cNF"`
	CheckDigit   int    `json:"cDV"`
}

// ParseAccessKey valida y descompone una clave.
func ParseAccessKey(key string) (*AccessKeyParts, error) {
	if err := ValidateAccessKey(key); err != nil {
		return nil, err
	}
	series, _ := strconv.Atoi(key[22:25])
	number, _ := strconv.Atoi(key[25:34])
	return &AccessKeyParts{
		UFCode:       key[0:2],
		YearMonth:    key[2:6],
		CNPJ:         key[6:20],
		Model:        key[20:22],
		Series:       series,
		Number:       number,
		EmissionType: key[34:35],
		NumericCode:  key[35:43],
		CheckDigit:   int(key[43] - '0'),
	}, nil
}
