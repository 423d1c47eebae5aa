package sefaz

import (
	"fmt"
	"unicode"
)

// pesos del primer y segundo dígito verificador del CNPJ (módulo 11, de izquierda a derecha).
var (
	cnpjWeights1 = [12]int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = [13]int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidateCNPJ valida que el CNPJ tenga 14 dígitos y ambos dígitos verificadores correctos.
// Acepta la forma con máscara ("11.222.333/0001-81").
func ValidateCNPJ(cnpj string) error {
	digits := OnlyDigits(cnpj)
	if len(digits) != 14 {
		return fmt.Errorf("sefaz: CNPJ debe tener 14 dígitos, se encontraron %d", len(digits))
	}
	if repeated(digits) {
		return fmt.Errorf("sefaz: CNPJ con dígitos repetidos no es válido")
	}
	dv1 := mod11Digit(digits[:12], cnpjWeights1[:])
	dv2 := mod11Digit(digits[:12]+string(dv1), cnpjWeights2[:])
	if digits[12] != dv1 || digits[13] != dv2 {
		return fmt.Errorf("sefaz: dígitos verificadores del CNPJ inválidos: esperado %c%c, recibido %s", dv1, dv2, digits[12:])
	}
	return nil
}

// ValidateCPF valida que el CPF tenga 11 dígitos y ambos dígitos verificadores correctos.
func ValidateCPF(cpf string) error {
	digits := OnlyDigits(cpf)
	if len(digits) != 11 {
		return fmt.Errorf("sefaz: CPF debe tener 11 dígitos, se encontraron %d", len(digits))
	}
	if repeated(digits) {
		return fmt.Errorf("sefaz: CPF con dígitos repetidos no es válido")
	}
	dv1 := mod11Digit(digits[:9], descending(10, 9))
	dv2 := mod11Digit(digits[:9]+string(dv1), descending(11, 10))
	if digits[9] != dv1 || digits[10] != dv2 {
		return fmt.Errorf("sefaz: dígitos verificadores del CPF inválidos: esperado %c%c, recibido %s", dv1, dv2, digits[9:])
	}
	return nil
}

// OnlyDigits elimina todo carácter que no sea dígito ASCII.
func OnlyDigits(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			out = append(out, byte(r))
		}
	}
	return string(out)
}

// IsDigits indica si s no está vacío y contiene solo dígitos ASCII.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func mod11Digit(digits string, weights []int) byte {
	var sum int
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * weights[i]
	}
	remainder := sum % 11
	if remainder < 2 {
		return '0'
	}
	return byte('0' + (11 - remainder))
}

func descending(from, n int) []int {
	w := make([]int, n)
	for i := range w {
		w[i] = from - i
	}
	return w
}

func repeated(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}
