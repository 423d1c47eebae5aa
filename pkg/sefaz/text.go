package sefaz

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripAccents quita diacríticos ("Razão Social" -> "Razao Social") y colapsa espacios.
// Algunos autorizadores estaduales todavía rechazan caracteres fuera de ASCII en xNome/xLgr.
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(out), " ")
}
