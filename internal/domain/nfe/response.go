package nfe

import (
	"strings"
	"time"

	"github.com/jhoicas/nfe-api/pkg/sefaz"
)

// Nombres usados por el procesador en sus respuestas.
const (
	SectionEnvio = "Envio"
	keyCode      = "CStat"
	keyReason    = "XMotivo"
	keyMessage   = "Msg"
	keyProtocol  = "nProt"
	keyReceived  = "dhRecbto"
	keyReceipt   = "nRec"
)

// Response respuesta del procesador: pares clave=valor sueltos y por sección.
type Response struct {
	Raw      string
	Top      map[string]string
	Sections map[string]map[string]string
	order    []string
}

// ParseResponse interpreta el texto seccionado:
//
//	CStat=107
//	[Envio]
//	CStat=100
//	XMotivo=Autorizado o uso da NF-e
//
// Líneas en blanco se ignoran; "[Nome]" abre (y reinicia) una sección; cada
// "clave=valor" se corta en el primer '='. Líneas sin '=' se descartan.
func ParseResponse(raw string) *Response {
	r := &Response{
		Raw:      raw,
		Top:      map[string]string{},
		Sections: map[string]map[string]string{},
	}
	var current map[string]string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := line[1 : len(line)-1]
			if _, seen := r.Sections[name]; !seen {
				r.order = append(r.order, name)
			}
			current = map[string]string{}
			r.Sections[name] = current
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if current != nil {
			current[key] = value
		} else {
			r.Top[key] = value
		}
	}
	return r
}

// Value busca key en la sección indicada ("" = nivel superior). Primero
// exacto, luego sin distinguir mayúsculas.
func (r *Response) Value(section, key string) (string, bool) {
	m := r.Top
	if section != "" {
		var ok bool
		if m, ok = r.Sections[section]; !ok {
			return "", false
		}
	}
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// lookup Envio, luego nivel superior.
func (r *Response) lookup(key string) (string, bool) {
	if v, ok := r.Value(SectionEnvio, key); ok {
		return v, true
	}
	return r.Value("", key)
}

// Find busca en Envio, en el nivel superior y luego en las demás secciones
// en orden de aparición. Sirve para respuestas de eventos (cancelación,
// inutilización) que traen el cStat en su propia sección.
func (r *Response) Find(key string) (string, bool) {
	if v, ok := r.lookup(key); ok {
		return v, true
	}
	for _, name := range r.order {
		if v, ok := r.Value(name, key); ok {
			return v, true
		}
	}
	return "", false
}

// Code cStat del veredicto (vacío si falta).
func (r *Response) Code() string {
	v, _ := r.lookup(keyCode)
	return v
}

// Reason XMotivo o, en su defecto, Msg.
func (r *Response) Reason() string {
	if v, ok := r.lookup(keyReason); ok {
		return v
	}
	v, _ := r.lookup(keyMessage)
	return v
}

// Success éxito solo con cStat 100, 101 o 150.
func (r *Response) Success() bool {
	return sefaz.AuthorizationCodes[r.Code()]
}

// Denied cStat de denegación de uso.
func (r *Response) Denied() bool {
	return sefaz.DenialCodes[r.Code()]
}

// LotReceived envío asíncrono aceptado o lote aún en proceso; el resultado
// se consulta después.
func (r *Response) LotReceived() bool {
	code := r.Code()
	return code == sefaz.StatusLotReceived || code == sefaz.StatusLotProcessing
}

// Protocol nProt.
func (r *Response) Protocol() string {
	v, _ := r.Find(keyProtocol)
	return v
}

// ReceiptNumber nRec de envíos asíncronos.
func (r *Response) ReceiptNumber() string {
	v, _ := r.Find(keyReceipt)
	return v
}

var receivedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
}

// ReceivedAt dhRecbto; sin zona se asume horario de Brasília.
func (r *Response) ReceivedAt() (time.Time, bool) {
	v, ok := r.Find(keyReceived)
	if !ok || v == "" {
		return time.Time{}, false
	}
	for _, layout := range receivedLayouts {
		if t, err := time.ParseInLocation(layout, v, BrasiliaZone); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Map estructura anidada para respuestas de la API: claves sueltas más una
// entrada por sección.
func (r *Response) Map() map[string]any {
	out := make(map[string]any, len(r.Top)+len(r.Sections))
	for k, v := range r.Top {
		out[k] = v
	}
	for name, sec := range r.Sections {
		cp := make(map[string]string, len(sec))
		for k, v := range sec {
			cp[k] = v
		}
		out[name] = cp
	}
	return out
}
