package nfe

import (
	"encoding/xml"
	"io"
)

// xmlWriter envuelve el encoder y retiene el primer error, así los bloques
// se escriben sin chequear cada token.
type xmlWriter struct {
	enc *xml.Encoder
	err error
}

func newXMLWriter(w io.Writer) *xmlWriter {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return &xmlWriter{enc: enc}
}

func (w *xmlWriter) token(t xml.Token) {
	if w.err != nil {
		return
	}
	w.err = w.enc.EncodeToken(t)
}

func (w *xmlWriter) start(local string, attrs ...xml.Attr) {
	w.token(xml.StartElement{Name: xml.Name{Local: local}, Attr: attrs})
}

func (w *xmlWriter) end(local string) {
	w.token(xml.EndElement{Name: xml.Name{Local: local}})
}

// text escribe <local>value</local>.
func (w *xmlWriter) text(local, value string) {
	w.start(local)
	w.token(xml.CharData(value))
	w.end(local)
}

// optText escribe el elemento solo si value no está vacío.
func (w *xmlWriter) optText(local, value string) {
	if value != "" {
		w.text(local, value)
	}
}

func (w *xmlWriter) flush() error {
	if w.err != nil {
		return w.err
	}
	return w.enc.Flush()
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}
