package processor

import (
	"archive/zip"
	"bytes"
	"fmt"

	"github.com/jhoicas/nfe-api/internal/domain/nfe"
)

// CompressLot empaqueta los XML del lote en un ZIP en memoria, un archivo
// por documento: {chave}-nfe.xml (o doc-N.xml si no se puede leer la clave).
func CompressLot(docs []string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for i, doc := range docs {
		name := fmt.Sprintf("doc-%d.xml", i+1)
		if key, err := nfe.ExtractAccessKey(doc); err == nil {
			name = key + "-nfe.xml"
		}
		fw, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("zip: crear entrada %s: %w", name, err)
		}
		if _, err := fw.Write([]byte(doc)); err != nil {
			return nil, fmt.Errorf("zip: escribir %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: cerrar archivo: %w", err)
	}
	return buf.Bytes(), nil
}
