// nfe-tool utilidades de línea de comandos para operar sin levantar la API.
//
// Uso:
//
//	go run ./cmd/nfe-tool montar <requisicao.json>   monta el XML y escribe <chave>.xml
//	go run ./cmd/nfe-tool chave <chave>              valida y descompone una clave de acceso
//	go run ./cmd/nfe-tool inspecionar <nfe.xml>      datos de un XML existente (UTF-8 o ISO-8859-1)
//	go run ./cmd/nfe-tool migrar                     aplica las migraciones pendientes
//	go run ./cmd/nfe-tool token <rol> [cnpj]         emite un JWT firmado con JWT_SECRET
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/jhoicas/nfe-api/internal/domain/nfe"
	"github.com/jhoicas/nfe-api/internal/infrastructure/postgres"
	"github.com/jhoicas/nfe-api/pkg/config"
	"github.com/jhoicas/nfe-api/pkg/jwt"
	"github.com/jhoicas/nfe-api/pkg/logger"
	"github.com/jhoicas/nfe-api/pkg/sefaz"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "montar":
		err = withArg(build)
	case "chave":
		err = withArg(key)
	case "inspecionar":
		err = withArg(inspect)
	case "migrar":
		err = migrateUp()
	case "token":
		err = withArg(issueToken)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "uso: nfe-tool montar <requisicao.json> | chave <chave> | inspecionar <nfe.xml> | migrar | token <rol> [cnpj]")
}

func withArg(fn func(string) error) error {
	if len(os.Args) < 3 {
		usage()
		os.Exit(2)
	}
	return fn(os.Args[2])
}

func build(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var req nfe.InvoiceRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("leer %s: %w", path, err)
	}
	if err := nfe.NewRequestValidator().Validate(&req); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if req.Environment == "" {
		req.Environment = cfg.NFe.Environment
	}
	assembler := nfe.NewAssembler(nfe.TechnicalContact{
		CNPJ:    cfg.NFe.RespTec.CNPJ,
		Contact: cfg.NFe.RespTec.Contact,
		Email:   cfg.NFe.RespTec.Email,
		Phone:   cfg.NFe.RespTec.Phone,
	}, nfe.WithStripAccents(cfg.NFe.StripAccents))

	doc, err := assembler.Assemble(&req)
	if err != nil {
		return err
	}
	out := filepath.Join(filepath.Dir(path), doc.AccessKey+".xml")
	if err := os.WriteFile(out, []byte(doc.XML), 0o644); err != nil {
		return err
	}
	fmt.Printf("chave:  %s\n", doc.AccessKey)
	fmt.Printf("vProd:  %s\n", doc.Totals.Products.StringFixed(2))
	fmt.Printf("vNF:    %s\n", doc.Totals.Invoice.StringFixed(2))
	fmt.Printf("xml:    %s\n", out)
	return nil
}

func key(k string) error {
	parts, err := nfe.ParseAccessKey(k)
	if err != nil {
		return err
	}
	return printJSON(parts)
}

func inspect(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	// Los XML de la SEFAZ antiguos vienen en Latin-1
	if bytes.Contains(bytes.ToLower(raw[:min(len(raw), 100)]), []byte("iso-8859-1")) {
		raw, err = io.ReadAll(transform.NewReader(bytes.NewReader(raw), charmap.ISO8859_1.NewDecoder()))
		if err != nil {
			return fmt.Errorf("decodificar ISO-8859-1: %w", err)
		}
		raw = bytes.Replace(raw, []byte("ISO-8859-1"), []byte("UTF-8"), 1)
		raw = bytes.Replace(raw, []byte("iso-8859-1"), []byte("UTF-8"), 1)
	}

	info, err := nfe.InspectDocument(string(raw))
	if err != nil {
		return err
	}
	return printJSON(info)
}

func migrateUp() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Service: "nfe-tool"})
	return postgres.Migrate(cfg.DB.ConnectionString(), log)
}

// issueToken el CNPJ opcional limita el token a ese emisor.
func issueToken(role string) error {
	switch role {
	case jwt.RoleAdmin, jwt.RoleEmissor, jwt.RoleConsulta:
	default:
		return fmt.Errorf("rol desconocido %q (admin|emissor|consulta)", role)
	}
	var cnpj string
	if len(os.Args) > 3 {
		cnpj = sefaz.OnlyDigits(os.Args[3])
		if err := sefaz.ValidateCNPJ(cnpj); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	tok, err := jwt.Generate(cfg.JWT.Secret, uuid.NewString(), cnpj, role, cfg.JWT.Issuer, cfg.JWT.Expiration)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
