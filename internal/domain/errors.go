package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrDuplicate         = errors.New("recurso duplicado")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrForbidden         = errors.New("acceso denegado")
	ErrConflict          = errors.New("conflicto con el estado actual")
	ErrInvalidTransition = errors.New("transición de estado no permitida")
)

// Errores del ciclo de emisión de NF-e.
var (
	ErrValidation           = errors.New("nfe: requisición inválida")
	ErrAssembly             = errors.New("nfe: documento imposible de montar")
	ErrInvalidKeyInput      = errors.New("nfe: datos inválidos para la clave de acceso")
	ErrProcessorUnavailable = errors.New("nfe: procesador de documentos no disponible")
	ErrRejectedByAuthority  = errors.New("nfe: rechazada por la autoridad")
	ErrTimeout              = errors.New("nfe: tiempo de espera agotado")
	ErrEmptyBatch           = errors.New("nfe: lote vacío")
)

// FieldError describe un campo inválido de la requisición.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError agrupa los campos inválidos. errors.Is(err, ErrValidation) es verdadero.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RejectedByAuthorityError rechazo de un envío bien formado (cStat fuera del conjunto de éxito).
type RejectedByAuthorityError struct {
	Code   string
	Reason string
}

func (e *RejectedByAuthorityError) Error() string {
	return fmt.Sprintf("%s: [%s] %s", ErrRejectedByAuthority.Error(), e.Code, e.Reason)
}

func (e *RejectedByAuthorityError) Is(target error) bool { return target == ErrRejectedByAuthority }

// ProcessorError fallo originado en el procesador de documentos.
// Diagnostic conserva el texto original devuelto por el procesador.
type ProcessorError struct {
	Op         string
	Diagnostic string
	Err        error
}

func (e *ProcessorError) Error() string {
	msg := "procesador: " + e.Op
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessorError) Unwrap() error { return e.Err }
