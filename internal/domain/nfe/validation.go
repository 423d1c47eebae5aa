package nfe

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfe-api/internal/domain"
	"github.com/jhoicas/nfe-api/pkg/sefaz"
)

// RequestValidator chequeos de forma de la requisición antes del montaje.
// Campos y mensajes se reportan con los nombres JSON del layout.
type RequestValidator struct {
	v *validator.Validate
}

// NewRequestValidator registra las reglas cnpj/cpf y el tipo decimal.
func NewRequestValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("cnpj", func(fl validator.FieldLevel) bool {
		return sefaz.ValidateCNPJ(fl.Field().String()) == nil && sefaz.IsDigits(fl.Field().String())
	})
	_ = v.RegisterValidation("cpf", func(fl validator.FieldLevel) bool {
		return sefaz.ValidateCPF(fl.Field().String()) == nil && sefaz.IsDigits(fl.Field().String())
	})
	return &RequestValidator{v: v}
}

// Validate devuelve *domain.ValidationError con todos los campos inválidos.
// Los problemas estructurales (sin ítems, sin pagos, CST/CSOSN) quedan para
// el montaje.
func (rv *RequestValidator) Validate(req *InvoiceRequest) error {
	if req == nil {
		return &domain.ValidationError{Fields: []domain.FieldError{{Field: "requisicion", Message: "es obligatoria"}}}
	}
	var fields []domain.FieldError
	if err := rv.v.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields = append(fields, domain.FieldError{Field: fieldPath(fe), Message: message(fe)})
		}
	}
	r := req.Recipient
	switch {
	case r.CNPJ == "" && r.CPF == "":
		fields = append(fields, domain.FieldError{Field: "destinatario", Message: "informe CNPJ o CPF"})
	case r.CNPJ != "" && r.CPF != "":
		fields = append(fields, domain.FieldError{Field: "destinatario", Message: "informe solo uno entre CNPJ y CPF"})
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

// fieldPath quita el nombre de la raíz: "InvoiceRequest.emitente.CNPJ" -> "emitente.CNPJ".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "campo obligatorio"
	case "cnpj":
		return "CNPJ inválido"
	case "cpf":
		return "CPF inválido"
	case "email":
		return "email inválido"
	case "len":
		return "debe tener exactamente " + fe.Param() + " caracteres"
	case "min":
		if fe.Kind() == reflect.String {
			return "debe tener al menos " + fe.Param() + " caracteres"
		}
		return "debe ser al menos " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "debe tener como máximo " + fe.Param() + " caracteres"
		}
		return "debe ser como máximo " + fe.Param()
	case "oneof":
		return "debe ser uno de: " + fe.Param()
	case "numeric":
		return "solo admite dígitos"
	case "alpha":
		return "solo admite letras"
	case "gt":
		return "debe ser mayor que " + fe.Param()
	case "gte":
		return "debe ser mayor o igual a " + fe.Param()
	case "lte":
		return "debe ser menor o igual a " + fe.Param()
	default:
		return "valor inválido"
	}
}
