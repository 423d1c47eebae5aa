package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/nfe-api/internal/application/dto"
	"github.com/jhoicas/nfe-api/internal/domain"
)

// errorBody traduce un error de dominio a status HTTP y cuerpo.
func errorBody(err error) (int, dto.ErrorResponse) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return fiber.StatusBadRequest, dto.ErrorResponse{Code: "VALIDATION", Message: "requisición inválida", Fields: verr.Fields}
	}
	var rej *domain.RejectedByAuthorityError
	if errors.As(err, &rej) {
		return fiber.StatusUnprocessableEntity, dto.ErrorResponse{Code: "REJECTED", Message: rej.Reason, CStat: rej.Code}
	}

	switch {
	case errors.Is(err, domain.ErrTimeout):
		return fiber.StatusGatewayTimeout, dto.ErrorResponse{Code: "TIMEOUT", Message: err.Error(), Diagnostic: diagnostic(err)}
	case errors.Is(err, domain.ErrProcessorUnavailable):
		return fiber.StatusServiceUnavailable, dto.ErrorResponse{Code: "PROCESSOR_UNAVAILABLE", Message: err.Error(), Diagnostic: diagnostic(err)}
	case errors.Is(err, domain.ErrAssembly):
		return fiber.StatusUnprocessableEntity, dto.ErrorResponse{Code: "ASSEMBLY", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidKeyInput):
		return fiber.StatusBadRequest, dto.ErrorResponse{Code: "INVALID_KEY", Message: err.Error()}
	case errors.Is(err, domain.ErrEmptyBatch):
		return fiber.StatusBadRequest, dto.ErrorResponse{Code: "EMPTY_BATCH", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidInput):
		return fiber.StatusBadRequest, dto.ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, domain.ErrDuplicate):
		return fiber.StatusConflict, dto.ErrorResponse{Code: "DUPLICATE", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidTransition):
		return fiber.StatusConflict, dto.ErrorResponse{Code: "INVALID_TRANSITION", Message: err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict, dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()}
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized, dto.ErrorResponse{Code: "UNAUTHORIZED", Message: err.Error()}
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden, dto.ErrorResponse{Code: "FORBIDDEN", Message: err.Error()}
	}

	var pe *domain.ProcessorError
	if errors.As(err, &pe) {
		return fiber.StatusBadGateway, dto.ErrorResponse{Code: "PROCESSOR", Message: err.Error(), Diagnostic: pe.Diagnostic}
	}
	return fiber.StatusInternalServerError, dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()}
}

// mapError responde con el status que corresponde al error.
func mapError(c *fiber.Ctx, err error) error {
	status, body := errorBody(err)
	return c.Status(status).JSON(body)
}

func diagnostic(err error) string {
	var pe *domain.ProcessorError
	if errors.As(err, &pe) {
		return pe.Diagnostic
	}
	return ""
}
