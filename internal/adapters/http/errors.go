package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/siteintel/internal/core/domain"
	"github.com/samirrijal/siteintel/internal/core/usecases"
)

// APIError is a structured error response.
type APIError struct {
	Status      int                     `json:"status"`
	Code        string                  `json:"code"`    // bad_request, not_found, session_locked, etc.
	Message     string                  `json:"message"` // Human-readable message
	RequestID   string                  `json:"request_id,omitempty"`
	Suggestions []domain.RecoveryAction `json:"suggestions,omitempty"`
	Details     any                     `json:"details,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	return writeError(c, APIError{Status: status, Code: code, Message: message})
}

func writeError(c *fiber.Ctx, e APIError) error {
	e.RequestID, _ = c.Locals("requestid").(string)
	return c.Status(e.Status).JSON(e)
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errUnprocessable returns a 422 error for well-formed input that fails
// validation.
func errUnprocessable(c *fiber.Ctx, code, msg string, details any) error {
	return writeError(c, APIError{Status: fiber.StatusUnprocessableEntity, Code: code, Message: msg, Details: details})
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errUnavailable returns a 503 error.
func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusServiceUnavailable, "service_unavailable", msg)
}

var geocodeStatus = map[domain.GeocodeErrorKind]int{
	domain.GeocodeInvalidInput:    fiber.StatusBadRequest,
	domain.GeocodeNotFound:        fiber.StatusNotFound,
	domain.GeocodeAmbiguous:       fiber.StatusConflict,
	domain.GeocodeOutsideCoverage: fiber.StatusUnprocessableEntity,
	domain.GeocodeRateLimited:     fiber.StatusTooManyRequests,
	domain.GeocodeServiceFailure:  fiber.StatusBadGateway,
}

// handleError maps a service error onto an APIError. details is attached to
// responses that carry a partial result.
func handleError(c *fiber.Ctx, err error, details any) error {
	var (
		gateErr    *domain.GateError
		geocodeErr *domain.GeocodeError
	)
	switch {
	case errors.As(err, &gateErr):
		return writeError(c, APIError{Status: fiber.StatusConflict, Code: string(gateErr.Reason), Message: gateErr.Message, Details: details})
	case errors.As(err, &geocodeErr):
		status, ok := geocodeStatus[geocodeErr.Kind]
		if !ok {
			status = fiber.StatusBadGateway
		}
		return writeError(c, APIError{Status: status, Code: string(geocodeErr.Kind), Message: geocodeErr.Message, Suggestions: geocodeErr.Suggestions})
	case errors.Is(err, domain.ErrNotFound):
		return errNotFound(c, err.Error())
	case errors.Is(err, domain.ErrStaleResponse):
		return newError(c, fiber.StatusConflict, "stale_response", err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		return newError(c, fiber.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, domain.ErrInsufficientPoints),
		errors.Is(err, domain.ErrCollinearImage),
		errors.Is(err, domain.ErrCollinearMap),
		errors.Is(err, domain.ErrSingular):
		return errUnprocessable(c, "calibration_invalid", err.Error(), details)
	case errors.Is(err, domain.ErrResidualTooHigh):
		return errUnprocessable(c, "residual_too_high", err.Error(), details)
	case errors.Is(err, domain.ErrInvalidGeometry), errors.Is(err, usecases.ErrNoBoundary):
		return errUnprocessable(c, "invalid_geometry", err.Error(), details)
	case errors.Is(err, domain.ErrUnsupportedDocument):
		return newError(c, fiber.StatusUnsupportedMediaType, "unsupported_document", err.Error())
	case errors.Is(err, domain.ErrDocumentUnreadable):
		return errUnprocessable(c, "document_unreadable", err.Error(), details)
	case errors.Is(err, domain.ErrOCRUnavailable):
		return newError(c, fiber.StatusBadGateway, "ocr_unavailable", err.Error())
	case errors.Is(err, domain.ErrMatchUnavailable):
		return writeError(c, APIError{Status: fiber.StatusServiceUnavailable, Code: "match_unavailable", Message: err.Error(), Details: details})
	case errors.Is(err, context.DeadlineExceeded):
		return newError(c, fiber.StatusGatewayTimeout, "timeout", "request timed out")
	}
	LoggerFromCtx(c.UserContext()).Error("unhandled error", "path", c.Path(), "error", err)
	return errInternal(c, "internal error")
}
