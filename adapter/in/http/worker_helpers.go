package http

import (
	"time"

	"hybridcache/pkg/apperr"
	"hybridcache/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// APIResponse is the standard envelope for every admin endpoint.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponseWithCode sends a standardized error response with a custom code.
func ErrorResponseWithCode(c *fiber.Ctx, status int, code, message string) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.Status(status).JSON(APIResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// AppErrorResponse handles apperr.AppError and returns the appropriate response.
// Any other error goes through apperr.FromCacheErr, so a cacheerr code gets
// its mapped status and anything else a 500.
func AppErrorResponse(c *fiber.Ctx, err error) error {
	appErr := apperr.AsAppError(err)
	if !apperr.IsAppError(err) {
		appErr = apperr.FromCacheErr(err)
	}
	requestID, _ := c.Locals("request_id").(string)
	return c.Status(appErr.Status).JSON(APIResponse{
		Success:   false,
		Error:     &APIError{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details},
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// InternalErrorResponse returns a safe 500 without exposing internal
// details; the real error is logged with the failing operation name.
func InternalErrorResponse(c *fiber.Ctx, err error, operation string) error {
	logger.WithError(err).WithField("operation", operation).Error("internal error")
	return ErrorResponseWithCode(c, fiber.StatusInternalServerError, apperr.CodeInternalError, operation+" failed")
}

// SuccessResponse sends a standardized JSON success response.
func SuccessResponse(c *fiber.Ctx, data any) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.JSON(APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
