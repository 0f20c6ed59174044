package http

import (
	"errors"
	"time"

	"studio_server/core/domain"
	"studio_server/pkg/apperr"
	"studio_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

var ErrUnauthorized = errors.New("unauthorized")

// GetUser extracts the authenticated caller set by the auth middleware.
func GetUser(c *fiber.Ctx) (domain.User, error) {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return domain.User{}, ErrUnauthorized
	}
	name, _ := c.Locals("user_name").(string)
	return domain.User{ID: userID, DisplayName: name}, nil
}

// =============================================================================
// Standardized Response Helpers
// =============================================================================

// APIResponse represents a standard API response
type APIResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// APIError represents a standard API error
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse sends a standardized JSON error response
func ErrorResponse(c *fiber.Ctx, status int, message string) error {
	return ErrorResponseWithCode(c, status, mapStatusToCode(status), message)
}

// ErrorResponseWithCode sends a standardized error response with custom code
func ErrorResponseWithCode(c *fiber.Ctx, status int, code, message string) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.Status(status).JSON(APIResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// AppErrorResponse maps err (domain or apperr) to its status and renders it.
func AppErrorResponse(c *fiber.Ctx, err error) error {
	appErr := FromDomain(err)
	requestID, _ := c.Locals("request_id").(string)

	if appErr.Status >= 500 {
		logger.WithError(err).WithFields(map[string]any{
			"request_id": requestID,
			"error_code": appErr.Code,
			"path":       c.Path(),
		}).Error("request failed")
	}

	return c.Status(appErr.Status).JSON(APIResponse{
		Success:   false,
		Error:     &APIError{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details},
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// SuccessResponse sends a standardized JSON success response
func SuccessResponse(c *fiber.Ctx, data any) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.JSON(APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// FromDomain translates the domain error taxonomy into an AppError.
// Analysis failures only ever expose the generic user message.
func FromDomain(err error) *apperr.AppError {
	var (
		appErr  *apperr.AppError
		authErr *domain.AuthenticationError
		invalid *domain.InvalidInputError
		quota   *domain.QuotaExceededError
		analyze *domain.AnalysisError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &authErr):
		return apperr.Unauthorized("").WithError(err)
	case errors.As(err, &invalid):
		return apperr.InvalidLogo(invalid.Reason).WithError(err)
	case errors.As(err, &quota):
		return apperr.QuotaExceeded(domain.MsgQuotaExceeded, quota.Ceiling).WithError(err)
	case errors.Is(err, domain.ErrSessionBusy):
		return apperr.New(apperr.CodeSessionBusy, "studio session is busy, reset it first", fiber.StatusConflict).WithError(err)
	case errors.Is(err, domain.ErrProjectNotFound):
		return apperr.NotFound("project").WithError(err)
	case errors.As(err, &analyze):
		return apperr.AnalysisFailed(domain.MsgAnalysisFailed, err)
	default:
		return apperr.InternalWithError(err)
	}
}

// mapStatusToCode maps HTTP status to error code
func mapStatusToCode(status int) string {
	switch status {
	case 400:
		return apperr.CodeBadRequest
	case 401:
		return apperr.CodeUnauthorized
	case 403:
		return apperr.CodeForbidden
	case 404:
		return apperr.CodeNotFound
	case 409:
		return apperr.CodeConflict
	case 413:
		return apperr.CodeInvalidInput
	case 429:
		return apperr.CodeRateLimited
	case 500:
		return apperr.CodeInternalError
	default:
		return "UNKNOWN_ERROR"
	}
}
