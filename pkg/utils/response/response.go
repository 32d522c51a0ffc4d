// Package response writes the JSON envelope every endpoint answers with.
package response

import "github.com/gofiber/fiber/v2"

const (
	ErrInvalidCredentials  = "invalid_credentials"
	ErrEmailNotVerified    = "email_not_verified"
	ErrInvalidInput        = "invalid_input"
	ErrUnauthorized        = "unauthorized"
	ErrForbidden           = "forbidden"
	ErrNotFound            = "not_found"
	ErrPlanRequired        = "plan_required"
	ErrLimitReached        = "limit_reached"
	ErrInternal            = "internal_error"
	ErrOTPInvalid          = "otp_invalid"
	ErrPaymentPending      = "payment_pending"
	ErrInsufficientBalance = "insufficient_balance"
	ErrBelowMinimum        = "below_minimum"
	ErrConflict            = "conflict"
	ErrTooManyRequests     = "too_many_requests"
)

type Response struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Error      string      `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

func Success(c *fiber.Ctx, data any) error {
	return c.JSON(Response{Success: true, Data: data})
}

func SuccessMessage(c *fiber.Ctx, message string, data any) error {
	return c.JSON(Response{Success: true, Data: data, Message: message})
}

func Created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(Response{Success: true, Data: data})
}

func Paginated(c *fiber.Ctx, data any, page, pageSize int, total int64) error {
	return c.JSON(Response{
		Success: true,
		Data:    data,
		Pagination: &Pagination{
			Page:     page,
			PageSize: pageSize,
			Total:    total,
		},
	})
}

func Fail(c *fiber.Ctx, httpStatus int, code, message string) error {
	return c.Status(httpStatus).JSON(Response{Error: code, Message: message})
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Fail(c, fiber.StatusBadRequest, ErrInvalidInput, message)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Fail(c, fiber.StatusNotFound, ErrNotFound, message)
}

func Internal(c *fiber.Ctx, message string) error {
	return Fail(c, fiber.StatusInternalServerError, ErrInternal, message)
}

// ErrorHandler is the fiber ErrorHandler: anything a handler returns
// unhandled ends up in the failure envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := ErrInternal
	message := "Internal server error"

	if e, ok := err.(*fiber.Error); ok {
		status = e.Code
		message = e.Message
		switch status {
		case fiber.StatusNotFound:
			code = ErrNotFound
		case fiber.StatusUnauthorized:
			code = ErrUnauthorized
		case fiber.StatusForbidden:
			code = ErrForbidden
		case fiber.StatusRequestEntityTooLarge, fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
			code = ErrInvalidInput
		}
	}
	return Fail(c, status, code, message)
}
