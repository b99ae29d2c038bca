package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/loadpass/internal/auth/domain"
	catalogdomain "github.com/smallbiznis/loadpass/internal/catalog/domain"
	checkoutdomain "github.com/smallbiznis/loadpass/internal/checkout/domain"
	creditdomain "github.com/smallbiznis/loadpass/internal/credit/domain"
	customerdomain "github.com/smallbiznis/loadpass/internal/customer/domain"
	paymentdomain "github.com/smallbiznis/loadpass/internal/payment/domain"
	providerdomain "github.com/smallbiznis/loadpass/internal/providers/payment/domain"
	"github.com/smallbiznis/loadpass/internal/providers/square"
	usermetadomain "github.com/smallbiznis/loadpass/internal/usermeta/domain"
)

// messageResponse is the only body shape clients see, success or failure.
type messageResponse struct {
	Message string `json:"message"`
}

var ErrInvalidRequest = errors.New("invalid_request")

const msgInternal = "Error: internal server error"

// messageError overrides the client message of a wrapped error.
type messageError struct {
	err     error
	message string
}

func (e *messageError) Error() string { return e.err.Error() }

func (e *messageError) Unwrap() error { return e.err }

func withMessage(err error, format string, args ...any) error {
	return &messageError{err: err, message: fmt.Sprintf(format, args...)}
}

// ErrorHandlingMiddleware renders the last handler error as 500 {message}.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(http.StatusInternalServerError, messageResponse{Message: errorMessage(lastErr.Err)})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}

var errorMessages = []struct {
	err     error
	message string
}{
	{authdomain.ErrUnauthenticated, "Error: user not found"},
	{authdomain.ErrInvalidToken, "Error: user not found"},
	{authdomain.ErrMissingSecret, "Error: user not found"},
	{checkoutdomain.ErrUnauthenticated, "Error: user not found"},
	{usermetadomain.ErrUserNotFound, "Error: user not found"},
	{checkoutdomain.ErrRateLimited, "Error: too many checkout requests, try again later"},
	{checkoutdomain.ErrMissingOrderID, "Error: payment link has no order id"},
	{catalogdomain.ErrInvalidHandle, "Error: Missing package handle"},
	{catalogdomain.ErrPackageNotFound, "Error: package not found"},
	{customerdomain.ErrInvalidUserID, "Error: Missing user id"},
	{customerdomain.ErrInvalidEmail, "Error: Missing or invalid email"},
	{customerdomain.ErrMissingCustomerID, "Customer ID not found, there was an error creating the customer"},
	{creditdomain.ErrMissingGrantFields, "Error: Missing customer id or package variation id"},
	{creditdomain.ErrMissingUserID, "Error: Missing user id"},
	{creditdomain.ErrInsufficientLoads, "Error: User has no loads left"},
	{paymentdomain.ErrInvalidProvider, "Error: unknown payment provider"},
	{paymentdomain.ErrProviderNotFound, "Error: unknown payment provider"},
	{paymentdomain.ErrInvalidSignature, "Error: invalid webhook signature"},
	{paymentdomain.ErrInvalidPayload, "Error: invalid webhook payload"},
	{paymentdomain.ErrPaymentInProgress, "Error: payment is already being processed"},
	{paymentdomain.ErrUnattributedPayment, "Error: payment could not be attributed to a user"},
	{ErrInvalidRequest, "Error: invalid request body"},
}

func errorMessage(err error) string {
	if err == nil {
		return msgInternal
	}

	var msgErr *messageError
	if errors.As(err, &msgErr) {
		return msgErr.message
	}

	var apiErr *square.APIError
	if errors.As(err, &apiErr) {
		return "Error: " + apiErr.Detail
	}

	for _, item := range errorMessages {
		if errors.Is(err, item.err) {
			return item.message
		}
	}
	return msgInternal
}

var errorTypes = []struct {
	err     error
	errType string
}{
	{authdomain.ErrUnauthenticated, "unauthenticated"},
	{authdomain.ErrInvalidToken, "unauthenticated"},
	{authdomain.ErrMissingSecret, "unauthenticated"},
	{checkoutdomain.ErrUnauthenticated, "unauthenticated"},
	{paymentdomain.ErrInvalidSignature, "unauthenticated"},
	{checkoutdomain.ErrRateLimited, "rate_limited"},
	{paymentdomain.ErrPaymentInProgress, "conflict"},
	{usermetadomain.ErrUserNotFound, "not_found"},
	{catalogdomain.ErrPackageNotFound, "not_found"},
	{paymentdomain.ErrProviderNotFound, "not_found"},
	{catalogdomain.ErrInvalidHandle, "validation"},
	{customerdomain.ErrInvalidUserID, "validation"},
	{customerdomain.ErrInvalidEmail, "validation"},
	{creditdomain.ErrMissingGrantFields, "validation"},
	{creditdomain.ErrMissingUserID, "validation"},
	{creditdomain.ErrInsufficientLoads, "validation"},
	{paymentdomain.ErrInvalidProvider, "validation"},
	{paymentdomain.ErrInvalidPayload, "validation"},
	{paymentdomain.ErrUnattributedPayment, "validation"},
	{ErrInvalidRequest, "validation"},
	{customerdomain.ErrMissingCustomerID, "provider"},
	{checkoutdomain.ErrMissingOrderID, "provider"},
	{providerdomain.ErrProviderFailure, "provider"},
}

// classifyErrorForLog returns the (type, code) pair written to request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}

	var apiErr *square.APIError
	if errors.As(err, &apiErr) {
		return "provider", apiErr.Code
	}

	for _, item := range errorTypes {
		if errors.Is(err, item.err) {
			return item.errType, item.err.Error()
		}
	}
	return "internal", "internal_error"
}
