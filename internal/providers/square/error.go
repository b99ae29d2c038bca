package square

import (
	"fmt"

	paymentdomain "github.com/smallbiznis/loadpass/internal/providers/payment/domain"
)

// APIError is a rejected Square call. Detail comes from the first reported error.
type APIError struct {
	Status   int
	Category string
	Code     string
	Detail   string
	Raw      []byte
}

func newAPIError(status int, items []apiErrorItem, raw []byte) *APIError {
	apiErr := &APIError{Status: status, Raw: raw}
	if len(items) > 0 {
		apiErr.Category = items[0].Category
		apiErr.Code = items[0].Code
		apiErr.Detail = items[0].Detail
	}
	if apiErr.Code == "" {
		apiErr.Code = "UNKNOWN"
	}
	if apiErr.Detail == "" {
		apiErr.Detail = fmt.Sprintf("square responded with status %d", status)
	}
	return apiErr
}

func (e *APIError) Error() string {
	return e.Detail
}

func (e *APIError) Unwrap() error {
	return paymentdomain.ErrProviderFailure
}
