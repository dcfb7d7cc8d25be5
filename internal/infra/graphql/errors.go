package graphql

import (
	"fmt"
	"time"
)

// UserError is a structured validation failure a mutation returns inside a
// successful response. It signals a caller mistake, never a provider fault.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// APIError is a structured provider failure. It implements
// classify.ProviderError so the resilience core can categorise it without
// string matching.
type APIError struct {
	Provider      string
	StatusCode    int
	RetryAfter    time.Duration
	Throttled     bool
	UserErrors    []UserError
	GraphQLErrors []GraphQLError
	Cost          *CostInfo
	Message       string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// HTTPStatus returns the HTTP status code, or 0 if none was seen.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// RetryAfterHint returns the provider-supplied wait, or 0.
func (e *APIError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

// RateLimited reports whether the provider signalled throttling, including
// THROTTLED GraphQL errors inside a 200 response.
func (e *APIError) RateLimited() bool {
	return e.Throttled
}

// HasValidationErrors reports whether the failure carries a structured
// validation payload.
func (e *APIError) HasValidationErrors() bool {
	return len(e.UserErrors) > 0 || len(e.GraphQLErrors) > 0
}
