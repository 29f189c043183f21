package provider

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// APIError is a business-level rejection: the provider answered 2xx but the
// response envelope carries a non-zero status code. Retrying it cannot
// succeed, so the client surfaces it immediately with the provider's
// code/message/payload attached.
type APIError struct {
	Code      int64
	Message   string
	RequestID string
	Raw       json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider error %d: %s (request_id=%s)", e.Code, e.Message, e.RequestID)
}

// TransportError is a non-2xx HTTP response or a network failure. Idempotent
// reads are retried per policy; mutations never are.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider transport error: %v", e.Err)
	}
	return fmt.Sprintf("provider transport error: status %d: %s", e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Envelope codes the provider uses for revoked or invalid credentials.
// Observed alongside HTTP 401/403; both signal the binding must re-authorize.
var invalidTokenCodes = map[int64]bool{
	40100: true, // access token not found
	40101: true, // access token invalid
	40102: true, // access token expired
	40105: true, // unauthorized for this account
}

// IsBusinessError reports whether err is a provider-level rejection.
func IsBusinessError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// IsCredentialError reports whether err indicates a revoked or invalid
// credential: HTTP 401/403 on the transport side, or a known invalid-token
// envelope code on the business side.
func IsCredentialError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return invalidTokenCodes[apiErr.Code]
	}
	var trErr *TransportError
	if errors.As(err, &trErr) {
		return trErr.StatusCode == 401 || trErr.StatusCode == 403
	}
	return false
}

// retryable reports whether a transport failure qualifies for retry: network
// errors, server errors, and explicit throttling. Other 4xx are not retried.
func retryable(err error) bool {
	var trErr *TransportError
	if !errors.As(err, &trErr) {
		return false
	}
	if trErr.Err != nil {
		return true
	}
	return trErr.StatusCode == 429 || trErr.StatusCode >= 500
}
