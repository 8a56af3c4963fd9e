package digitalocean

import (
	"errors"
	"net/http"

	"github.com/digitalocean/godo"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

// classify maps an API failure into the engine's error classes. Rate
// limiting and server-side failures are retryable; any other API rejection
// is permanent. Failures without an API response (DNS, connection resets)
// are treated as transient.
func classify(message string, err error) error {
	var respErr *godo.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := respErr.Response.StatusCode
		if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return engine.NewTransientError(message, err)
		}
		return engine.NewPermanentError(message, err)
	}
	return engine.NewTransientError(message, err)
}

// isNotFound reports whether the API said the object does not exist.
// Deletes treat this as success.
func isNotFound(err error) bool {
	var respErr *godo.ErrorResponse
	return errors.As(err, &respErr) && respErr.Response != nil &&
		respErr.Response.StatusCode == http.StatusNotFound
}

// isConflict reports an already-exists rejection.
func isConflict(err error) bool {
	var respErr *godo.ErrorResponse
	if !errors.As(err, &respErr) || respErr.Response == nil {
		return false
	}
	code := respErr.Response.StatusCode
	return code == http.StatusConflict || code == http.StatusUnprocessableEntity
}
