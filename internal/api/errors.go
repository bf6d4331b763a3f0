package api

import (
	"errors"
	"fmt"

	"github.com/google/go-github/v57/github"
)

// ErrNoCredential is returned before any network attempt when an
// operation requires a secret and none could be resolved. Recoverable:
// the caller should prompt for a credential.
var ErrNoCredential = errors.New("no credential available")

// RemoteAPIError is a non-2xx result from the GitHub API. Message is
// the remote-provided explanation when one was parseable.
type RemoteAPIError struct {
	StatusCode int
	Message    string
}

func (e *RemoteAPIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("github api error: status %d: %s", e.StatusCode, e.Message)
}

// wrapError normalizes go-github failures into the local taxonomy.
// HTTP-level failures become *RemoteAPIError; transport failures pass
// through unchanged.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) {
		apiErr := &RemoteAPIError{Message: errResp.Message}
		if errResp.Response != nil {
			apiErr.StatusCode = errResp.Response.StatusCode
		}
		if apiErr.Message == "" {
			apiErr.Message = "request rejected by the remote API"
		}
		return apiErr
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		apiErr := &RemoteAPIError{Message: rateErr.Message}
		if rateErr.Response != nil {
			apiErr.StatusCode = rateErr.Response.StatusCode
		}
		return apiErr
	}

	return err
}

// StatusOf extracts the HTTP status from err, or 0 when err is not a
// remote API error.
func StatusOf(err error) int {
	var apiErr *RemoteAPIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
