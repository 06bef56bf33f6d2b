package usage

import "fmt"

// AuthorizationError reports an upstream credential rejection (HTTP 401/403),
// typically a regular API key used where an administrative key is required.
// Guidance tells the user how to obtain the right credential type.
type AuthorizationError struct {
	Provider string
	Guidance string
}

func (e *AuthorizationError) Error() string {
	return e.Guidance
}

// UpstreamError reports any other non-success upstream status, carrying the
// status code and body verbatim for diagnosis.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Body)
}
