package domain

import "fmt"

// AuthenticationError reports a login exchange that did not return 201,
// either because the credentials were rejected or the service is unavailable.
// StatusCode is 0 when the request was refused before reaching the network.
type AuthenticationError struct {
	StatusCode int
	Reason     string
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode == 0 {
		return "authentication failed: " + e.Reason
	}
	if e.Reason == "" {
		return fmt.Sprintf("authentication failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("authentication failed: status %d: %s", e.StatusCode, e.Reason)
}

// DataFetchError reports a reference-data request that did not return 200.
type DataFetchError struct {
	Resource   string
	StatusCode int
	Body       string
}

func (e *DataFetchError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fetch %s: status %d", e.Resource, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: status %d: %s", e.Resource, e.StatusCode, e.Body)
}
