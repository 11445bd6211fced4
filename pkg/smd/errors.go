package smd

import (
	"fmt"
	"net/http"
	"strings"
)

// QueryError reports a failed request to SMD: transport failure, an error
// status, or a body that is not JSON.
type QueryError struct {
	Endpoint string
	Status   int    // 0 when no response was received
	Reason   string // reason phrase of the status line
	Detail   string // problem detail sent by SMD, if any
	Err      error
}

func (e *QueryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "smd query %s failed", e.Endpoint)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": %d %s", e.Status, e.Reason)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if hint := e.Hint(); hint != "" {
		fmt.Fprintf(&b, " (%s)", hint)
	}
	return b.String()
}

func (e *QueryError) Unwrap() error { return e.Err }

// Unauthorized reports whether SMD rejected the credentials.
func (e *QueryError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// Hint suggests the likely cause of the failure to the operator.
func (e *QueryError) Hint() string {
	switch {
	case e.Status == http.StatusUnauthorized:
		return "check your access token"
	case e.Status == http.StatusForbidden:
		return "the access token lacks permission for this endpoint"
	case e.Status == 0 && e.Err != nil:
		return "check that smd_server is reachable"
	}
	return ""
}
