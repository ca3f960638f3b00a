// Package clients holds the HTTP collaborators of the pipeline: the ASR
// engine, the diarization service, and the three scoring services. Each is a
// thin wrapper around a remote endpoint; no client ever writes evidence.
package clients

import (
	"net/http"
	"time"
)

type HTTP struct{ c *http.Client }

// NewHTTP creates the shared HTTP client. timeout bounds every call end to
// end; per-call contexts may tighten it further.
func NewHTTP(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTP{c: &http.Client{Timeout: timeout}}
}
