// Package httputil provides shared HTTP response/request utilities for
// the gateway handlers.
//
// Handlers use these helpers instead of writing raw http.ResponseWriter
// calls, so JSON formatting, error envelopes, and internal-error logging
// stay consistent across endpoints.
package httputil
