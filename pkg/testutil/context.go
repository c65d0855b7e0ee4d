package testutil

import (
	"net/http"

	"idlookup/pkg/requestcontext"
)

// WithCallerID stands in for the auth middleware. An empty ID leaves the
// request anonymous.
func WithCallerID(req *http.Request, callerID string) *http.Request {
	if callerID == "" {
		return req
	}
	return req.WithContext(requestcontext.WithCallerID(req.Context(), callerID))
}

// WithClientMetadata stands in for the metadata middleware.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}
