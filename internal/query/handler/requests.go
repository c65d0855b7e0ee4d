package handler

import (
	"strings"

	dErrors "idlookup/pkg/domain-errors"
)

// maxIdentifierLength bounds the raw input before it reaches the parser.
const maxIdentifierLength = 32

// LookupRequest is the body for POST / and POST /async.
type LookupRequest struct {
	Identifier string `json:"identifier"`
}

// Validate checks presence and size. Format rules are the identifier
// package's job and surface as invalid_format.
func (r *LookupRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Identifier) > maxIdentifierLength {
		return dErrors.New(dErrors.CodeValidation, "identifier is too long")
	}
	r.Identifier = strings.TrimSpace(r.Identifier)
	if r.Identifier == "" {
		return dErrors.New(dErrors.CodeValidation, "identifier is required")
	}
	return nil
}
