package handler

import "idlookup/internal/query/models"

// AcceptedResponse acknowledges an async lookup.
type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

// ListResponse wraps unpaged record lists.
type ListResponse struct {
	Items []*models.QueryRecord `json:"items"`
}
