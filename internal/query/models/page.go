package models

import (
	"strings"

	dErrors "idlookup/pkg/domain-errors"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxRecent       = 20
)

// SortField is a whitelisted history ordering column.
type SortField string

const (
	SortByRequestedAt SortField = "requested_at"
	SortByStatus      SortField = "status"
	SortByIdentifier  SortField = "identifier"
)

// SortDir is asc or desc.
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// PageRequest is a zero-based history page.
type PageRequest struct {
	Page    int
	Size    int
	SortBy  SortField
	SortDir SortDir
}

// Normalize fills defaults and rejects out-of-range values.
func (p PageRequest) Normalize() (PageRequest, error) {
	if p.Page < 0 {
		return p, dErrors.New(dErrors.CodeValidation, "page must be zero or greater")
	}
	if p.Size == 0 {
		p.Size = DefaultPageSize
	}
	if p.Size < 1 || p.Size > MaxPageSize {
		return p, dErrors.New(dErrors.CodeValidation, "size must be between 1 and 100")
	}
	p.SortBy = SortField(strings.ToLower(string(p.SortBy)))
	switch p.SortBy {
	case "":
		p.SortBy = SortByRequestedAt
	case SortByRequestedAt, SortByStatus, SortByIdentifier:
	default:
		return p, dErrors.New(dErrors.CodeValidation, "sort_by must be requested_at, status or identifier")
	}
	p.SortDir = SortDir(strings.ToLower(string(p.SortDir)))
	switch p.SortDir {
	case "":
		p.SortDir = SortDesc
	case SortAsc, SortDesc:
	default:
		return p, dErrors.New(dErrors.CodeValidation, "sort_dir must be asc or desc")
	}
	return p, nil
}

// Offset is the number of rows skipped.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Page is one slice of an ordered result set.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewPage computes TotalPages from total and req.Size.
func NewPage[T any](items []T, req PageRequest, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return Page[T]{Items: items, Page: req.Page, Size: req.Size, Total: total, TotalPages: pages}
}

// ClampRecent bounds a recent-records limit to 1..MaxRecent, defaulting to 10.
func ClampRecent(limit int) int {
	switch {
	case limit <= 0:
		return 10
	case limit > MaxRecent:
		return MaxRecent
	default:
		return limit
	}
}
