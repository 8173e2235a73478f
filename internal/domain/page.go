package domain

import (
	"fmt"
	"math"
	"strings"
)

// DefaultPageSize is used when a caller does not ask for a size.
const DefaultPageSize = 20

// SortOrder orders a page by one field.
type SortOrder struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending"`
}

// PageRequest selects a zero-based page of a result set.
type PageRequest struct {
	Page int64       `json:"page"`
	Size int64       `json:"size"`
	Sort []SortOrder `json:"sort,omitempty"`
}

// Validate checks page >= 0, size > 0 and that the offset fits in an int64.
func (p PageRequest) Validate() error {
	if p.Page < 0 {
		return fmt.Errorf("%w: page must be >= 0", ErrInvalidInput)
	}
	if p.Size <= 0 {
		return fmt.Errorf("%w: size must be > 0", ErrInvalidInput)
	}
	if p.Page > math.MaxInt64/p.Size {
		return fmt.Errorf("%w: page is out of range", ErrInvalidInput)
	}
	return nil
}

// Offset is the number of rows skipped before this page.
func (p PageRequest) Offset() int64 {
	return p.Page * p.Size
}

// ValidateSort rejects sort fields outside allowed.
func (p PageRequest) ValidateSort(allowed ...string) error {
	for _, o := range p.Sort {
		ok := false
		for _, a := range allowed {
			if o.Field == a {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: cannot sort by %q", ErrInvalidInput, o.Field)
		}
	}
	return nil
}

// ParseSort parses "field" or "field,asc|desc" values.
func ParseSort(values []string) ([]SortOrder, error) {
	var orders []SortOrder
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		parts := strings.Split(v, ",")
		order := SortOrder{Field: strings.TrimSpace(parts[0])}
		if len(parts) > 2 || order.Field == "" {
			return nil, fmt.Errorf("%w: malformed sort %q", ErrInvalidInput, v)
		}
		if len(parts) == 2 {
			switch strings.ToLower(strings.TrimSpace(parts[1])) {
			case "asc":
			case "desc":
				order.Descending = true
			default:
				return nil, fmt.Errorf("%w: malformed sort direction %q", ErrInvalidInput, parts[1])
			}
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// Page is one slice of a larger ordered result set.
type Page[T any] struct {
	Content       []T   `json:"content"`
	Page          int64 `json:"page"`
	Size          int64 `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int64 `json:"totalPages"`
}

// NewPage builds a page and derives TotalPages. Content is never nil.
func NewPage[T any](content []T, req PageRequest, total int64) *Page[T] {
	if content == nil {
		content = []T{}
	}
	var pages int64
	if req.Size > 0 {
		pages = total / req.Size
		if total%req.Size != 0 {
			pages++
		}
	}
	return &Page[T]{
		Content:       content,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    pages,
	}
}
