package catalog

import (
	"context"
	"strings"
)

// Summary is the read-only listing projection used to attach product
// context to a message. Fields mirror what the catalog service exposes.
type Summary struct {
	ListingID       string
	Title           string
	Price           string
	FirstMediaURL   string
	CategoryName    string
	SubcategoryName string
}

// Directory is the catalog collaborator. A missing listing is not an
// error: implementations return (nil, nil) and callers omit the context.
type Directory interface {
	Summary(ctx context.Context, listingID string) (*Summary, error)
}

// ContextLine renders the frozen product-context snapshot stored on a
// message, so the reference survives later listing edits.
func (s *Summary) ContextLine() string {
	if s == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	if s.Title != "" {
		parts = append(parts, s.Title)
	}
	if s.Price != "" {
		parts = append(parts, s.Price)
	}
	category := s.CategoryName
	if s.SubcategoryName != "" {
		if category != "" {
			category += " / " + s.SubcategoryName
		} else {
			category = s.SubcategoryName
		}
	}
	if category != "" {
		parts = append(parts, category)
	}
	return strings.Join(parts, " · ")
}
