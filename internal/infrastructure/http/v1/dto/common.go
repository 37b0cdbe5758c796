// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"clientregistry/internal/domain"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date without time of day, encoded as "YYYY-MM-DD".
type Date struct {
	time.Time
}

// UnmarshalJSON accepts "YYYY-MM-DD"; null and "" leave the date zero.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.New("date must be a string in YYYY-MM-DD format")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("date %q must use YYYY-MM-DD format", s)
	}
	d.Time = t
	return nil
}

// MarshalJSON renders the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(DateLayout))
}

// Ptr returns nil for a missing or zero date.
func (d *Date) Ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

// DateOf wraps t for responses.
func DateOf(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	return &Date{Time: *t}
}

// --- Lists ---

// ListQuery contains list filter and pagination parameters.
type ListQuery struct {
	Search  string `form:"search" binding:"max=100"`
	Kind    string `form:"kind" binding:"omitempty,kind"`
	Active  *bool  `form:"active"`
	OrderBy string `form:"orderBy" binding:"max=50"`
	Limit   int    `form:"limit" binding:"min=0,max=500"`
	Offset  int    `form:"offset" binding:"min=0"`
}

// ToFilter converts query parameters to a domain filter.
func (q *ListQuery) ToFilter() domain.ListFilter {
	f := domain.DefaultListFilter()
	f.Search = strings.TrimSpace(q.Search)
	f.Kind = strings.ToUpper(strings.TrimSpace(q.Kind))
	f.Active = q.Active
	if q.OrderBy != "" {
		f.OrderBy = q.OrderBy
	}
	if q.Limit > 0 {
		f.Limit = q.Limit
	}
	f.Offset = q.Offset
	return f.Normalize()
}

// ListResponse wraps list results with pagination.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// NewListResponse maps every item of a domain page.
func NewListResponse[S, T any](page domain.ListResult[S], mapFn func(S) T) ListResponse[T] {
	items := make([]T, 0, len(page.Items))
	for _, it := range page.Items {
		items = append(items, mapFn(it))
	}
	return ListResponse[T]{
		Items:      items,
		TotalCount: page.TotalCount,
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
}
