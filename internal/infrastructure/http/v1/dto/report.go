package dto

import (
	"encoding/json"
	"strings"
	"time"

	"clientregistry/internal/domain/client"
	"clientregistry/internal/infrastructure/storage/postgres"
)

// ReportQuery holds the parameters of the client report endpoints.
type ReportQuery struct {
	Kind   string `form:"kind" binding:"omitempty,kind"`
	Active *bool  `form:"active"`
	// Name matches part of the full or legal name, ignoring case.
	Name string `form:"name" binding:"max=100"`
	// Where is a boolean CEL expression over the row fields.
	Where string `form:"where" binding:"max=1000"`
	Gzip  bool   `form:"gzip"`
}

// ToFilter converts query parameters to the domain report filter.
func (q *ReportQuery) ToFilter() client.ReportFilter {
	return client.ReportFilter{
		Kind:   client.Kind(strings.ToUpper(strings.TrimSpace(q.Kind))),
		Active: q.Active,
		Name:   strings.TrimSpace(q.Name),
	}
}

// ReportResponse is the JSON rendering of a report.
type ReportResponse struct {
	Rows        []client.ReportRow `json:"rows"`
	Count       int                `json:"count"`
	GeneratedAt time.Time          `json:"generatedAt"`
}

// HistoryQuery limits the audit history page.
type HistoryQuery struct {
	Limit int `form:"limit" binding:"min=0,max=500"`
}

// HistoryEntry is one audit record of a client.
type HistoryEntry struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	UserID    string          `json:"userId,omitempty"`
	UserEmail string          `json:"userEmail,omitempty"`
	Changes   json.RawMessage `json:"changes"`
	TraceID   string          `json:"traceId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// FromAuditEntries converts audit rows to DTOs.
func FromAuditEntries(entries []postgres.AuditEntry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:        e.ID.String(),
			Action:    e.Action,
			UserID:    e.UserID,
			UserEmail: e.UserEmail,
			Changes:   e.Changes,
			TraceID:   e.TraceID,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
