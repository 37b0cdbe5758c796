package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"clientregistry/internal/core/id"
	"clientregistry/internal/infrastructure/http/v1/dto"
	"clientregistry/internal/infrastructure/storage/postgres"
)

const clientEntityType = "client"

// HistoryReader reads the audit trail of an entity.
type HistoryReader interface {
	GetEntityHistory(ctx context.Context, entityType string, entityID id.ID, limit int) ([]postgres.AuditEntry, error)
}

// HistoryHandler serves the audit trail of a client.
type HistoryHandler struct {
	*BaseHandler
	reader HistoryReader
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(base *BaseHandler, reader HistoryReader) *HistoryHandler {
	return &HistoryHandler{BaseHandler: base, reader: reader}
}

// Client handles GET /clients/:id/history
// Entries of deleted clients remain readable.
func (h *HistoryHandler) Client(c *gin.Context) {
	clientID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var q dto.HistoryQuery
	if !h.BindQuery(c, &q) {
		return
	}

	entries, err := h.reader.GetEntityHistory(c.Request.Context(), clientEntityType, clientID, q.Limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAuditEntries(entries))
}
