package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"clientregistry/internal/core/id"
	"clientregistry/internal/domain"
	"clientregistry/internal/domain/client"
	"clientregistry/internal/infrastructure/http/v1/dto"
)

// ClientService is the part of client.Service used by the HTTP layer.
type ClientService interface {
	Create(ctx context.Context, in client.Input) (*client.Client, error)
	Update(ctx context.Context, clientID id.ID, in client.Input) (*client.Client, error)
	Delete(ctx context.Context, clientID id.ID) error
	SetActive(ctx context.Context, clientID id.ID, active bool) (*client.Client, error)
	PromoteAddress(ctx context.Context, clientID, addressID id.ID) (*client.Client, error)
	Get(ctx context.Context, clientID id.ID) (*client.Client, error)
	FindByTaxID(ctx context.Context, raw string) (*client.Client, error)
	List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*client.Client], error)

	ListAddresses(ctx context.Context, clientID id.ID) ([]client.Address, error)
	AddAddress(ctx context.Context, clientID id.ID, in client.AddressInput) (*client.Address, error)
	UpdateAddress(ctx context.Context, clientID, addressID id.ID, in client.AddressInput) (*client.Address, error)
	DeleteAddress(ctx context.Context, clientID, addressID id.ID) error
}

var _ ClientService = (*client.Service)(nil)

// ClientHandler handles /clients and its address sub-resource.
type ClientHandler struct {
	*BaseHandler
	service ClientService
}

// NewClientHandler creates a new client handler.
func NewClientHandler(base *BaseHandler, service ClientService) *ClientHandler {
	return &ClientHandler{BaseHandler: base, service: service}
}

// List handles GET /clients
func (h *ClientHandler) List(c *gin.Context) {
	var q dto.ListQuery
	if !h.BindQuery(c, &q) {
		return
	}

	page, err := h.service.List(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(page, func(cl *client.Client) dto.ClientResponse {
		return dto.FromClient(cl)
	}))
}

// Create handles POST /clients
func (h *ClientHandler) Create(c *gin.Context) {
	var req dto.ClientRequest
	if !h.BindJSON(c, &req) {
		return
	}

	created, err := h.service.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromClient(created))
}

// Get handles GET /clients/:id
func (h *ClientHandler) Get(c *gin.Context) {
	clientID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	found, err := h.service.Get(c.Request.Context(), clientID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromClient(found))
}

// GetByTaxID handles GET /clients/by-tax-id/:taxId
func (h *ClientHandler) GetByTaxID(c *gin.Context) {
	found, err := h.service.FindByTaxID(c.Request.Context(), c.Param("taxId"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromClient(found))
}

// Update handles PUT /clients/:id
func (h *ClientHandler) Update(c *gin.Context) {
	clientID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.ClientRequest
	if !h.BindJSON(c, &req) {
		return
	}

	updated, err := h.service.Update(c.Request.Context(), clientID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromClient(updated))
}

// Delete handles DELETE /clients/:id
func (h *ClientHandler) Delete(c *gin.Context) {
	clientID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), clientID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// SetActive handles PATCH /clients/:id/active
func (h *ClientHandler) SetActive(c *gin.Context) {
	clientID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.SetActiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	updated, err := h.service.SetActive(c.Request.Context(), clientID, *req.Active)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromClient(updated))
}

// PromoteAddress handles POST /clients/:id/addresses/:addressId/promote
func (h *ClientHandler) PromoteAddress(c *gin.Context) {
	clientID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	addressID, ok := h.ParseID(c, "addressId")
	if !ok {
		return
	}

	updated, err := h.service.PromoteAddress(c.Request.Context(), clientID, addressID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromClient(updated))
}

// ListAddresses handles GET /clients/:id/addresses
func (h *ClientHandler) ListAddresses(c *gin.Context) {
	clientID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	addrs, err := h.service.ListAddresses(c.Request.Context(), clientID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAddresses(addrs))
}

// AddAddress handles POST /clients/:id/addresses
func (h *ClientHandler) AddAddress(c *gin.Context) {
	clientID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.AddressRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in := req.ToInput()
	in.ID = 0

	added, err := h.service.AddAddress(c.Request.Context(), clientID, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromAddress(*added))
}

// UpdateAddress handles PUT /clients/:id/addresses/:addressId
func (h *ClientHandler) UpdateAddress(c *gin.Context) {
	clientID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	addressID, ok := h.ParseID(c, "addressId")
	if !ok {
		return
	}
	var req dto.AddressRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in := req.ToInput()
	in.ID = addressID

	updated, err := h.service.UpdateAddress(c.Request.Context(), clientID, addressID, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromAddress(*updated))
}

// DeleteAddress handles DELETE /clients/:id/addresses/:addressId
func (h *ClientHandler) DeleteAddress(c *gin.Context) {
	clientID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	addressID, ok := h.ParseID(c, "addressId")
	if !ok {
		return
	}
	if err := h.service.DeleteAddress(c.Request.Context(), clientID, addressID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
