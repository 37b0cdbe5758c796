// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"clientregistry/internal/infrastructure/http/v1/handlers"
)

// guards are the middleware placed in front of read and write routes.
type guards struct {
	read  []gin.HandlerFunc
	write []gin.HandlerFunc
}

func (g guards) reader(h gin.HandlerFunc) []gin.HandlerFunc {
	return append(append([]gin.HandlerFunc{}, g.read...), h)
}

func (g guards) writer(h gin.HandlerFunc) []gin.HandlerFunc {
	return append(append([]gin.HandlerFunc{}, g.write...), h)
}

// registerClientRoutes registers the client resource, its address
// sub-resource and the audit history.
func registerClientRoutes(group *gin.RouterGroup, h *handlers.ClientHandler, history *handlers.HistoryHandler, g guards) {
	group.GET("", g.reader(h.List)...)
	group.POST("", g.writer(h.Create)...)
	group.GET("/by-tax-id/:taxId", g.reader(h.GetByTaxID)...)
	group.GET("/:id", g.reader(h.Get)...)
	group.PUT("/:id", g.writer(h.Update)...)
	group.DELETE("/:id", g.writer(h.Delete)...)
	group.PATCH("/:id/active", g.writer(h.SetActive)...)

	group.GET("/:id/addresses", g.reader(h.ListAddresses)...)
	group.POST("/:id/addresses", g.writer(h.AddAddress)...)
	group.PUT("/:id/addresses/:addressId", g.writer(h.UpdateAddress)...)
	group.DELETE("/:id/addresses/:addressId", g.writer(h.DeleteAddress)...)
	group.POST("/:id/addresses/:addressId/promote", g.writer(h.PromoteAddress)...)

	if history != nil {
		group.GET("/:id/history", g.reader(history.Client)...)
	}
}

// registerReportRoutes registers the report endpoints.
func registerReportRoutes(group *gin.RouterGroup, h *handlers.ReportHandler, g guards) {
	group.GET("/clients", g.reader(h.Clients)...)
	group.GET("/clients.csv", g.reader(h.ClientsCSV)...)
}
