package router

import (
	"github.com/labstack/echo/v4"

	"github.com/Lierre03/bcp-ems-sub000/internal/handler"
	"github.com/Lierre03/bcp-ems-sub000/internal/middleware"
	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

// registerEquipment wires the inventory catalog.  Everyone may browse it;
// only staff and super admins change the ledger.
func registerEquipment(g *echo.Group, h *handler.Handler) {
	g.GET("/equipment", h.ListItems)
	g.GET("/equipment/:id", h.GetItem)
	g.GET("/equipment/:id/audit", h.ItemAudit)

	ledger := g.Group("/equipment", middleware.RequireRole(model.RoleStaff, model.RoleSuperAdmin))
	ledger.POST("", h.CreateItem)
	ledger.POST("/:id/add", h.AddQuantity)
	ledger.POST("/:id/reduce", h.ReduceQuantity)
	ledger.POST("/:id/archive", h.ArchiveItem)
}
