package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/Lierre03/bcp-ems-sub000/internal/handler"
	"github.com/Lierre03/bcp-ems-sub000/internal/middleware"
	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

// allRoles are the roles a token may carry.
var allRoles = []model.Role{model.RoleRequestor, model.RoleAdmin, model.RoleStaff, model.RoleSuperAdmin}

// RegisterRoutes registers the routes that do not require authentication.
// Currently it exposes only a health check that also pings the store.
func RegisterRoutes(e *echo.Echo, store handler.Pinger) {
	e.GET("/healthz", handler.Health(store))
}

// RegisterAPI registers every /v1 endpoint.  All of them require a valid
// access token; extra middleware (such as the rate limiter) runs after
// authentication so that it can key on the caller.
func RegisterAPI(e *echo.Echo, h *handler.Handler, jwtSecret string, extra ...echo.MiddlewareFunc) {
	mws := append([]echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(allRoles...),
	}, extra...)
	g := e.Group("/v1", mws...)

	registerEvents(g, h)
	registerEquipment(g, h)

	g.GET("/conflicts", h.CheckConflicts)
	g.POST("/conflicts/slots", h.CheckSlots)
}
