package router

import (
	"github.com/labstack/echo/v4"

	"github.com/Lierre03/bcp-ems-sub000/internal/handler"
)

// registerEvents wires the event lifecycle.  Which role may run which
// transition is decided per event state by the service, so these routes
// are open to every authenticated role.
func registerEvents(g *echo.Group, h *handler.Handler) {
	// ---- Events ----
	g.GET("/events", h.ListEvents)
	g.POST("/events", h.CreateEvent)
	g.GET("/events/:id", h.GetEvent)
	g.PUT("/events/:id", h.UpdateEvent)
	g.DELETE("/events/:id", h.DeleteEvent)

	// ---- Workflow ----
	g.POST("/events/:id/approve-concept", h.ApproveConcept)
	g.POST("/events/:id/approve-resources", h.ApproveResources)
	g.POST("/events/:id/superadmin-approve", h.SuperAdminApprove)
	g.POST("/events/:id/reject", h.Reject)
	g.POST("/events/:id/reschedule", h.Reschedule)
	g.POST("/events/:id/complete", h.Complete)
	g.POST("/events/:id/archive", h.Archive)

	// ---- Equipment decisions ----
	g.GET("/events/:id/fulfillment", h.Fulfillment)
	g.POST("/events/:id/equipment-decisions", h.SubmitDecisions)
	g.GET("/events/:id/draft", h.GetDraft)
	g.PUT("/events/:id/draft", h.SaveDraft)
	g.DELETE("/events/:id/draft", h.DiscardDraft)
	g.POST("/events/:id/draft/commit", h.CommitDraft)

	g.GET("/events/:id/suggestions", h.Suggestions)
}
