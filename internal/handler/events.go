package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/service"
	"github.com/Lierre03/bcp-ems-sub000/internal/validator"
)

// ListEvents handles GET /v1/events.  Optional filters: status, venue and
// requestor_id.  Requestors only ever see their own events.
func (h *Handler) ListEvents(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	f := model.EventFilter{
		Status: model.EventStatus(c.QueryParam("status")),
		Venue:  c.QueryParam("venue"),
	}
	if f.Status != "" && !f.Status.Valid() {
		return h.fail(c, &validator.FieldError{Field: "status", Message: "unknown status"})
	}
	if v := c.QueryParam("requestor_id"); v != "" {
		id, perr := strconv.ParseUint(v, 10, 64)
		if perr != nil {
			return h.fail(c, &validator.FieldError{Field: "requestor_id", Message: "must be a number"})
		}
		f.RequestorID = id
	}
	evs, err := h.svc.ListEvents(c.Request().Context(), a, f)
	if err != nil {
		return h.fail(c, err)
	}
	out := make([]eventDTO, 0, len(evs))
	for i := range evs {
		out = append(out, toEventDTO(&evs[i]))
	}
	return ok(c, http.StatusOK, list(out))
}

// CreateEvent handles POST /v1/events.
func (h *Handler) CreateEvent(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req eventRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	in, err := req.input()
	if err != nil {
		return h.fail(c, err)
	}
	ev, err := h.svc.CreateEvent(c.Request().Context(), a, in)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusCreated, toEventDTO(ev))
}

// GetEvent handles GET /v1/events/:id.
func (h *Handler) GetEvent(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := pathID(c, "event")
	if err != nil {
		return h.fail(c, err)
	}
	ev, err := h.svc.GetEvent(c.Request().Context(), a, id)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, toEventDTO(ev))
}

// UpdateEvent handles PUT /v1/events/:id while the event is Pending.
func (h *Handler) UpdateEvent(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := pathID(c, "event")
	if err != nil {
		return h.fail(c, err)
	}
	var req eventRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	in, err := req.input()
	if err != nil {
		return h.fail(c, err)
	}
	ev, err := h.svc.UpdateEvent(c.Request().Context(), a, id, in)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, toEventDTO(ev))
}

// DeleteEvent handles DELETE /v1/events/:id while the event is Pending.
func (h *Handler) DeleteEvent(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := pathID(c, "event")
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.svc.DeleteEvent(c.Request().Context(), a, id); err != nil {
		return h.fail(c, err)
	}
	return message(c, "event deleted")
}

// transition runs one of the body-less workflow actions.
func (h *Handler) transition(c echo.Context, fn func(*service.Service, echo.Context, model.Actor, uint64) (*model.Event, error)) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := pathID(c, "event")
	if err != nil {
		return h.fail(c, err)
	}
	ev, err := fn(h.svc, c, a, id)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, toEventDTO(ev))
}

// ApproveConcept handles POST /v1/events/:id/approve-concept.
func (h *Handler) ApproveConcept(c echo.Context) error {
	return h.transition(c, func(s *service.Service, c echo.Context, a model.Actor, id uint64) (*model.Event, error) {
		return s.ApproveConcept(c.Request().Context(), a, id)
	})
}

// Complete handles POST /v1/events/:id/complete.
func (h *Handler) Complete(c echo.Context) error {
	return h.transition(c, func(s *service.Service, c echo.Context, a model.Actor, id uint64) (*model.Event, error) {
		return s.Complete(c.Request().Context(), a, id)
	})
}

// Archive handles POST /v1/events/:id/archive.
func (h *Handler) Archive(c echo.Context) error {
	return h.transition(c, func(s *service.Service, c echo.Context, a model.Actor, id uint64) (*model.Event, error) {
		return s.Archive(c.Request().Context(), a, id)
	})
}

// Reject handles POST /v1/events/:id/reject.  The body carries the reason.
func (h *Handler) Reject(c echo.Context) error {
	var req reasonRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	return h.transition(c, func(s *service.Service, c echo.Context, a model.Actor, id uint64) (*model.Event, error) {
		return s.Reject(c.Request().Context(), a, id, req.Reason)
	})
}

// Reschedule handles POST /v1/events/:id/reschedule.
func (h *Handler) Reschedule(c echo.Context) error {
	var req rescheduleRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	in := service.RescheduleInput{Venue: req.Venue, StartAt: req.StartAt.UTC(), EndAt: req.EndAt.UTC()}
	return h.transition(c, func(s *service.Service, c echo.Context, a model.Actor, id uint64) (*model.Event, error) {
		return s.Reschedule(c.Request().Context(), a, id, in)
	})
}

// idempotencyKey prefers the Idempotency-Key header over the body field.
func idempotencyKey(c echo.Context, body string) string {
	if k := c.Request().Header.Get("Idempotency-Key"); k != "" {
		return k
	}
	return body
}

// approval runs one of the two final approval actions.  The body is
// optional; without it every line must already be decided.
func (h *Handler) approval(c echo.Context, final bool) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := pathID(c, "event")
	if err != nil {
		return h.fail(c, err)
	}
	var req batchRequest
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return h.fail(c, err)
		}
	}
	in := service.ApproveInput{Decisions: decisions(req.Decisions), IdempotencyKey: idempotencyKey(c, req.IdempotencyKey)}
	var out *model.BatchOutcome
	if final {
		out, err = h.svc.SuperAdminApprove(c.Request().Context(), a, id, in)
	} else {
		out, err = h.svc.ApproveResources(c.Request().Context(), a, id, in)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, toOutcomeDTO(out))
}

// ApproveResources handles POST /v1/events/:id/approve-resources.
func (h *Handler) ApproveResources(c echo.Context) error { return h.approval(c, false) }

// SuperAdminApprove handles POST /v1/events/:id/superadmin-approve.
func (h *Handler) SuperAdminApprove(c echo.Context) error { return h.approval(c, true) }

// Fulfillment handles GET /v1/events/:id/fulfillment.
func (h *Handler) Fulfillment(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := pathID(c, "event")
	if err != nil {
		return h.fail(c, err)
	}
	f, err := h.svc.Fulfillment(c.Request().Context(), a, id)
	if err != nil {
		return h.fail(c, err)
	}
	lines := make([]fulfillmentLineDTO, 0, len(f.Lines))
	for _, l := range f.Lines {
		acts := make([]string, 0, len(l.LegalActions))
		for _, act := range l.LegalActions {
			acts = append(acts, string(act))
		}
		lines = append(lines, fulfillmentLineDTO{
			lineDTO:       lineDTOs([]model.EquipmentRequestLine{l.Line})[0],
			ItemID:        l.ItemID,
			TotalQuantity: l.TotalQuantity,
			InUse:         l.InUse,
			Available:     l.Available,
			Archived:      l.Archived,
			Missing:       l.Missing,
			LegalActions:  acts,
		})
	}
	return ok(c, http.StatusOK, echo.Map{
		"event_id":         f.Event.ID,
		"status":           f.Event.Status,
		"equipment_status": f.Event.EquipmentStatus,
		"lines":            lines,
	})
}

// Suggestions handles GET /v1/events/:id/suggestions.
func (h *Handler) Suggestions(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := pathID(c, "event")
	if err != nil {
		return h.fail(c, err)
	}
	sug, err := h.svc.Suggest(c.Request().Context(), a, id)
	if err != nil {
		return h.fail(c, err)
	}
	out := suggestionDTO{BudgetCents: sug.BudgetCents, Timeline: timelineDTOs(sug.Timeline), Equipment: []lineRequest{}}
	for _, e := range sug.Equipment {
		out.Equipment = append(out.Equipment, lineRequest{ItemName: e.ItemName, Quantity: e.Quantity})
	}
	return ok(c, http.StatusOK, out)
}
