package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/validator"
)

// CheckConflicts handles GET /v1/conflicts?venue=&start=&end=&exclude=.
// start and end are RFC 3339 timestamps.
func (h *Handler) CheckConflicts(c echo.Context) error {
	q := model.SlotQuery{Venue: c.QueryParam("venue")}
	var err error
	if q.StartAt, err = queryTime(c, "start"); err != nil {
		return h.fail(c, err)
	}
	if q.EndAt, err = queryTime(c, "end"); err != nil {
		return h.fail(c, err)
	}
	if v := c.QueryParam("exclude"); v != "" {
		if q.ExcludeEventID, err = strconv.ParseUint(v, 10, 64); err != nil {
			return h.fail(c, &validator.FieldError{Field: "exclude", Message: "must be an event id"})
		}
	}
	conflicts, err := h.svc.CheckConflicts(c.Request().Context(), q)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{
		"available": len(conflicts) == 0,
		"conflicts": bookingDTOs(conflicts),
	})
}

// CheckSlots handles POST /v1/conflicts/slots.
func (h *Handler) CheckSlots(c echo.Context) error {
	var req slotsRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	qs := make([]model.SlotQuery, 0, len(req.Slots))
	for _, s := range req.Slots {
		qs = append(qs, s.query())
	}
	res, err := h.svc.CheckSlots(c.Request().Context(), qs)
	if err != nil {
		return h.fail(c, err)
	}
	out := make([]echo.Map, 0, len(res))
	for _, r := range res {
		out = append(out, echo.Map{
			"venue":     r.Slot.Venue,
			"start_at":  r.Slot.StartAt,
			"end_at":    r.Slot.EndAt,
			"available": r.Free(),
			"conflicts": bookingDTOs(r.Conflicts),
		})
	}
	return ok(c, http.StatusOK, list(out))
}

func queryTime(c echo.Context, name string) (time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return time.Time{}, &validator.FieldError{Field: name, Message: validator.ErrFieldRequired}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, &validator.FieldError{Field: name, Message: "must be an RFC 3339 timestamp"}
	}
	return t.UTC(), nil
}
