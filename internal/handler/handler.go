package handler // handler defines the HTTP handlers of the API

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Lierre03/bcp-ems-sub000/internal/middleware"
	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/service"
	"github.com/Lierre03/bcp-ems-sub000/internal/validator"
)

// Handler exposes the workflow service over HTTP.
type Handler struct {
	svc *service.Service
	log zerolog.Logger
}

// New constructs a Handler and panics when the service is nil.
func New(svc *service.Service, log zerolog.Logger) *Handler {
	if svc == nil {
		panic("nil service passed to handler.New")
	}
	return &Handler{svc: svc, log: log}
}

// ok writes the success envelope.
func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}

// message writes a success envelope without a payload.
func message(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": msg})
}

func list[T any](items []T) echo.Map {
	if items == nil {
		items = []T{}
	}
	return echo.Map{"items": items, "count": len(items)}
}

// fail maps an error from binding or from the service onto a status code
// and the error envelope.
func (h *Handler) fail(c echo.Context, err error) error {
	var (
		fe   *validator.FieldError
		ve   *service.ValidationError
		ce   *service.ConflictError
		ie   *service.InsufficientInventoryError
		ae   *service.AuthorizationError
		nf   *service.NotFoundError
		herr *echo.HTTPError
	)
	switch {
	case errors.As(err, &fe):
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": fe.Error(), "field": fe.Field})
	case errors.As(err, &ve):
		status := http.StatusBadRequest
		switch ve.Field {
		case "status", "version", "idempotency_key", "archived":
			// Well-formed, but not acceptable in the current state.
			status = http.StatusUnprocessableEntity
		}
		return c.JSON(status, echo.Map{"success": false, "error": ve.Error(), "field": ve.Field})
	case errors.As(err, &ce):
		return c.JSON(http.StatusConflict, echo.Map{"success": false, "error": ce.Error(), "conflicts": bookingDTOs(ce.Conflicts)})
	case errors.As(err, &ie):
		return c.JSON(http.StatusConflict, echo.Map{
			"success":   false,
			"error":     ie.Error(),
			"item_name": ie.ItemName,
			"requested": ie.Requested,
			"available": ie.Available,
		})
	case errors.As(err, &ae):
		return c.JSON(http.StatusForbidden, echo.Map{"success": false, "error": ae.Error()})
	case errors.As(err, &nf):
		return c.JSON(http.StatusNotFound, echo.Map{"success": false, "error": nf.Error()})
	case errors.Is(err, service.ErrPredictorUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"success": false, "error": err.Error()})
	case errors.Is(err, context.Canceled):
		return c.JSON(http.StatusRequestTimeout, echo.Map{"success": false, "error": "request cancelled"})
	case errors.As(err, &herr):
		return c.JSON(herr.Code, echo.Map{"success": false, "error": herr.Message})
	}
	h.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "internal error"})
}

// actor returns the caller set by JWTAuth.
func actor(c echo.Context) (model.Actor, error) {
	a, found := middleware.Actor(c)
	if !found {
		return model.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return a, nil
}

// pathID parses the :id path parameter.
func pathID(c echo.Context, what string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, &validator.FieldError{Field: "id", Message: "invalid " + what + " id"}
	}
	return id, nil
}

// bind decodes the JSON body into req and validates its tags.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return &validator.FieldError{Field: "body", Message: "malformed JSON body"}
	}
	return validator.Validate(c.Request().Context(), req)
}
