package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/service"
)

// SubmitDecisions handles POST /v1/events/:id/equipment-decisions.  The
// whole batch commits or none of it does; resending the same
// Idempotency-Key replays the first outcome.
func (h *Handler) SubmitDecisions(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := pathID(c, "event")
	if err != nil {
		return h.fail(c, err)
	}
	var req batchRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	out, err := h.svc.SubmitBatch(c.Request().Context(), a, id, service.BatchInput{
		Decisions:      decisions(req.Decisions),
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, toOutcomeDTO(out))
}

// GetDraft handles GET /v1/events/:id/draft.
func (h *Handler) GetDraft(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := pathID(c, "event")
	if err != nil {
		return h.fail(c, err)
	}
	d, err := h.svc.GetDraft(c.Request().Context(), a, id)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, toDraftDTO(d))
}

// SaveDraft handles PUT /v1/events/:id/draft.  version is the draft
// version the client last read, 0 for a new draft.
func (h *Handler) SaveDraft(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := pathID(c, "event")
	if err != nil {
		return h.fail(c, err)
	}
	var req draftRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	d, err := h.svc.SaveDraft(c.Request().Context(), a, id, decisions(req.Decisions), req.Version)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, toDraftDTO(d))
}

// DiscardDraft handles DELETE /v1/events/:id/draft.
func (h *Handler) DiscardDraft(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := pathID(c, "event")
	if err != nil {
		return h.fail(c, err)
	}
	if err := h.svc.DiscardDraft(c.Request().Context(), a, id); err != nil {
		return h.fail(c, err)
	}
	return message(c, "draft discarded")
}

// CommitDraft handles POST /v1/events/:id/draft/commit.
func (h *Handler) CommitDraft(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := pathID(c, "event")
	if err != nil {
		return h.fail(c, err)
	}
	var req commitDraftRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	out, err := h.svc.CommitDraft(c.Request().Context(), a, id, req.Version, idempotencyKey(c, req.IdempotencyKey))
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, toOutcomeDTO(out))
}

// ListItems handles GET /v1/equipment.  archived=true includes hidden
// items.
func (h *Handler) ListItems(c echo.Context) error {
	includeArchived := strings.EqualFold(c.QueryParam("archived"), "true")
	items, err := h.svc.ListItems(c.Request().Context(), includeArchived)
	if err != nil {
		return h.fail(c, err)
	}
	out := make([]itemDTO, 0, len(items))
	for _, it := range items {
		out = append(out, toItemDTO(it))
	}
	return ok(c, http.StatusOK, list(out))
}

// CreateItem handles POST /v1/equipment.
func (h *Handler) CreateItem(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req createItemRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	it, err := h.svc.CreateItem(c.Request().Context(), a, service.CreateItemInput{
		Name:          req.Name,
		Category:      req.Category,
		TotalQuantity: req.TotalQuantity,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusCreated, toItemDTO(*it))
}

// GetItem handles GET /v1/equipment/:id.
func (h *Handler) GetItem(c echo.Context) error {
	id, err := pathID(c, "item")
	if err != nil {
		return h.fail(c, err)
	}
	it, err := h.svc.GetItem(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, toItemDTO(*it))
}

// AddQuantity handles POST /v1/equipment/:id/add.
func (h *Handler) AddQuantity(c echo.Context) error {
	return h.adjust(c, h.svc.AddQuantity)
}

// ReduceQuantity handles POST /v1/equipment/:id/reduce.  The reason is
// required.
func (h *Handler) ReduceQuantity(c echo.Context) error {
	return h.adjust(c, h.svc.ReduceQuantity)
}

type adjustFunc func(ctx context.Context, a model.Actor, id uint64, qty int, reason string) (*model.EquipmentItem, error)

func (h *Handler) adjust(c echo.Context, fn adjustFunc) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := pathID(c, "item")
	if err != nil {
		return h.fail(c, err)
	}
	var req quantityRequest
	if err := bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	it, err := fn(c.Request().Context(), a, id, req.Quantity, req.Reason)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, toItemDTO(*it))
}

// ArchiveItem handles POST /v1/equipment/:id/archive.
func (h *Handler) ArchiveItem(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return h.fail(c, err)
	}
	id, err := pathID(c, "item")
	if err != nil {
		return h.fail(c, err)
	}
	var req archiveRequest
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return h.fail(c, err)
		}
	}
	it, err := h.svc.ArchiveItem(c.Request().Context(), a, id, req.Reason)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, http.StatusOK, toItemDTO(*it))
}

// ItemAudit handles GET /v1/equipment/:id/audit.
func (h *Handler) ItemAudit(c echo.Context) error {
	id, err := pathID(c, "item")
	if err != nil {
		return h.fail(c, err)
	}
	entries, err := h.svc.AuditTrail(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	out := make([]auditDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditDTO{
			Action:     string(e.Action),
			Delta:      e.Delta,
			TotalAfter: e.TotalAfter,
			Reason:     e.Reason,
			ActorID:    e.ActorID,
			CreatedAt:  e.CreatedAt,
		})
	}
	return ok(c, http.StatusOK, list(out))
}
