package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/repository"
)

// LineInput is one requested equipment item.
type LineInput struct {
	ItemName string
	Quantity int
}

// EventInput is the editable part of an event request.
type EventInput struct {
	Name                string
	Type                string
	Venue               string
	Department          string
	StartAt             time.Time
	EndAt               time.Time
	BudgetCents         int64
	BudgetBreakdown     []model.BudgetItem
	AdditionalResources []string
	Timeline            []model.TimelinePhase
	Lines               []LineInput
}

// prepare validates in and builds the fields shared by create and
// update.  Item lookups happen on ctx so they join the caller's
// transaction.
func (s *Service) prepare(ctx context.Context, in EventInput) (*model.Event, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	venue := model.NormalizeVenue(in.Venue)
	if err := s.validateSlot(venue, in.StartAt, in.EndAt, true); err != nil {
		return nil, err
	}
	if in.BudgetCents < 0 {
		return nil, invalid("budget", "must not be negative")
	}
	for i, b := range in.BudgetBreakdown {
		if strings.TrimSpace(b.Category) == "" {
			return nil, invalid(fmt.Sprintf("budget_breakdown[%d].category", i), "is required")
		}
		if b.AmountCents < 0 {
			return nil, invalid(fmt.Sprintf("budget_breakdown[%d].amount", i), "must not be negative")
		}
	}
	start, end := in.StartAt.UTC(), in.EndAt.UTC()
	timeline, err := validateTimeline(in.Timeline, start, end)
	if err != nil {
		return nil, err
	}
	if len(timeline) == 0 {
		timeline = DefaultTimeline(name, start, end)
	}

	seen := make(map[string]bool, len(in.Lines))
	lines := make([]model.EquipmentRequestLine, 0, len(in.Lines))
	for i, l := range in.Lines {
		field := fmt.Sprintf("equipment[%d]", i)
		item := strings.TrimSpace(l.ItemName)
		if item == "" {
			return nil, invalid(field+".item", "is required")
		}
		if l.Quantity <= 0 {
			return nil, invalid(field+".quantity", "must be greater than zero")
		}
		key := strings.ToLower(item)
		if seen[key] {
			return nil, invalid(field+".item", "%q is listed more than once", item)
		}
		seen[key] = true
		it, err := s.store.GetItemByName(ctx, item)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, invalid(field+".item", "unknown equipment %q", item)
		}
		if err != nil {
			return nil, err
		}
		if it.Archived {
			return nil, invalid(field+".item", "equipment %q is archived", item)
		}
		lines = append(lines, model.EquipmentRequestLine{
			ItemName:          it.Name,
			QuantityRequested: l.Quantity,
			Status:            model.LinePending,
		})
	}

	var resources []string
	for _, r := range in.AdditionalResources {
		if r = strings.TrimSpace(r); r != "" {
			resources = append(resources, r)
		}
	}
	return &model.Event{
		Name:                name,
		Type:                strings.TrimSpace(in.Type),
		Venue:               venue,
		StartAt:             start,
		EndAt:               end,
		Status:              model.StatusPending,
		Department:          strings.TrimSpace(in.Department),
		BudgetCents:         in.BudgetCents,
		BudgetBreakdown:     in.BudgetBreakdown,
		AdditionalResources: resources,
		Timeline:            timeline,
		EquipmentStatus:     model.AggregateEquipmentStatus(lines),
		Lines:               lines,
	}, nil
}

// checkApprovedSlot refuses a slot already taken by an approved or
// completed event.  Overlapping pending requests are allowed; the first
// one approved wins.
func (s *Service) checkApprovedSlot(ctx context.Context, venue string, start, end time.Time, exclude uint64) error {
	bookings, err := s.store.FindBookings(ctx, model.SlotQuery{Venue: venue, StartAt: start, EndAt: end, ExcludeEventID: exclude}, false)
	if err != nil {
		return err
	}
	var taken []model.VenueBooking
	for _, b := range bookings {
		if !b.Status.Cascadable() {
			taken = append(taken, b)
		}
	}
	if len(taken) > 0 {
		return &ConflictError{Venue: venue, Conflicts: taken}
	}
	return nil
}

// CreateEvent files a new Pending request on behalf of actor.
func (s *Service) CreateEvent(ctx context.Context, actor model.Actor, in EventInput) (*model.Event, error) {
	if !actor.Role.Valid() {
		return nil, &AuthorizationError{Role: actor.Role, Action: "create events"}
	}
	var out *model.Event
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		ev, err := s.prepare(ctx, in)
		if err != nil {
			return err
		}
		if err := s.store.LockVenues(ctx, ev.Venue); err != nil {
			return err
		}
		if err := s.checkApprovedSlot(ctx, ev.Venue, ev.StartAt, ev.EndAt, 0); err != nil {
			return err
		}
		now := s.clock.Now()
		ev.RequestorID = actor.ID
		ev.CreatedAt, ev.UpdatedAt = now, now
		if err := s.store.CreateEvent(ctx, ev); err != nil {
			return err
		}
		out, err = s.reload(ctx, ev.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint64("event_id", out.ID).Uint64("requestor_id", actor.ID).Str("venue", out.Venue).Msg("event requested")
	return out, nil
}

func canSee(actor model.Actor, ev *model.Event) bool {
	return actor.Role != model.RoleRequestor || ev.RequestorID == actor.ID
}

// GetEvent returns an event with its lines and decision trail.
// Requestors only see their own events.
func (s *Service) GetEvent(ctx context.Context, actor model.Actor, id uint64) (*model.Event, error) {
	ev, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, ev) {
		return nil, &AuthorizationError{Role: actor.Role, Action: "view this event"}
	}
	return ev, nil
}

// ListEvents returns events matching f; requestors are limited to their own.
func (s *Service) ListEvents(ctx context.Context, actor model.Actor, f model.EventFilter) ([]model.Event, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("status", "unknown status %q", f.Status)
	}
	if actor.Role == model.RoleRequestor {
		f.RequestorID = actor.ID
	}
	f.Venue = model.NormalizeVenue(f.Venue)
	return s.store.ListEvents(ctx, f)
}

func canEdit(actor model.Actor, ev *model.Event) bool {
	switch actor.Role {
	case model.RoleAdmin, model.RoleSuperAdmin:
		return true
	case model.RoleRequestor:
		return ev.RequestorID == actor.ID
	}
	return false
}

// checkEditable gates update and delete: the requestor or an admin, on
// a Pending event that has not started.
func (s *Service) checkEditable(actor model.Actor, ev *model.Event, op string) error {
	if !canEdit(actor, ev) {
		return &AuthorizationError{Role: actor.Role, Action: op + " this event"}
	}
	if ev.Status == model.StatusPending && !ev.StartAt.After(s.clock.Now()) {
		return &AuthorizationError{Role: actor.Role, Action: op, Message: fmt.Sprintf("event %d has already started", ev.ID)}
	}
	if ev.Status != model.StatusPending {
		return invalid("status", "only pending events can be changed; event %d is %s", ev.ID, ev.Status)
	}
	return nil
}

// UpdateEvent replaces the request while it is still Pending.  Line
// decisions are reset because the lines are rebuilt from the input.
func (s *Service) UpdateEvent(ctx context.Context, actor model.Actor, id uint64, in EventInput) (*model.Event, error) {
	var out *model.Event
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		cur, err := s.lockEventWithVenue(ctx, id, model.NormalizeVenue(in.Venue))
		if err != nil {
			return err
		}
		if err := s.checkEditable(actor, cur, "update"); err != nil {
			return err
		}
		ev, err := s.prepare(ctx, in)
		if err != nil {
			return err
		}
		if err := s.checkApprovedSlot(ctx, ev.Venue, ev.StartAt, ev.EndAt, id); err != nil {
			return err
		}
		ev.ID = cur.ID
		ev.RequestorID = cur.RequestorID
		ev.CreatedAt = cur.CreatedAt
		ev.Version = cur.Version
		ev.UpdatedAt = s.clock.Now()
		if err := s.store.UpdateEvent(ctx, ev); err != nil {
			return err
		}
		out, err = s.reload(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.dropDraft(ctx, id)
	return out, nil
}

// DeleteEvent withdraws a Pending request.
func (s *Service) DeleteEvent(ctx context.Context, actor model.Actor, id uint64) error {
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		ev, err := s.lockEvent(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkEditable(actor, ev, "delete"); err != nil {
			return err
		}
		return s.store.DeleteEvent(ctx, id)
	})
	if err != nil {
		return err
	}
	s.dropDraft(ctx, id)
	s.log.Info().Uint64("event_id", id).Uint64("actor_id", actor.ID).Msg("event deleted")
	return nil
}

// FulfillmentLine is one row of the resource fulfillment dashboard.
// Available already includes the line's own commitment, so it is the
// most this line could be approved for right now.
type FulfillmentLine struct {
	Line          model.EquipmentRequestLine
	ItemID        uint64
	TotalQuantity int
	InUse         int
	Available     int
	Archived      bool
	Missing       bool
	LegalActions  []model.LineAction
}

// Fulfillment is the per-line view of an event's equipment request.
type Fulfillment struct {
	Event *model.Event
	Lines []FulfillmentLine
}

// Fulfillment reports requested, approved, available and in-use
// quantities per line together with the decisions that are legal now.
func (s *Service) Fulfillment(ctx context.Context, actor model.Actor, id uint64) (*Fulfillment, error) {
	ev, err := s.GetEvent(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	decidable := false
	for _, st := range transitionRules[ActDecideEquipment][actor.Role] {
		if ev.Status == st {
			decidable = true
		}
	}
	out := &Fulfillment{Event: ev}
	for _, l := range ev.Lines {
		fl := FulfillmentLine{Line: l}
		it, err := s.store.GetItemByName(ctx, l.ItemName)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			fl.Missing = true
		case err != nil:
			return nil, err
		default:
			fl.ItemID = it.ID
			fl.TotalQuantity = it.TotalQuantity
			fl.InUse = it.InUse
			fl.Archived = it.Archived
			fl.Available = it.Available()
			if ev.Status.HoldsEquipment() {
				fl.Available += l.CommittedQuantity()
			}
		}
		if decidable {
			fl.LegalActions = legalActions(fl)
		}
		out.Lines = append(out.Lines, fl)
	}
	return out, nil
}

func legalActions(fl FulfillmentLine) []model.LineAction {
	var acts []model.LineAction
	if !fl.Missing {
		if fl.Available >= fl.Line.QuantityRequested {
			acts = append(acts, model.ActionApprove)
		} else if fl.Available > 0 {
			acts = append(acts, model.ActionPartialApprove)
		}
	}
	acts = append(acts, model.ActionReject, model.ActionSelfProvide)
	if fl.Line.Status.Committed() {
		acts = append(acts, model.ActionRevoke)
	}
	return acts
}

// Suggest asks the configured predictor for budget, timeline and
// equipment proposals.
func (s *Service) Suggest(ctx context.Context, actor model.Actor, id uint64) (*model.Suggestion, error) {
	ev, err := s.GetEvent(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if s.predictor == nil {
		return nil, ErrPredictorUnavailable
	}
	sug, err := s.predictor.Suggest(ctx, *ev)
	if err != nil {
		s.log.Warn().Err(err).Uint64("event_id", id).Msg("predictor failed")
		return nil, fmt.Errorf("%w: %v", ErrPredictorUnavailable, err)
	}
	return &sug, nil
}
