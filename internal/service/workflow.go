package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

// Action names a role-gated workflow operation.
type Action string

const (
	ActApproveConcept    Action = "approve concept"
	ActApproveResources  Action = "approve resources"
	ActSuperAdminApprove Action = "superadmin approve"
	ActReject            Action = "reject"
	ActReschedule        Action = "reschedule"
	ActComplete          Action = "complete"
	ActArchive           Action = "archive"
	ActDecideEquipment   Action = "decide equipment"
)

// transitionRules lists, per action and role, the statuses the action may
// start from.  A role missing from an action's map may never perform it.
var transitionRules = map[Action]map[model.Role][]model.EventStatus{
	ActApproveConcept: {
		model.RoleAdmin: {model.StatusPending},
	},
	ActApproveResources: {
		model.RoleStaff: {model.StatusUnderReview},
	},
	ActSuperAdminApprove: {
		model.RoleSuperAdmin: {model.StatusPending, model.StatusUnderReview},
	},
	ActReject: {
		model.RoleAdmin:      {model.StatusPending, model.StatusUnderReview},
		model.RoleSuperAdmin: {model.StatusPending, model.StatusUnderReview},
	},
	ActReschedule: {
		model.RoleAdmin: {model.StatusConflictRejected},
	},
	ActComplete: {
		model.RoleAdmin:      {model.StatusApproved},
		model.RoleSuperAdmin: {model.StatusApproved},
		model.RoleSystem:     {model.StatusApproved},
	},
	ActArchive: {
		model.RoleAdmin:      {model.StatusCompleted, model.StatusRejected, model.StatusConflictRejected},
		model.RoleSuperAdmin: {model.StatusCompleted, model.StatusRejected, model.StatusConflictRejected},
	},
	ActDecideEquipment: {
		model.RoleStaff:      {model.StatusUnderReview, model.StatusApproved},
		model.RoleSuperAdmin: {model.StatusPending, model.StatusUnderReview, model.StatusApproved},
	},
}

// CanPerform reports whether role may ever perform act.
func CanPerform(role model.Role, act Action) bool {
	_, ok := transitionRules[act][role]
	return ok
}

func checkRole(actor model.Actor, act Action) error {
	if !CanPerform(actor.Role, act) {
		return &AuthorizationError{Role: actor.Role, Action: string(act)}
	}
	return nil
}

// authorize applies, in order, the role matrix, the past-event guard and
// the from-state check.
func (s *Service) authorize(actor model.Actor, ev *model.Event, act Action) error {
	if err := checkRole(actor, act); err != nil {
		return err
	}
	if ev.Status == model.StatusPending || ev.Status == model.StatusUnderReview {
		if !ev.StartAt.After(s.clock.Now()) && !(act == ActReject && actor.Role == model.RoleSuperAdmin) {
			return &AuthorizationError{
				Role:    actor.Role,
				Action:  string(act),
				Message: fmt.Sprintf("event %d has already started; only a super admin may reject it", ev.ID),
			}
		}
	}
	for _, st := range transitionRules[act][actor.Role] {
		if ev.Status == st {
			return nil
		}
	}
	return invalid("status", "cannot %s an event in status %s", act, ev.Status)
}

// inTx runs fn in one transaction and publishes the collected status
// changes once it has committed.
func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, changes *[]statusChange) error) error {
	var changes []statusChange
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		changes = changes[:0]
		return fn(ctx, &changes)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, changes)
	return nil
}

func (s *Service) lockEvent(ctx context.Context, id uint64) (*model.Event, error) {
	ev, err := s.store.GetEventForUpdate(ctx, id)
	if err != nil {
		return nil, notFound(err, "event", id)
	}
	return ev, nil
}

// lockEventWithVenue takes the venue lock(s) before the event row lock.
// The venue is read without a lock first; if it moved in between, the
// read is repeated.
func (s *Service) lockEventWithVenue(ctx context.Context, id uint64, extraVenues ...string) (*model.Event, error) {
	for attempt := 0; attempt < 3; attempt++ {
		peek, err := s.store.GetEvent(ctx, id)
		if err != nil {
			return nil, notFound(err, "event", id)
		}
		venues := []string{peek.Venue}
		for _, v := range extraVenues {
			if v != "" {
				venues = append(venues, v)
			}
		}
		if err := s.store.LockVenues(ctx, venues...); err != nil {
			return nil, err
		}
		ev, err := s.lockEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		if ev.Venue == peek.Venue {
			return ev, nil
		}
	}
	return nil, fmt.Errorf("event %d changed venue while being locked", id)
}

func (s *Service) reload(ctx context.Context, id uint64) (*model.Event, error) {
	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, notFound(err, "event", id)
	}
	return ev, nil
}

// ApproveConcept moves a Pending event to UnderReview.
func (s *Service) ApproveConcept(ctx context.Context, actor model.Actor, id uint64) (*model.Event, error) {
	var out *model.Event
	err := s.inTx(ctx, func(ctx context.Context, changes *[]statusChange) error {
		ev, err := s.lockEvent(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, ev, ActApproveConcept); err != nil {
			return err
		}
		if err := s.setStatus(ctx, ev, model.StatusUnderReview, model.StageConcept, actor, model.OutcomeApproved, "", changes); err != nil {
			return err
		}
		out, err = s.reload(ctx, id)
		return err
	})
	return out, err
}

// Reject moves a Pending or UnderReview event to Rejected.  Its
// committed equipment stops counting towards in_use with the status
// change.
func (s *Service) Reject(ctx context.Context, actor model.Actor, id uint64, reason string) (*model.Event, error) {
	var out *model.Event
	err := s.inTx(ctx, func(ctx context.Context, changes *[]statusChange) error {
		ev, err := s.lockEvent(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, ev, ActReject); err != nil {
			return err
		}
		if err := checkReason("reason", reason); err != nil {
			return err
		}
		stage := model.StageConcept
		if ev.Status == model.StatusUnderReview {
			stage = model.StageResources
		}
		if err := s.setStatus(ctx, ev, model.StatusRejected, stage, actor, model.OutcomeRejected, strings.TrimSpace(reason), changes); err != nil {
			return err
		}
		out, err = s.reload(ctx, id)
		return err
	})
	return out, err
}

// ApproveInput is the optional batch sent with an approval.
type ApproveInput struct {
	Decisions      []model.LineDecision
	IdempotencyKey string
}

// ApproveResources is the Staff gate: UnderReview to Approved.
func (s *Service) ApproveResources(ctx context.Context, actor model.Actor, id uint64, in ApproveInput) (*model.BatchOutcome, error) {
	return s.approve(ctx, actor, id, ActApproveResources, model.StageResources, in)
}

// SuperAdminApprove crosses both gates at once: Pending or UnderReview to
// Approved, with the same side effects as ApproveResources.
func (s *Service) SuperAdminApprove(ctx context.Context, actor model.Actor, id uint64, in ApproveInput) (*model.BatchOutcome, error) {
	return s.approve(ctx, actor, id, ActSuperAdminApprove, model.StageFinal, in)
}

func (s *Service) approve(ctx context.Context, actor model.Actor, id uint64, act Action, stage model.DecisionStage, in ApproveInput) (*model.BatchOutcome, error) {
	var out *model.BatchOutcome
	err := s.inTx(ctx, func(ctx context.Context, changes *[]statusChange) error {
		ev, err := s.lockEventWithVenue(ctx, id)
		if err != nil {
			return err
		}
		if err := checkRole(actor, act); err != nil {
			return err
		}
		fp := fingerprint(act, in.Decisions)
		if out, err = s.replay(ctx, id, in.IdempotencyKey, fp); err != nil || out != nil {
			return err
		}
		if err := s.authorize(actor, ev, act); err != nil {
			return err
		}
		if err := validateDecisions(in.Decisions); err != nil {
			return err
		}

		competitors, err := s.store.FindBookings(ctx, model.SlotQuery{
			Venue: ev.Venue, StartAt: ev.StartAt, EndAt: ev.EndAt, ExcludeEventID: ev.ID,
		}, true)
		if err != nil {
			return err
		}
		var blocking []model.VenueBooking
		for _, c := range competitors {
			if !c.Status.Cascadable() {
				blocking = append(blocking, c)
			}
		}
		if len(blocking) > 0 {
			return &ConflictError{Venue: ev.Venue, Conflicts: blocking}
		}

		outcome, err := s.applyDecisions(ctx, ev, in.Decisions, s.undecided == UndecidedApprove)
		if err != nil {
			return err
		}
		if open := undecidedLines(ev); len(open) > 0 {
			return invalid("decisions", "undecided equipment lines: %s", strings.Join(open, ", "))
		}
		if err := s.setStatus(ctx, ev, model.StatusApproved, stage, actor, model.OutcomeApproved, "", changes); err != nil {
			return err
		}
		if err := s.venueSlotApproved(ctx, ev, competitors, changes); err != nil {
			return err
		}
		outcome.EventStatus = model.StatusApproved
		outcome.Cascaded = competitors
		if err := s.saveReceipt(ctx, id, in.IdempotencyKey, fp, outcome); err != nil {
			return err
		}
		out = outcome
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !out.Replayed {
		s.log.Info().Uint64("event_id", id).Int("cascaded", len(out.Cascaded)).Msg("venue slot approved")
	}
	return out, nil
}

// venueSlotApproved conflict-rejects every competitor of the winner.
// The competitor rows were locked by the FindBookings call that found
// them, under the same venue lock.
func (s *Service) venueSlotApproved(ctx context.Context, winner *model.Event, competitors []model.VenueBooking, changes *[]statusChange) error {
	for _, c := range competitors {
		loser, err := s.lockEvent(ctx, c.EventID)
		if err != nil {
			return err
		}
		if !loser.Status.Cascadable() {
			return &ConflictError{Venue: winner.Venue, Conflicts: []model.VenueBooking{c}}
		}
		reason := fmt.Sprintf("venue %s was approved for event #%d %q (%s to %s)",
			winner.Venue, winner.ID, winner.Name,
			winner.StartAt.Format(time.RFC3339), winner.EndAt.Format(time.RFC3339))
		if err := s.setStatus(ctx, loser, model.StatusConflictRejected, model.StageFinal, model.SystemActor, model.OutcomeConflictRejected, reason, changes); err != nil {
			return err
		}
		(*changes)[len(*changes)-1].winner = winner.ID
	}
	return nil
}

func undecidedLines(ev *model.Event) []string {
	var open []string
	for _, l := range ev.Lines {
		if !l.Status.Terminal() {
			open = append(open, fmt.Sprintf("%s (line %d)", l.ItemName, l.ID))
		}
	}
	return open
}

// RescheduleInput is the new slot for a conflict-rejected event.
type RescheduleInput struct {
	Venue   string
	StartAt time.Time
	EndAt   time.Time
}

// Reschedule re-opens a ConflictRejected event on a new slot.  The slot
// must be free of every blocking booking; the timeline is mapped onto
// the new interval and all equipment lines go back to Pending.
func (s *Service) Reschedule(ctx context.Context, actor model.Actor, id uint64, in RescheduleInput) (*model.Event, error) {
	in.Venue = model.NormalizeVenue(in.Venue)
	var out *model.Event
	err := s.inTx(ctx, func(ctx context.Context, changes *[]statusChange) error {
		ev, err := s.lockEventWithVenue(ctx, id, in.Venue)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, ev, ActReschedule); err != nil {
			return err
		}
		if err := s.validateSlot(in.Venue, in.StartAt, in.EndAt, true); err != nil {
			return err
		}
		conflicts, err := s.store.FindBookings(ctx, model.SlotQuery{
			Venue: in.Venue, StartAt: in.StartAt, EndAt: in.EndAt, ExcludeEventID: ev.ID,
		}, true)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ConflictError{Venue: in.Venue, Conflicts: conflicts}
		}

		from := ev.Status
		reason := fmt.Sprintf("moved from %s %s to %s %s",
			ev.Venue, ev.StartAt.Format(time.RFC3339), in.Venue, in.StartAt.Format(time.RFC3339))
		ev.Timeline = RegenerateTimeline(ev.Timeline, ev.StartAt, ev.EndAt, in.StartAt, in.EndAt, ev.Name)
		ev.Venue, ev.StartAt, ev.EndAt = in.Venue, in.StartAt.UTC(), in.EndAt.UTC()
		for i := range ev.Lines {
			ev.Lines[i].Reset()
		}
		ev.EquipmentStatus = model.AggregateEquipmentStatus(ev.Lines)
		ev.Status = model.StatusPending
		ev.UpdatedAt = s.clock.Now()
		if err := s.store.UpdateEvent(ctx, ev); err != nil {
			return err
		}
		if err := s.decide(ctx, ev, model.StageConcept, actor, model.OutcomeRescheduled, reason); err != nil {
			return err
		}
		*changes = append(*changes, statusChange{event: *ev, from: from, to: model.StatusPending, actor: actor, reason: reason})
		out, err = s.reload(ctx, id)
		return err
	})
	if err == nil {
		s.dropDraft(ctx, id)
	}
	return out, err
}

// Complete closes an Approved event once its end time has passed,
// releasing its equipment.
func (s *Service) Complete(ctx context.Context, actor model.Actor, id uint64) (*model.Event, error) {
	var out *model.Event
	err := s.inTx(ctx, func(ctx context.Context, changes *[]statusChange) error {
		ev, err := s.lockEvent(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, ev, ActComplete); err != nil {
			return err
		}
		if s.clock.Now().Before(ev.EndAt) {
			return invalid("status", "event %d has not ended yet", ev.ID)
		}
		if err := s.setStatus(ctx, ev, model.StatusCompleted, model.StageFinal, actor, model.OutcomeCompleted, "", changes); err != nil {
			return err
		}
		out, err = s.reload(ctx, id)
		return err
	})
	return out, err
}

// Archive hides a finished or rejected event from active views.
func (s *Service) Archive(ctx context.Context, actor model.Actor, id uint64) (*model.Event, error) {
	var out *model.Event
	err := s.inTx(ctx, func(ctx context.Context, changes *[]statusChange) error {
		ev, err := s.lockEvent(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authorize(actor, ev, ActArchive); err != nil {
			return err
		}
		if err := s.setStatus(ctx, ev, model.StatusArchived, model.StageFinal, actor, model.OutcomeArchived, "", changes); err != nil {
			return err
		}
		out, err = s.reload(ctx, id)
		return err
	})
	return out, err
}
