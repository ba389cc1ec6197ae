package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

// MaxSlotsPerCheck bounds CheckSlots.
const MaxSlotsPerCheck = 50

func (s *Service) validateSlot(venue string, start, end time.Time, future bool) error {
	if strings.TrimSpace(venue) == "" {
		return invalid("venue", "is required")
	}
	if start.IsZero() || end.IsZero() {
		return invalid("start", "start and end are required")
	}
	if !start.Before(end) {
		return invalid("end", "must be after start")
	}
	if future && !start.After(s.clock.Now()) {
		return invalid("start", "must be in the future")
	}
	return nil
}

// CheckConflicts lists the bookings that overlap the requested slot.
// Rejected, conflict-rejected and archived events never conflict.
func (s *Service) CheckConflicts(ctx context.Context, q model.SlotQuery) ([]model.VenueBooking, error) {
	q.Venue = model.NormalizeVenue(q.Venue)
	if err := s.validateSlot(q.Venue, q.StartAt, q.EndAt, false); err != nil {
		return nil, err
	}
	return s.store.FindBookings(ctx, q, false)
}

// SlotAvailability is the answer for one candidate slot.
type SlotAvailability struct {
	Slot      model.SlotQuery
	Conflicts []model.VenueBooking
}

// Free reports whether the slot has no conflicts.
func (a SlotAvailability) Free() bool { return len(a.Conflicts) == 0 }

// CheckSlots evaluates several candidate slots, as a reschedule picker
// does when it greys out taken times.
func (s *Service) CheckSlots(ctx context.Context, slots []model.SlotQuery) ([]SlotAvailability, error) {
	if len(slots) == 0 {
		return nil, invalid("slots", "at least one slot is required")
	}
	if len(slots) > MaxSlotsPerCheck {
		return nil, invalid("slots", "at most %d slots per request", MaxSlotsPerCheck)
	}
	out := make([]SlotAvailability, 0, len(slots))
	for i, q := range slots {
		q.Venue = model.NormalizeVenue(q.Venue)
		if err := s.validateSlot(q.Venue, q.StartAt, q.EndAt, false); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Field = fmt.Sprintf("slots[%d].%s", i, ve.Field)
			}
			return nil, err
		}
		conflicts, err := s.store.FindBookings(ctx, q, false)
		if err != nil {
			return nil, err
		}
		out = append(out, SlotAvailability{Slot: q, Conflicts: conflicts})
	}
	return out, nil
}
