package model

import (
	"strings"
	"time"
)

// EventStatus is the lifecycle state of an event.  Status only ever
// changes through the approval workflow in the service package.
type EventStatus string

const (
	StatusPending          EventStatus = "PENDING"
	StatusUnderReview      EventStatus = "UNDER_REVIEW"
	StatusApproved         EventStatus = "APPROVED"
	StatusRejected         EventStatus = "REJECTED"
	StatusConflictRejected EventStatus = "CONFLICT_REJECTED"
	StatusCompleted        EventStatus = "COMPLETED"
	StatusArchived         EventStatus = "ARCHIVED"
)

// AllStatuses lists every known status in lifecycle order.
var AllStatuses = []EventStatus{
	StatusPending,
	StatusUnderReview,
	StatusApproved,
	StatusRejected,
	StatusConflictRejected,
	StatusCompleted,
	StatusArchived,
}

// Valid reports whether s is one of the known statuses.
func (s EventStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// HoldsEquipment reports whether committed equipment lines of an event in
// this status count towards an item's in_use quantity.
func (s EventStatus) HoldsEquipment() bool {
	return s == StatusPending || s == StatusUnderReview || s == StatusApproved
}

// BlocksVenue reports whether an event in this status occupies its venue
// slot.  Rejected, conflict-rejected and archived events do not.
func (s EventStatus) BlocksVenue() bool {
	return s == StatusPending || s == StatusUnderReview || s == StatusApproved || s == StatusCompleted
}

// Cascadable reports whether an event in this status loses its slot when
// a competing event on the same venue is approved.
func (s EventStatus) Cascadable() bool {
	return s == StatusPending || s == StatusUnderReview
}

// EquipmentApproval summarises the line decisions of an event.  It is
// APPROVED once every line has reached a terminal line status.
type EquipmentApproval string

const (
	EquipmentPending  EquipmentApproval = "PENDING"
	EquipmentApproved EquipmentApproval = "APPROVED"
)

// BudgetItem is one row of an event's budget breakdown.
type BudgetItem struct {
	Category    string
	AmountCents int64
}

// Event represents a school event request moving through the approval
// workflow.  Besides the scheduling fields it carries the equipment
// request lines, the non-inventory resources, the timeline and the
// append-only decision trail.
//
// Fields:
//
//	ID                – primary key identifier.
//	Name, Type        – display name and event category (seminar, sports...).
//	Venue             – the venue being booked; conflicts are per venue.
//	StartAt, EndAt    – half-open interval [StartAt, EndAt).
//	Status            – current lifecycle state.
//	RequestorID       – user that created the request.
//	Department        – organizing department.
//	BudgetCents       – total requested budget.
//	EquipmentStatus   – PENDING until every line is decided.
//	Version           – bumped on every write.
type Event struct {
	ID                  uint64            // events.id
	Name                string            // events.name
	Type                string            // events.event_type
	Venue               string            // events.venue
	StartAt             time.Time         // events.start_at
	EndAt               time.Time         // events.end_at
	Status              EventStatus       // events.status
	RequestorID         uint64            // events.requestor_id
	Department          string            // events.department
	BudgetCents         int64             // events.budget_cents
	BudgetBreakdown     []BudgetItem      // events.budget_breakdown (JSON)
	AdditionalResources []string          // events.additional_resources (JSON)
	Timeline            []TimelinePhase   // events.timeline (JSON)
	EquipmentStatus     EquipmentApproval // events.equipment_status
	Version             uint64            // events.version
	CreatedAt           time.Time         // events.created_at
	UpdatedAt           time.Time         // events.updated_at

	Lines     []EquipmentRequestLine
	Decisions []ApprovalDecision
}

// Overlaps reports whether the event's interval intersects [start, end).
func (e *Event) Overlaps(start, end time.Time) bool {
	return Overlaps(e.StartAt, e.EndAt, start, end)
}

// Overlaps is the half-open interval intersection test used for venue
// conflicts.  Touching intervals do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// Clone returns a deep copy of the event, including its slices.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	cp := *e
	cp.BudgetBreakdown = append([]BudgetItem(nil), e.BudgetBreakdown...)
	cp.AdditionalResources = append([]string(nil), e.AdditionalResources...)
	cp.Timeline = append([]TimelinePhase(nil), e.Timeline...)
	cp.Decisions = append([]ApprovalDecision(nil), e.Decisions...)
	cp.Lines = make([]EquipmentRequestLine, len(e.Lines))
	for i, l := range e.Lines {
		cp.Lines[i] = l.Clone()
	}
	return &cp
}

// AggregateEquipmentStatus derives the event level equipment status from
// its lines.
func AggregateEquipmentStatus(lines []EquipmentRequestLine) EquipmentApproval {
	for _, l := range lines {
		if !l.Status.Terminal() {
			return EquipmentPending
		}
	}
	return EquipmentApproved
}

// EventFilter narrows ListEvents.  Zero values mean "any".
type EventFilter struct {
	Status      EventStatus
	Venue       string
	RequestorID uint64
}

// TimelinePhase is one block of an event's run sheet.
type TimelinePhase struct {
	StartAt     time.Time
	EndAt       time.Time
	Label       string
	Description string
}

// NormalizeVenue trims a venue name and collapses inner whitespace.
// Venue names compare case-insensitively; see SameVenue.
func NormalizeVenue(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// SameVenue reports whether a and b name the same venue.
func SameVenue(a, b string) bool {
	return strings.EqualFold(NormalizeVenue(a), NormalizeVenue(b))
}

// VenueBooking is the derived view of an event occupying a venue slot.
type VenueBooking struct {
	EventID   uint64
	EventName string
	Venue     string
	StartAt   time.Time
	EndAt     time.Time
	Status    EventStatus
}

// SlotQuery asks for the bookings overlapping [StartAt, EndAt) on Venue.
// ExcludeEventID, when non-zero, removes that event from the result.
type SlotQuery struct {
	Venue          string
	StartAt        time.Time
	EndAt          time.Time
	ExcludeEventID uint64
}
