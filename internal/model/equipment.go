package model

import "time"

// EquipmentItem is a row of the shared equipment catalog.  InUse is never
// stored: repositories derive it from the committed request lines of
// events that still hold equipment, so it cannot drift from the lines.
type EquipmentItem struct {
	ID            uint64    // equipment_items.id
	Name          string    // equipment_items.name (unique)
	Category      string    // equipment_items.category
	TotalQuantity int       // equipment_items.total_quantity
	InUse         int       // derived
	Archived      bool      // equipment_items.archived
	CreatedAt     time.Time // equipment_items.created_at
	UpdatedAt     time.Time // equipment_items.updated_at
}

// Available is total minus in use.
func (i *EquipmentItem) Available() int {
	return i.TotalQuantity - i.InUse
}

// LineStatus is the decision state of one equipment request line.
type LineStatus string

const (
	LinePending      LineStatus = "PENDING"
	LineApproved     LineStatus = "APPROVED"
	LinePartial      LineStatus = "PARTIAL"
	LineRejected     LineStatus = "REJECTED"
	LineSelfProvided LineStatus = "SELF_PROVIDED"
)

// Valid reports whether s is a known line status.
func (s LineStatus) Valid() bool {
	switch s {
	case LinePending, LineApproved, LinePartial, LineRejected, LineSelfProvided:
		return true
	}
	return false
}

// Terminal reports whether the line has been decided.
func (s LineStatus) Terminal() bool { return s != LinePending }

// Committed reports whether the line holds inventory.
func (s LineStatus) Committed() bool { return s == LineApproved || s == LinePartial }

// EquipmentRequestLine is one item requested by an event.
type EquipmentRequestLine struct {
	ID                uint64     // equipment_request_lines.id
	EventID           uint64     // equipment_request_lines.event_id
	ItemName          string     // equipment_request_lines.item_name
	QuantityRequested int        // equipment_request_lines.quantity_requested
	QuantityApproved  *int       // NULL until decided
	Status            LineStatus // equipment_request_lines.line_status
	RejectionReason   string     // equipment_request_lines.rejection_reason
}

// CommittedQuantity is the quantity this line currently holds against
// its item.  Zero unless the line is Approved or Partial.
func (l *EquipmentRequestLine) CommittedQuantity() int {
	if !l.Status.Committed() || l.QuantityApproved == nil {
		return 0
	}
	return *l.QuantityApproved
}

// Reset puts the line back into the undecided state.
func (l *EquipmentRequestLine) Reset() {
	l.Status = LinePending
	l.QuantityApproved = nil
	l.RejectionReason = ""
}

// Clone copies the line including the approved quantity pointer.
func (l EquipmentRequestLine) Clone() EquipmentRequestLine {
	if l.QuantityApproved != nil {
		q := *l.QuantityApproved
		l.QuantityApproved = &q
	}
	return l
}

// LineAction is a staff decision on one request line.
type LineAction string

const (
	ActionApprove        LineAction = "APPROVE"
	ActionPartialApprove LineAction = "PARTIAL_APPROVE"
	ActionReject         LineAction = "REJECT"
	ActionSelfProvide    LineAction = "SELF_PROVIDE"
	ActionRevoke         LineAction = "REVOKE"
)

// Valid reports whether a is a known action.
func (a LineAction) Valid() bool {
	switch a {
	case ActionApprove, ActionPartialApprove, ActionReject, ActionSelfProvide, ActionRevoke:
		return true
	}
	return false
}

// NeedsReason reports whether the action must carry a rejection reason.
func (a LineAction) NeedsReason() bool { return a == ActionReject || a == ActionRevoke }

// LineDecision addresses a line either by LineID or, when the event has a
// single line for the item, by ItemName.
type LineDecision struct {
	LineID   uint64
	ItemName string
	Action   LineAction
	Quantity int
	Reason   string
}

// BatchOutcome is the result of committing a batch of line decisions.
type BatchOutcome struct {
	EventID         uint64
	EventStatus     EventStatus
	EquipmentStatus EquipmentApproval
	Lines           []EquipmentRequestLine
	Cascaded        []VenueBooking
	Replayed        bool
}

// BatchReceipt records a committed batch under its idempotency key.
type BatchReceipt struct {
	ID             string // uuid
	EventID        uint64
	IdempotencyKey string
	Fingerprint    string
	Outcome        BatchOutcome
	CreatedAt      time.Time
}

// DraftBatch is an uncommitted, server-side set of line decisions.
type DraftBatch struct {
	EventID   uint64
	Version   int64
	Token     string // fresh per save; commit keys derive from it
	Decisions []LineDecision
	UpdatedBy uint64
	UpdatedAt time.Time
}

// InventoryAction names the ledger operation recorded in an audit entry.
type InventoryAction string

const (
	InventoryCreate  InventoryAction = "CREATE"
	InventoryAdd     InventoryAction = "ADD"
	InventoryReduce  InventoryAction = "REDUCE"
	InventoryArchive InventoryAction = "ARCHIVE"
)

// InventoryAuditEntry is an append-only ledger record.
type InventoryAuditEntry struct {
	ID         uint64
	ItemID     uint64
	Action     InventoryAction
	Delta      int
	TotalAfter int
	Reason     string
	ActorID    uint64
	CreatedAt  time.Time
}
