package service

import (
	"context"
	"time"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

// Store is the persistence contract of the workflow.  The MySQL
// repository and the in-memory store both satisfy it.  Every method joins
// the transaction started by WithTx when called with its context.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// events
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id uint64) (*model.Event, error)
	GetEventForUpdate(ctx context.Context, id uint64) (*model.Event, error)
	ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error)
	UpdateEvent(ctx context.Context, e *model.Event) error
	UpdateEventStatus(ctx context.Context, id uint64, status model.EventStatus, at time.Time) error
	SaveLineDecisions(ctx context.Context, eventID uint64, lines []model.EquipmentRequestLine, status model.EquipmentApproval, at time.Time) error
	DeleteEvent(ctx context.Context, id uint64) error
	AppendDecision(ctx context.Context, d *model.ApprovalDecision) error
	ListApprovedEndedBefore(ctx context.Context, t time.Time) ([]uint64, error)

	// venue slots
	LockVenues(ctx context.Context, venues ...string) error
	FindBookings(ctx context.Context, q model.SlotQuery, forUpdate bool) ([]model.VenueBooking, error)

	// equipment ledger
	CreateItem(ctx context.Context, it *model.EquipmentItem) error
	GetItem(ctx context.Context, id uint64) (*model.EquipmentItem, error)
	GetItemByName(ctx context.Context, name string) (*model.EquipmentItem, error)
	GetItemForUpdate(ctx context.Context, id uint64) (*model.EquipmentItem, error)
	LockItemsByName(ctx context.Context, names []string) (map[string]*model.EquipmentItem, error)
	ListItems(ctx context.Context, includeArchived bool) ([]model.EquipmentItem, error)
	UpdateItem(ctx context.Context, it *model.EquipmentItem) error
	AppendInventoryAudit(ctx context.Context, a *model.InventoryAuditEntry) error
	ListInventoryAudit(ctx context.Context, itemID uint64) ([]model.InventoryAuditEntry, error)

	// idempotency
	FindReceipt(ctx context.Context, eventID uint64, key string) (*model.BatchReceipt, error)
	SaveReceipt(ctx context.Context, r *model.BatchReceipt) error
}
