// Package memstore is an in-process implementation of the workflow store.
// A single mutex stands in for the row locks of the MySQL store: WithTx
// holds it for the whole transaction and restores a snapshot when the
// transaction function fails, so writes are all-or-nothing here too.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/repository"
)

type receiptKey struct {
	eventID uint64
	key     string
}

type state struct {
	events   map[uint64]*model.Event
	items    map[uint64]*model.EquipmentItem
	audit    []model.InventoryAuditEntry
	receipts map[receiptKey]model.BatchReceipt

	nextEvent, nextLine, nextDecision, nextItem, nextAudit uint64
}

func (st *state) clone() *state {
	cp := *st
	cp.events = make(map[uint64]*model.Event, len(st.events))
	for id, e := range st.events {
		cp.events[id] = e.Clone()
	}
	cp.items = make(map[uint64]*model.EquipmentItem, len(st.items))
	for id, it := range st.items {
		v := *it
		cp.items[id] = &v
	}
	cp.audit = append([]model.InventoryAuditEntry(nil), st.audit...)
	cp.receipts = make(map[receiptKey]model.BatchReceipt, len(st.receipts))
	for k, r := range st.receipts {
		cp.receipts[k] = r
	}
	return &cp
}

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu sync.Mutex
	st *state
}

// New returns an empty store.
func New() *Store {
	return &Store{st: &state{
		events:   map[uint64]*model.Event{},
		items:    map[uint64]*model.EquipmentItem{},
		receipts: map[receiptKey]model.BatchReceipt{},
	}}
}

type txKey struct{}

// WithTx runs fn with the store locked.  Nested calls join the outer
// transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// run executes fn on the current state, locking unless ctx already
// belongs to a transaction of this store.
func (s *Store) run(ctx context.Context, fn func(st *state) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (st *state) inUse(name string) int {
	n := 0
	for _, e := range st.events {
		if !e.Status.HoldsEquipment() {
			continue
		}
		for i := range e.Lines {
			if e.Lines[i].ItemName == name {
				n += e.Lines[i].CommittedQuantity()
			}
		}
	}
	return n
}

func (st *state) assignLineIDs(e *model.Event) {
	for i := range e.Lines {
		st.nextLine++
		e.Lines[i].ID = st.nextLine
		e.Lines[i].EventID = e.ID
	}
}

func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	return s.run(ctx, func(st *state) error {
		st.nextEvent++
		e.ID = st.nextEvent
		if e.Version == 0 {
			e.Version = 1
		}
		st.assignLineIDs(e)
		st.events[e.ID] = e.Clone()
		return nil
	})
}

func (s *Store) GetEvent(ctx context.Context, id uint64) (*model.Event, error) {
	var out *model.Event
	err := s.run(ctx, func(st *state) error {
		e, ok := st.events[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = e.Clone()
		return nil
	})
	return out, err
}

func (s *Store) GetEventForUpdate(ctx context.Context, id uint64) (*model.Event, error) {
	return s.GetEvent(ctx, id)
}

func (s *Store) ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	var out []model.Event
	err := s.run(ctx, func(st *state) error {
		for _, e := range st.events {
			if f.Status != "" && e.Status != f.Status {
				continue
			}
			if f.Venue != "" && !model.SameVenue(e.Venue, f.Venue) {
				continue
			}
			if f.RequestorID != 0 && e.RequestorID != f.RequestorID {
				continue
			}
			cp := e.Clone()
			cp.Decisions = nil
			out = append(out, *cp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (s *Store) UpdateEvent(ctx context.Context, e *model.Event) error {
	return s.run(ctx, func(st *state) error {
		cur, ok := st.events[e.ID]
		if !ok {
			return repository.ErrNotFound
		}
		e.Version = cur.Version + 1
		e.CreatedAt = cur.CreatedAt
		e.RequestorID = cur.RequestorID
		e.Decisions = append([]model.ApprovalDecision(nil), cur.Decisions...)
		st.assignLineIDs(e)
		st.events[e.ID] = e.Clone()
		return nil
	})
}

func (s *Store) UpdateEventStatus(ctx context.Context, id uint64, status model.EventStatus, at time.Time) error {
	return s.run(ctx, func(st *state) error {
		e, ok := st.events[id]
		if !ok {
			return repository.ErrNotFound
		}
		e.Status = status
		e.Version++
		e.UpdatedAt = at
		return nil
	})
}

func (s *Store) SaveLineDecisions(ctx context.Context, eventID uint64, lines []model.EquipmentRequestLine, status model.EquipmentApproval, at time.Time) error {
	return s.run(ctx, func(st *state) error {
		e, ok := st.events[eventID]
		if !ok {
			return repository.ErrNotFound
		}
		byID := make(map[uint64]model.EquipmentRequestLine, len(lines))
		for _, l := range lines {
			byID[l.ID] = l.Clone()
		}
		for i := range e.Lines {
			if l, ok := byID[e.Lines[i].ID]; ok {
				e.Lines[i].QuantityApproved = l.QuantityApproved
				e.Lines[i].Status = l.Status
				e.Lines[i].RejectionReason = l.RejectionReason
			}
		}
		e.EquipmentStatus = status
		e.Version++
		e.UpdatedAt = at
		return nil
	})
}

func (s *Store) DeleteEvent(ctx context.Context, id uint64) error {
	return s.run(ctx, func(st *state) error {
		if _, ok := st.events[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.events, id)
		for k := range st.receipts {
			if k.eventID == id {
				delete(st.receipts, k)
			}
		}
		return nil
	})
}

func (s *Store) AppendDecision(ctx context.Context, d *model.ApprovalDecision) error {
	return s.run(ctx, func(st *state) error {
		e, ok := st.events[d.EventID]
		if !ok {
			return repository.ErrNotFound
		}
		st.nextDecision++
		d.ID = st.nextDecision
		e.Decisions = append(e.Decisions, *d)
		return nil
	})
}

func (s *Store) ListApprovedEndedBefore(ctx context.Context, t time.Time) ([]uint64, error) {
	var ids []uint64
	err := s.run(ctx, func(st *state) error {
		for id, e := range st.events {
			if e.Status == model.StatusApproved && !e.EndAt.After(t) {
				ids = append(ids, id)
			}
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

// LockVenues is a no-op: the store mutex already serializes transactions.
func (s *Store) LockVenues(ctx context.Context, venues ...string) error { return nil }

func (s *Store) FindBookings(ctx context.Context, q model.SlotQuery, forUpdate bool) ([]model.VenueBooking, error) {
	var out []model.VenueBooking
	err := s.run(ctx, func(st *state) error {
		for _, e := range st.events {
			if !model.SameVenue(e.Venue, q.Venue) || e.ID == q.ExcludeEventID || !e.Status.BlocksVenue() {
				continue
			}
			if !e.Overlaps(q.StartAt, q.EndAt) {
				continue
			}
			out = append(out, model.VenueBooking{
				EventID: e.ID, EventName: e.Name, Venue: e.Venue,
				StartAt: e.StartAt, EndAt: e.EndAt, Status: e.Status,
			})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out, err
}

func (s *Store) CreateItem(ctx context.Context, it *model.EquipmentItem) error {
	return s.run(ctx, func(st *state) error {
		for _, cur := range st.items {
			if cur.Name == it.Name {
				return repository.ErrDuplicate
			}
		}
		st.nextItem++
		it.ID = st.nextItem
		v := *it
		v.InUse = 0
		st.items[it.ID] = &v
		return nil
	})
}

func (s *Store) item(st *state, it *model.EquipmentItem) *model.EquipmentItem {
	v := *it
	v.InUse = st.inUse(it.Name)
	return &v
}

func (s *Store) GetItem(ctx context.Context, id uint64) (*model.EquipmentItem, error) {
	var out *model.EquipmentItem
	err := s.run(ctx, func(st *state) error {
		it, ok := st.items[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = s.item(st, it)
		return nil
	})
	return out, err
}

func (s *Store) GetItemForUpdate(ctx context.Context, id uint64) (*model.EquipmentItem, error) {
	return s.GetItem(ctx, id)
}

func (s *Store) GetItemByName(ctx context.Context, name string) (*model.EquipmentItem, error) {
	var out *model.EquipmentItem
	err := s.run(ctx, func(st *state) error {
		for _, it := range st.items {
			if it.Name == name {
				out = s.item(st, it)
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (s *Store) LockItemsByName(ctx context.Context, names []string) (map[string]*model.EquipmentItem, error) {
	out := make(map[string]*model.EquipmentItem, len(names))
	err := s.run(ctx, func(st *state) error {
		want := make(map[string]bool, len(names))
		for _, n := range names {
			want[n] = true
		}
		for _, it := range st.items {
			if want[it.Name] {
				out[it.Name] = s.item(st, it)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) ListItems(ctx context.Context, includeArchived bool) ([]model.EquipmentItem, error) {
	var out []model.EquipmentItem
	err := s.run(ctx, func(st *state) error {
		for _, it := range st.items {
			if it.Archived && !includeArchived {
				continue
			}
			out = append(out, *s.item(st, it))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (s *Store) UpdateItem(ctx context.Context, it *model.EquipmentItem) error {
	return s.run(ctx, func(st *state) error {
		cur, ok := st.items[it.ID]
		if !ok {
			return repository.ErrNotFound
		}
		cur.Category = it.Category
		cur.TotalQuantity = it.TotalQuantity
		cur.Archived = it.Archived
		cur.UpdatedAt = it.UpdatedAt
		return nil
	})
}

func (s *Store) AppendInventoryAudit(ctx context.Context, a *model.InventoryAuditEntry) error {
	return s.run(ctx, func(st *state) error {
		st.nextAudit++
		a.ID = st.nextAudit
		st.audit = append(st.audit, *a)
		return nil
	})
}

func (s *Store) ListInventoryAudit(ctx context.Context, itemID uint64) ([]model.InventoryAuditEntry, error) {
	var out []model.InventoryAuditEntry
	err := s.run(ctx, func(st *state) error {
		for _, a := range st.audit {
			if a.ItemID == itemID {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) FindReceipt(ctx context.Context, eventID uint64, key string) (*model.BatchReceipt, error) {
	var out *model.BatchReceipt
	err := s.run(ctx, func(st *state) error {
		if r, ok := st.receipts[receiptKey{eventID, key}]; ok {
			out = &r
		}
		return nil
	})
	return out, err
}

func (s *Store) SaveReceipt(ctx context.Context, r *model.BatchReceipt) error {
	return s.run(ctx, func(st *state) error {
		k := receiptKey{r.EventID, r.IdempotencyKey}
		if _, ok := st.receipts[k]; ok {
			return repository.ErrDuplicate
		}
		st.receipts[k] = *r
		return nil
	})
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return nil }
