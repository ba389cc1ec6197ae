package repository

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

// inUseExpr derives in_use for the item aliased i: the approved quantity
// of committed lines whose event still holds equipment.
const inUseExpr = `COALESCE((
	SELECT SUM(l.quantity_approved)
	FROM equipment_request_lines l
	JOIN events e ON e.id = l.event_id
	WHERE l.item_name = i.name
	  AND l.line_status IN ('APPROVED', 'PARTIAL')
	  AND e.status IN ('PENDING', 'UNDER_REVIEW', 'APPROVED')
), 0)`

const itemColumns = `i.id, i.name, i.category, i.total_quantity, i.archived, i.created_at, i.updated_at`

func scanItem(row rowScanner, withInUse bool) (*model.EquipmentItem, error) {
	var it model.EquipmentItem
	dest := []any{&it.ID, &it.Name, &it.Category, &it.TotalQuantity, &it.Archived, &it.CreatedAt, &it.UpdatedAt}
	if withInUse {
		dest = append(dest, &it.InUse)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

// CreateItem inserts a catalog item.  A name clash yields ErrDuplicate.
func (s *Store) CreateItem(ctx context.Context, it *model.EquipmentItem) error {
	const q = `INSERT INTO equipment_items (name, category, total_quantity, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.q(ctx).ExecContext(ctx, q, it.Name, it.Category, it.TotalQuantity, it.Archived, it.CreatedAt.UTC(), it.UpdatedAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	it.ID = uint64(id)
	return nil
}

// GetItem loads an item with its derived in_use.
func (s *Store) GetItem(ctx context.Context, id uint64) (*model.EquipmentItem, error) {
	q := `SELECT ` + itemColumns + `, ` + inUseExpr + ` FROM equipment_items i WHERE i.id = ?`
	return scanItem(s.q(ctx).QueryRowContext(ctx, q, id), true)
}

// GetItemByName loads an item by its unique name.
func (s *Store) GetItemByName(ctx context.Context, name string) (*model.EquipmentItem, error) {
	q := `SELECT ` + itemColumns + `, ` + inUseExpr + ` FROM equipment_items i WHERE i.name = ?`
	return scanItem(s.q(ctx).QueryRowContext(ctx, q, name), true)
}

// GetItemForUpdate locks the item row, then computes in_use.  The sum is
// taken after the lock so it includes every commitment made by the
// previous holder.
func (s *Store) GetItemForUpdate(ctx context.Context, id uint64) (*model.EquipmentItem, error) {
	q := `SELECT ` + itemColumns + ` FROM equipment_items i WHERE i.id = ? FOR UPDATE`
	it, err := scanItem(s.q(ctx).QueryRowContext(ctx, q, id), false)
	if err != nil {
		return nil, err
	}
	if it.InUse, err = s.sumInUse(ctx, it.Name); err != nil {
		return nil, err
	}
	return it, nil
}

// LockItemsByName locks the named items in ascending name order and
// returns them keyed by name.  Unknown names are absent from the map.
func (s *Store) LockItemsByName(ctx context.Context, names []string) (map[string]*model.EquipmentItem, error) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	out := make(map[string]*model.EquipmentItem, len(sorted))
	q := `SELECT ` + itemColumns + ` FROM equipment_items i WHERE i.name = ? FOR UPDATE`
	for _, name := range sorted {
		if _, seen := out[name]; seen {
			continue
		}
		it, err := scanItem(s.q(ctx).QueryRowContext(ctx, q, name), false)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if it.InUse, err = s.sumInUse(ctx, it.Name); err != nil {
			return nil, err
		}
		out[name] = it
	}
	return out, nil
}

func (s *Store) sumInUse(ctx context.Context, name string) (int, error) {
	const q = `SELECT COALESCE(SUM(l.quantity_approved), 0)
		FROM equipment_request_lines l
		JOIN events e ON e.id = l.event_id
		WHERE l.item_name = ?
		  AND l.line_status IN ('APPROVED', 'PARTIAL')
		  AND e.status IN ('PENDING', 'UNDER_REVIEW', 'APPROVED')`
	var n int
	err := s.q(ctx).QueryRowContext(ctx, q, name).Scan(&n)
	return n, err
}

// ListItems returns the catalog ordered by name.
func (s *Store) ListItems(ctx context.Context, includeArchived bool) ([]model.EquipmentItem, error) {
	q := `SELECT ` + itemColumns + `, ` + inUseExpr + ` FROM equipment_items i`
	if !includeArchived {
		q += ` WHERE i.archived = 0`
	}
	q += ` ORDER BY i.name`
	rows, err := s.q(ctx).QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.EquipmentItem
	for rows.Next() {
		it, err := scanItem(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

// UpdateItem writes the mutable columns of an item.
func (s *Store) UpdateItem(ctx context.Context, it *model.EquipmentItem) error {
	const q = `UPDATE equipment_items SET category = ?, total_quantity = ?, archived = ?, updated_at = ? WHERE id = ?`
	res, err := s.q(ctx).ExecContext(ctx, q, it.Category, it.TotalQuantity, it.Archived, it.UpdatedAt.UTC(), it.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendInventoryAudit records a ledger operation.
func (s *Store) AppendInventoryAudit(ctx context.Context, a *model.InventoryAuditEntry) error {
	const q = `INSERT INTO inventory_audit (item_id, action, delta, total_after, reason, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.q(ctx).ExecContext(ctx, q, a.ItemID, string(a.Action), a.Delta, a.TotalAfter, a.Reason, a.ActorID, a.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// ListInventoryAudit returns the ledger of one item, oldest first.
func (s *Store) ListInventoryAudit(ctx context.Context, itemID uint64) ([]model.InventoryAuditEntry, error) {
	const q = `SELECT id, item_id, action, delta, total_after, reason, actor_id, created_at
		FROM inventory_audit WHERE item_id = ? ORDER BY id`
	rows, err := s.q(ctx).QueryContext(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.InventoryAuditEntry
	for rows.Next() {
		var a model.InventoryAuditEntry
		var action string
		if err := rows.Scan(&a.ID, &a.ItemID, &action, &a.Delta, &a.TotalAfter, &a.Reason, &a.ActorID, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Action = model.InventoryAction(action)
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindReceipt returns the batch receipt stored under key for the event,
// or nil when the key has not been used.
func (s *Store) FindReceipt(ctx context.Context, eventID uint64, key string) (*model.BatchReceipt, error) {
	const q = `SELECT id, event_id, idempotency_key, fingerprint, outcome, created_at
		FROM batch_receipts WHERE event_id = ? AND idempotency_key = ?`
	var (
		r   model.BatchReceipt
		raw []byte
	)
	err := s.q(ctx).QueryRowContext(ctx, q, eventID, key).Scan(&r.ID, &r.EventID, &r.IdempotencyKey, &r.Fingerprint, &raw, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := fromJSON(raw, &r.Outcome); err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveReceipt stores a receipt.  Reusing (event, key) yields ErrDuplicate.
func (s *Store) SaveReceipt(ctx context.Context, r *model.BatchReceipt) error {
	raw, err := toJSON(r.Outcome)
	if err != nil {
		return err
	}
	const q = `INSERT INTO batch_receipts (id, event_id, idempotency_key, fingerprint, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.q(ctx).ExecContext(ctx, q, r.ID, r.EventID, r.IdempotencyKey, r.Fingerprint, raw, r.CreatedAt.UTC()); err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// Ping checks connectivity for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
