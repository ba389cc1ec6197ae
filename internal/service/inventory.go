package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/repository"
)

// Ledger operations are open to the roles that run the equipment room.
func checkLedgerRole(actor model.Actor, op string) error {
	if actor.Role == model.RoleStaff || actor.Role == model.RoleSuperAdmin {
		return nil
	}
	return &AuthorizationError{Role: actor.Role, Action: op}
}

// CreateItemInput describes a new catalog entry.
type CreateItemInput struct {
	Name          string
	Category      string
	TotalQuantity int
}

// CreateItem adds an item to the catalog with its opening quantity.
func (s *Service) CreateItem(ctx context.Context, actor model.Actor, in CreateItemInput) (*model.EquipmentItem, error) {
	if err := checkLedgerRole(actor, "create equipment"); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, invalid("name", "is required")
	}
	if in.TotalQuantity < 0 {
		return nil, invalid("total_quantity", "must not be negative")
	}
	now := s.clock.Now()
	it := &model.EquipmentItem{
		Name:          in.Name,
		Category:      strings.TrimSpace(in.Category),
		TotalQuantity: in.TotalQuantity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateItem(ctx, it); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return invalid("name", "equipment %q already exists", in.Name)
			}
			return err
		}
		return s.store.AppendInventoryAudit(ctx, &model.InventoryAuditEntry{
			ItemID: it.ID, Action: model.InventoryCreate, Delta: in.TotalQuantity,
			TotalAfter: in.TotalQuantity, ActorID: actor.ID, CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return it, nil
}

// AddQuantity grows an item's total.
func (s *Service) AddQuantity(ctx context.Context, actor model.Actor, id uint64, qty int, reason string) (*model.EquipmentItem, error) {
	if err := checkLedgerRole(actor, "add equipment"); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, invalid("quantity", "must be greater than zero")
	}
	return s.adjust(ctx, actor, id, model.InventoryAdd, qty, reason, nil)
}

// ReduceQuantity shrinks an item's total.  The total may never drop
// below what is currently committed to events.
func (s *Service) ReduceQuantity(ctx context.Context, actor model.Actor, id uint64, qty int, reason string) (*model.EquipmentItem, error) {
	if err := checkLedgerRole(actor, "reduce equipment"); err != nil {
		return nil, err
	}
	if qty <= 0 {
		return nil, invalid("quantity", "must be greater than zero")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, invalid("reason", "is required")
	}
	return s.adjust(ctx, actor, id, model.InventoryReduce, -qty, reason, func(it *model.EquipmentItem) error {
		if it.TotalQuantity-qty < it.InUse {
			return &InsufficientInventoryError{ItemName: it.Name, Requested: qty, Available: it.Available()}
		}
		return nil
	})
}

// ArchiveItem hides an item from the active catalog.  Existing
// reservations keep their quantities; new event lines cannot name it.
func (s *Service) ArchiveItem(ctx context.Context, actor model.Actor, id uint64, reason string) (*model.EquipmentItem, error) {
	if err := checkLedgerRole(actor, "archive equipment"); err != nil {
		return nil, err
	}
	return s.adjust(ctx, actor, id, model.InventoryArchive, 0, reason, nil)
}

func (s *Service) adjust(ctx context.Context, actor model.Actor, id uint64, action model.InventoryAction, delta int, reason string, check func(*model.EquipmentItem) error) (*model.EquipmentItem, error) {
	var out *model.EquipmentItem
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		it, err := s.store.GetItemForUpdate(ctx, id)
		if err != nil {
			return notFound(err, "equipment item", id)
		}
		if action == model.InventoryArchive && it.Archived {
			return invalid("archived", "equipment %q is already archived", it.Name)
		}
		if check != nil {
			if err := check(it); err != nil {
				return err
			}
		}
		now := s.clock.Now()
		it.TotalQuantity += delta
		if action == model.InventoryArchive {
			it.Archived = true
		}
		it.UpdatedAt = now
		if err := s.store.UpdateItem(ctx, it); err != nil {
			return err
		}
		if err := s.store.AppendInventoryAudit(ctx, &model.InventoryAuditEntry{
			ItemID: it.ID, Action: action, Delta: delta, TotalAfter: it.TotalQuantity,
			Reason: strings.TrimSpace(reason), ActorID: actor.ID, CreatedAt: now,
		}); err != nil {
			return err
		}
		out = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Uint64("item_id", out.ID).
		Str("action", string(action)).
		Int("delta", delta).
		Int("total", out.TotalQuantity).
		Int("in_use", out.InUse).
		Msg("inventory adjusted")
	return out, nil
}

// GetItem returns an item with freshly derived in_use.
func (s *Service) GetItem(ctx context.Context, id uint64) (*model.EquipmentItem, error) {
	it, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, notFound(err, "equipment item", id)
	}
	return it, nil
}

// GetAvailable returns total minus in_use for the named item.
func (s *Service) GetAvailable(ctx context.Context, name string) (int, error) {
	it, err := s.store.GetItemByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return 0, notFound(err, "equipment item", name)
	}
	return it.Available(), nil
}

// ListItems returns the catalog; archived items only when asked for.
func (s *Service) ListItems(ctx context.Context, includeArchived bool) ([]model.EquipmentItem, error) {
	return s.store.ListItems(ctx, includeArchived)
}

// AuditTrail returns the ledger entries of an item, oldest first.
func (s *Service) AuditTrail(ctx context.Context, id uint64) ([]model.InventoryAuditEntry, error) {
	if _, err := s.GetItem(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListInventoryAudit(ctx, id)
}
