package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/repository"
)

// BatchInput is a set of line decisions committed as one unit.
type BatchInput struct {
	Decisions      []model.LineDecision
	IdempotencyKey string
}

// SubmitBatch applies line decisions to an event without changing its
// status.  Either every line and its inventory effect commits, or none.
func (s *Service) SubmitBatch(ctx context.Context, actor model.Actor, id uint64, in BatchInput) (*model.BatchOutcome, error) {
	if len(in.Decisions) == 0 {
		return nil, invalid("decisions", "at least one decision is required")
	}
	var out *model.BatchOutcome
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		ev, err := s.lockEvent(ctx, id)
		if err != nil {
			return err
		}
		if err := checkRole(actor, ActDecideEquipment); err != nil {
			return err
		}
		fp := fingerprint(ActDecideEquipment, in.Decisions)
		if out, err = s.replay(ctx, id, in.IdempotencyKey, fp); err != nil || out != nil {
			return err
		}
		if err := s.authorize(actor, ev, ActDecideEquipment); err != nil {
			return err
		}
		if err := validateDecisions(in.Decisions); err != nil {
			return err
		}
		outcome, err := s.applyDecisions(ctx, ev, in.Decisions, false)
		if err != nil {
			return err
		}
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
		s.log.Info().
			Uint64("event_id", id).
			Str("role", string(actor.Role)).
			Int("decisions", len(in.Decisions)).
			Str("equipment_status", string(out.EquipmentStatus)).
			Msg("equipment batch committed")
	}
	return out, nil
}

func validateDecisions(ds []model.LineDecision) error {
	for i, d := range ds {
		field := fmt.Sprintf("decisions[%d]", i)
		if !d.Action.Valid() {
			return invalid(field+".action", "unknown action %q", d.Action)
		}
		if d.LineID == 0 && strings.TrimSpace(d.ItemName) == "" {
			return invalid(field, "line_id or item is required")
		}
		if d.Action.NeedsReason() {
			if err := checkReason(field+".reason", d.Reason); err != nil {
				return err
			}
		}
		if d.Action == model.ActionPartialApprove && d.Quantity <= 0 {
			return invalid(field+".quantity", "must be greater than zero")
		}
	}
	return nil
}

// resolveLine finds the line a decision addresses.  Item names only work
// when the event requests that item on a single line.
func resolveLine(ev *model.Event, d model.LineDecision) (int, error) {
	if d.LineID != 0 {
		for i := range ev.Lines {
			if ev.Lines[i].ID == d.LineID {
				return i, nil
			}
		}
		return -1, &NotFoundError{Resource: "request line", Key: fmt.Sprint(d.LineID)}
	}
	name := strings.TrimSpace(d.ItemName)
	idx := -1
	for i := range ev.Lines {
		if strings.EqualFold(ev.Lines[i].ItemName, name) {
			if idx >= 0 {
				return -1, invalid("item", "event %d requests %q on several lines; address it by line_id", ev.ID, name)
			}
			idx = i
		}
	}
	if idx < 0 {
		return -1, &NotFoundError{Resource: "request line for item", Key: name}
	}
	return idx, nil
}

// applyDecisions is the reservation engine.  It locks the items that
// need an availability check, evaluates each decision against a running
// in_use that starts from the committed state and removes the line's own
// prior commitment, and persists all lines at once.  Re-applying an
// identical decision therefore changes nothing.
func (s *Service) applyDecisions(ctx context.Context, ev *model.Event, ds []model.LineDecision, approveUndecided bool) (*model.BatchOutcome, error) {
	idxs := make([]int, len(ds))
	decided := make(map[int]bool, len(ds))
	need := map[string]bool{}
	for i, d := range ds {
		idx, err := resolveLine(ev, d)
		if err != nil {
			return nil, err
		}
		if decided[idx] {
			return nil, invalid("decisions", "line %d is decided more than once", ev.Lines[idx].ID)
		}
		decided[idx] = true
		idxs[i] = idx
		if d.Action == model.ActionApprove || d.Action == model.ActionPartialApprove {
			need[ev.Lines[idx].ItemName] = true
		}
	}
	if approveUndecided {
		for i, l := range ev.Lines {
			if !decided[i] && l.Status == model.LinePending {
				need[l.ItemName] = true
			}
		}
	}

	names := make([]string, 0, len(need))
	for n := range need {
		names = append(names, n)
	}
	sort.Strings(names)
	items, err := s.store.LockItemsByName(ctx, names)
	if err != nil {
		return nil, err
	}
	inUse := make(map[string]int, len(items))
	for _, n := range names {
		it, ok := items[n]
		if !ok {
			return nil, &NotFoundError{Resource: "equipment item", Key: n}
		}
		inUse[n] = it.InUse
	}

	apply := func(idx int, d model.LineDecision) error {
		line := &ev.Lines[idx]
		prior := line.CommittedQuantity()
		switch d.Action {
		case model.ActionApprove, model.ActionPartialApprove:
			it := items[line.ItemName]
			available := it.TotalQuantity - (inUse[line.ItemName] - prior)
			qty := line.QuantityRequested
			status := model.LineApproved
			if d.Action == model.ActionApprove {
				if available < qty {
					return &InsufficientInventoryError{ItemName: line.ItemName, Requested: qty, Available: max(available, 0)}
				}
			} else {
				if available >= line.QuantityRequested {
					return invalid("decisions", "%s: the full quantity is available; approve the line instead", line.ItemName)
				}
				if available <= 0 || d.Quantity > available {
					return &InsufficientInventoryError{ItemName: line.ItemName, Requested: d.Quantity, Available: max(available, 0)}
				}
				qty = d.Quantity
				status = model.LinePartial
			}
			line.Status = status
			line.QuantityApproved = &qty
			line.RejectionReason = ""
			inUse[line.ItemName] += qty - prior
		case model.ActionReject, model.ActionRevoke:
			if d.Action == model.ActionRevoke && !line.Status.Committed() {
				return invalid("decisions", "%s: only approved or partially approved lines can be revoked", line.ItemName)
			}
			zero := 0
			line.Status = model.LineRejected
			line.QuantityApproved = &zero
			line.RejectionReason = strings.TrimSpace(d.Reason)
			if _, tracked := inUse[line.ItemName]; tracked {
				inUse[line.ItemName] -= prior
			}
		case model.ActionSelfProvide:
			line.Status = model.LineSelfProvided
			line.QuantityApproved = nil
			line.RejectionReason = ""
			if _, tracked := inUse[line.ItemName]; tracked {
				inUse[line.ItemName] -= prior
			}
		}
		return nil
	}

	for i, d := range ds {
		if err := apply(idxs[i], d); err != nil {
			return nil, err
		}
	}
	if approveUndecided {
		for i := range ev.Lines {
			if !decided[i] && ev.Lines[i].Status == model.LinePending {
				if err := apply(i, model.LineDecision{Action: model.ActionApprove}); err != nil {
					return nil, err
				}
			}
		}
	}
	for n, it := range items {
		if inUse[n] > it.TotalQuantity {
			return nil, fmt.Errorf("equipment %q would be over-committed: in use %d of %d", n, inUse[n], it.TotalQuantity)
		}
	}

	ev.EquipmentStatus = model.AggregateEquipmentStatus(ev.Lines)
	if err := s.store.SaveLineDecisions(ctx, ev.ID, ev.Lines, ev.EquipmentStatus, s.clock.Now()); err != nil {
		return nil, err
	}
	lines := make([]model.EquipmentRequestLine, len(ev.Lines))
	for i, l := range ev.Lines {
		lines[i] = l.Clone()
	}
	return &model.BatchOutcome{
		EventID:         ev.ID,
		EventStatus:     ev.Status,
		EquipmentStatus: ev.EquipmentStatus,
		Lines:           lines,
	}, nil
}

// fingerprint identifies a request body for idempotency checks.
func fingerprint(act Action, ds []model.LineDecision) string {
	payload, _ := json.Marshal(struct {
		Action    Action
		Decisions []model.LineDecision
	}{act, ds})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// replay returns the stored outcome of an earlier request with the same
// key, or nil when the key is new.
func (s *Service) replay(ctx context.Context, eventID uint64, key, fp string) (*model.BatchOutcome, error) {
	if key == "" {
		return nil, nil
	}
	r, err := s.store.FindReceipt(ctx, eventID, key)
	if err != nil || r == nil {
		return nil, err
	}
	if r.Fingerprint != fp {
		return nil, invalid("idempotency_key", "key %q was already used for a different request", key)
	}
	out := r.Outcome
	out.Replayed = true
	return &out, nil
}

func (s *Service) saveReceipt(ctx context.Context, eventID uint64, key, fp string, outcome *model.BatchOutcome) error {
	if key == "" {
		return nil
	}
	err := s.store.SaveReceipt(ctx, &model.BatchReceipt{
		ID:             uuid.NewString(),
		EventID:        eventID,
		IdempotencyKey: key,
		Fingerprint:    fp,
		Outcome:        *outcome,
		CreatedAt:      s.clock.Now(),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return invalid("idempotency_key", "key %q is already in use", key)
	}
	return err
}
