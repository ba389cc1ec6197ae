package handler

import (
	"encoding/json"
	"time"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/service"
)

// Request bodies.

type lineRequest struct {
	ItemName string `json:"item_name" validate:"required,max=100"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

type budgetItemDTO struct {
	Category    string `json:"category" validate:"required,max=100"`
	AmountCents int64  `json:"amount_cents" validate:"gte=0"`
}

type eventRequest struct {
	Name                string          `json:"name" validate:"required,max=200"`
	Type                string          `json:"type" validate:"max=50"`
	Venue               string          `json:"venue" validate:"required,max=100"`
	Department          string          `json:"department" validate:"max=100"`
	StartAt             time.Time       `json:"start_at" validate:"required"`
	EndAt               time.Time       `json:"end_at" validate:"required"`
	BudgetCents         int64           `json:"budget_cents" validate:"gte=0"`
	BudgetBreakdown     []budgetItemDTO `json:"budget_breakdown" validate:"dive"`
	AdditionalResources []string        `json:"additional_resources" validate:"dive,max=200"`
	Timeline            json.RawMessage `json:"timeline"`
	Equipment           []lineRequest   `json:"equipment" validate:"dive"`
}

func (r eventRequest) input() (service.EventInput, error) {
	phases, err := parseTimeline(r.Timeline, r.StartAt)
	if err != nil {
		return service.EventInput{}, err
	}
	in := service.EventInput{
		Name:                r.Name,
		Type:                r.Type,
		Venue:               r.Venue,
		Department:          r.Department,
		StartAt:             r.StartAt.UTC(),
		EndAt:               r.EndAt.UTC(),
		BudgetCents:         r.BudgetCents,
		AdditionalResources: r.AdditionalResources,
		Timeline:            phases,
	}
	for _, b := range r.BudgetBreakdown {
		in.BudgetBreakdown = append(in.BudgetBreakdown, model.BudgetItem{Category: b.Category, AmountCents: b.AmountCents})
	}
	for _, l := range r.Equipment {
		in.Lines = append(in.Lines, service.LineInput{ItemName: l.ItemName, Quantity: l.Quantity})
	}
	return in, nil
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"required,reason,max=500"`
}

type rescheduleRequest struct {
	Venue   string    `json:"venue" validate:"required,max=100"`
	StartAt time.Time `json:"start_at" validate:"required"`
	EndAt   time.Time `json:"end_at" validate:"required"`
}

type decisionRequest struct {
	LineID   uint64 `json:"line_id"`
	ItemName string `json:"item_name" validate:"required_without=LineID"`
	Action   string `json:"action" validate:"required,oneof=APPROVE PARTIAL_APPROVE REJECT SELF_PROVIDE REVOKE"`
	Quantity int    `json:"quantity" validate:"gte=0"`
	Reason   string `json:"reason" validate:"max=500"`
}

func decisions(rs []decisionRequest) []model.LineDecision {
	out := make([]model.LineDecision, 0, len(rs))
	for _, r := range rs {
		out = append(out, model.LineDecision{
			LineID:   r.LineID,
			ItemName: r.ItemName,
			Action:   model.LineAction(r.Action),
			Quantity: r.Quantity,
			Reason:   r.Reason,
		})
	}
	return out
}

type batchRequest struct {
	Decisions      []decisionRequest `json:"decisions" validate:"dive"`
	IdempotencyKey string            `json:"idempotency_key" validate:"max=100"`
}

type draftRequest struct {
	Version   int64             `json:"version" validate:"gte=0"`
	Decisions []decisionRequest `json:"decisions" validate:"dive"`
}

type commitDraftRequest struct {
	Version        int64  `json:"version" validate:"gt=0"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=100"`
}

type slotRequest struct {
	Venue          string    `json:"venue" validate:"required,max=100"`
	StartAt        time.Time `json:"start_at" validate:"required"`
	EndAt          time.Time `json:"end_at" validate:"required"`
	ExcludeEventID uint64    `json:"exclude_event_id"`
}

func (r slotRequest) query() model.SlotQuery {
	return model.SlotQuery{Venue: r.Venue, StartAt: r.StartAt.UTC(), EndAt: r.EndAt.UTC(), ExcludeEventID: r.ExcludeEventID}
}

type slotsRequest struct {
	Slots []slotRequest `json:"slots" validate:"required,min=1,max=50,dive"`
}

type createItemRequest struct {
	Name          string `json:"name" validate:"required,max=100"`
	Category      string `json:"category" validate:"max=50"`
	TotalQuantity int    `json:"total_quantity" validate:"gte=0"`
}

type quantityRequest struct {
	Quantity int    `json:"quantity" validate:"gt=0"`
	Reason   string `json:"reason" validate:"max=500"`
}

type archiveRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Responses.

type timelineDTO struct {
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	Label       string    `json:"label"`
	Description string    `json:"description,omitempty"`
}

func timelineDTOs(ps []model.TimelinePhase) []timelineDTO {
	out := make([]timelineDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, timelineDTO{StartAt: p.StartAt, EndAt: p.EndAt, Label: p.Label, Description: p.Description})
	}
	return out
}

type lineDTO struct {
	ID                uint64 `json:"id"`
	ItemName          string `json:"item_name"`
	QuantityRequested int    `json:"quantity_requested"`
	QuantityApproved  *int   `json:"quantity_approved"`
	Status            string `json:"status"`
	RejectionReason   string `json:"rejection_reason,omitempty"`
}

func lineDTOs(ls []model.EquipmentRequestLine) []lineDTO {
	out := make([]lineDTO, 0, len(ls))
	for _, l := range ls {
		out = append(out, lineDTO{
			ID:                l.ID,
			ItemName:          l.ItemName,
			QuantityRequested: l.QuantityRequested,
			QuantityApproved:  l.QuantityApproved,
			Status:            string(l.Status),
			RejectionReason:   l.RejectionReason,
		})
	}
	return out
}

type decisionDTO struct {
	Stage     string    `json:"stage"`
	ActorRole string    `json:"actor_role"`
	ActorID   uint64    `json:"actor_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type eventDTO struct {
	ID                  uint64          `json:"id"`
	Name                string          `json:"name"`
	Type                string          `json:"type"`
	Venue               string          `json:"venue"`
	Department          string          `json:"department"`
	StartAt             time.Time       `json:"start_at"`
	EndAt               time.Time       `json:"end_at"`
	Status              string          `json:"status"`
	EquipmentStatus     string          `json:"equipment_status"`
	RequestorID         uint64          `json:"requestor_id"`
	BudgetCents         int64           `json:"budget_cents"`
	BudgetBreakdown     []budgetItemDTO `json:"budget_breakdown"`
	AdditionalResources []string        `json:"additional_resources"`
	Timeline            []timelineDTO   `json:"timeline"`
	Equipment           []lineDTO       `json:"equipment"`
	Decisions           []decisionDTO   `json:"decisions,omitempty"`
	Version             uint64          `json:"version"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func toEventDTO(ev *model.Event) eventDTO {
	d := eventDTO{
		ID:                  ev.ID,
		Name:                ev.Name,
		Type:                ev.Type,
		Venue:               ev.Venue,
		Department:          ev.Department,
		StartAt:             ev.StartAt,
		EndAt:               ev.EndAt,
		Status:              string(ev.Status),
		EquipmentStatus:     string(ev.EquipmentStatus),
		RequestorID:         ev.RequestorID,
		BudgetCents:         ev.BudgetCents,
		BudgetBreakdown:     []budgetItemDTO{},
		AdditionalResources: ev.AdditionalResources,
		Timeline:            timelineDTOs(ev.Timeline),
		Equipment:           lineDTOs(ev.Lines),
		Version:             ev.Version,
		CreatedAt:           ev.CreatedAt,
		UpdatedAt:           ev.UpdatedAt,
	}
	if d.AdditionalResources == nil {
		d.AdditionalResources = []string{}
	}
	for _, b := range ev.BudgetBreakdown {
		d.BudgetBreakdown = append(d.BudgetBreakdown, budgetItemDTO{Category: b.Category, AmountCents: b.AmountCents})
	}
	for _, dec := range ev.Decisions {
		d.Decisions = append(d.Decisions, decisionDTO{
			Stage:     string(dec.Stage),
			ActorRole: string(dec.ActorRole),
			ActorID:   dec.ActorID,
			Outcome:   string(dec.Outcome),
			Reason:    dec.Reason,
			CreatedAt: dec.CreatedAt,
		})
	}
	return d
}

type bookingDTO struct {
	EventID   uint64    `json:"event_id"`
	EventName string    `json:"event_name"`
	Venue     string    `json:"venue"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Status    string    `json:"status"`
}

func bookingDTOs(bs []model.VenueBooking) []bookingDTO {
	out := make([]bookingDTO, 0, len(bs))
	for _, b := range bs {
		out = append(out, bookingDTO{
			EventID:   b.EventID,
			EventName: b.EventName,
			Venue:     b.Venue,
			StartAt:   b.StartAt,
			EndAt:     b.EndAt,
			Status:    string(b.Status),
		})
	}
	return out
}

type outcomeDTO struct {
	EventID         uint64       `json:"event_id"`
	EventStatus     string       `json:"event_status"`
	EquipmentStatus string       `json:"equipment_status"`
	Equipment       []lineDTO    `json:"equipment"`
	Cascaded        []bookingDTO `json:"cascaded"`
	Replayed        bool         `json:"replayed"`
}

func toOutcomeDTO(o *model.BatchOutcome) outcomeDTO {
	return outcomeDTO{
		EventID:         o.EventID,
		EventStatus:     string(o.EventStatus),
		EquipmentStatus: string(o.EquipmentStatus),
		Equipment:       lineDTOs(o.Lines),
		Cascaded:        bookingDTOs(o.Cascaded),
		Replayed:        o.Replayed,
	}
}

type itemDTO struct {
	ID            uint64    `json:"id"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	TotalQuantity int       `json:"total_quantity"`
	InUse         int       `json:"in_use"`
	Available     int       `json:"available"`
	Archived      bool      `json:"archived"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toItemDTO(it model.EquipmentItem) itemDTO {
	return itemDTO{
		ID:            it.ID,
		Name:          it.Name,
		Category:      it.Category,
		TotalQuantity: it.TotalQuantity,
		InUse:         it.InUse,
		Available:     it.Available(),
		Archived:      it.Archived,
		UpdatedAt:     it.UpdatedAt,
	}
}

type auditDTO struct {
	Action     string    `json:"action"`
	Delta      int       `json:"delta"`
	TotalAfter int       `json:"total_after"`
	Reason     string    `json:"reason,omitempty"`
	ActorID    uint64    `json:"actor_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type fulfillmentLineDTO struct {
	lineDTO
	ItemID        uint64   `json:"item_id,omitempty"`
	TotalQuantity int      `json:"total_quantity"`
	InUse         int      `json:"in_use"`
	Available     int      `json:"available"`
	Archived      bool     `json:"archived"`
	Missing       bool     `json:"missing"`
	LegalActions  []string `json:"legal_actions"`
}

type draftDTO struct {
	EventID   uint64            `json:"event_id"`
	Version   int64             `json:"version"`
	Decisions []decisionRequest `json:"decisions"`
	UpdatedBy uint64            `json:"updated_by"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func toDraftDTO(d *model.DraftBatch) draftDTO {
	out := draftDTO{EventID: d.EventID, Version: d.Version, UpdatedBy: d.UpdatedBy, UpdatedAt: d.UpdatedAt, Decisions: []decisionRequest{}}
	for _, dec := range d.Decisions {
		out.Decisions = append(out.Decisions, decisionRequest{
			LineID:   dec.LineID,
			ItemName: dec.ItemName,
			Action:   string(dec.Action),
			Quantity: dec.Quantity,
			Reason:   dec.Reason,
		})
	}
	return out
}

type suggestionDTO struct {
	BudgetCents int64         `json:"budget_cents"`
	Timeline    []timelineDTO `json:"timeline"`
	Equipment   []lineRequest `json:"equipment"`
}
