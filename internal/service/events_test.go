package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

func TestCreateEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.item(t, "Projector", 3)

	ev, err := f.svc.CreateEvent(ctx, requestor, EventInput{
		Name:        " Science Fair ",
		Type:        "fair",
		Venue:       " Gym ",
		Department:  "Science",
		StartAt:     on(9, 0),
		EndAt:       on(15, 0),
		BudgetCents: 150000,
		BudgetBreakdown: []model.BudgetItem{
			{Category: "Prizes", AmountCents: 100000},
			{Category: "Food", AmountCents: 50000},
		},
		AdditionalResources: []string{"extension cords", " "},
		Lines:               []LineInput{{ItemName: "Projector", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Science Fair", ev.Name)
	assert.Equal(t, "Gym", ev.Venue)
	assert.Equal(t, model.StatusPending, ev.Status)
	assert.Equal(t, requestor.ID, ev.RequestorID)
	assert.Equal(t, []string{"extension cords"}, ev.AdditionalResources)
	require.Len(t, ev.Timeline, 1)
	assert.Equal(t, "Science Fair", ev.Timeline[0].Label)
	require.Len(t, ev.Lines, 1)
	assert.Equal(t, model.LinePending, ev.Lines[0].Status)
	assert.Nil(t, ev.Lines[0].QuantityApproved)
	assert.NotZero(t, ev.Lines[0].ID)
	assert.Equal(t, 3, f.available(t, "Projector"))
}

func TestCreateEvent_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.item(t, "Projector", 3)

	valid := func() EventInput {
		return EventInput{Name: "Assembly", Venue: "Gym", StartAt: on(9, 0), EndAt: on(10, 0)}
	}
	tests := []struct {
		name   string
		mutate func(*EventInput)
		field  string
	}{
		{"no name", func(in *EventInput) { in.Name = "" }, "name"},
		{"no venue", func(in *EventInput) { in.Venue = "  " }, "venue"},
		{"end before start", func(in *EventInput) { in.EndAt = on(8, 0) }, "end"},
		{"in the past", func(in *EventInput) { in.StartAt, in.EndAt = now.Add(-1), now.Add(3600) }, "start"},
		{"negative budget", func(in *EventInput) { in.BudgetCents = -1 }, "budget"},
		{"budget without category", func(in *EventInput) { in.BudgetBreakdown = []model.BudgetItem{{AmountCents: 5}} }, "budget_breakdown[0].category"},
		{"zero quantity", func(in *EventInput) { in.Lines = []LineInput{{ItemName: "Projector"}} }, "equipment[0].quantity"},
		{"unknown item", func(in *EventInput) { in.Lines = []LineInput{{ItemName: "Laser", Quantity: 1}} }, "equipment[0].item"},
		{"duplicate item", func(in *EventInput) {
			in.Lines = []LineInput{{ItemName: "Projector", Quantity: 1}, {ItemName: "projector", Quantity: 1}}
		}, "equipment[1].item"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			_, err := f.svc.CreateEvent(ctx, requestor, in)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	_, err := f.svc.CreateEvent(ctx, model.Actor{ID: 1, Role: "JANITOR"}, valid())
	var ae *AuthorizationError
	require.ErrorAs(t, err, &ae)
}

func TestEventVisibility(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	mine := f.event(t, requestor, "Gym", on(9, 0), on(10, 0))
	theirs := f.event(t, requestor2, "Hall", on(9, 0), on(10, 0))

	_, err := f.svc.GetEvent(ctx, requestor, mine.ID)
	require.NoError(t, err)
	_, err = f.svc.GetEvent(ctx, requestor, theirs.ID)
	var ae *AuthorizationError
	require.ErrorAs(t, err, &ae)
	for _, a := range []model.Actor{admin, staff, superAdmin} {
		_, err := f.svc.GetEvent(ctx, a, theirs.ID)
		require.NoError(t, err)
	}
	_, err = f.svc.GetEvent(ctx, admin, 999)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	list, err := f.svc.ListEvents(ctx, requestor, model.EventFilter{RequestorID: requestor2.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	list, err = f.svc.ListEvents(ctx, admin, model.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestListEvents_Filters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	late := f.event(t, requestor, "Gym", on(14, 0), on(15, 0))
	early := f.event(t, requestor2, "Gym", on(8, 0), on(9, 0))
	other := f.event(t, requestor, "Hall", on(9, 0), on(10, 0))
	_, err := f.svc.ApproveConcept(ctx, admin, other.ID)
	require.NoError(t, err)

	list, err := f.svc.ListEvents(ctx, staff, model.EventFilter{Venue: "Gym"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, early.ID, list[0].ID)
	assert.Equal(t, late.ID, list[1].ID)

	list, err = f.svc.ListEvents(ctx, staff, model.EventFilter{Status: model.StatusUnderReview})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, other.ID, list[0].ID)

	_, err = f.svc.ListEvents(ctx, staff, model.EventFilter{Status: "LOST"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestUpdateEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.item(t, "Projector", 3)
	f.item(t, "Speaker", 2)
	ev := f.event(t, requestor, "Gym", on(9, 0), on(10, 0), LineInput{ItemName: "Projector", Quantity: 1})
	_, err := f.svc.SaveDraft(ctx, superAdmin, ev.ID, []model.LineDecision{{ItemName: "Projector", Action: model.ActionApprove}}, 0)
	require.NoError(t, err)

	got, err := f.svc.UpdateEvent(ctx, requestor, ev.ID, EventInput{
		Name: "Assembly", Venue: "Hall", StartAt: on(11, 0), EndAt: on(12, 0),
		Lines: []LineInput{{ItemName: "Speaker", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hall", got.Venue)
	assert.Equal(t, requestor.ID, got.RequestorID)
	assert.Greater(t, got.Version, ev.Version)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "Speaker", got.Lines[0].ItemName)

	// Editing drops the saved draft.
	_, err = f.svc.GetDraft(ctx, superAdmin, ev.ID)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	_, err = f.svc.UpdateEvent(ctx, requestor2, ev.ID, EventInput{Name: "Mine now", Venue: "Hall", StartAt: on(11, 0), EndAt: on(12, 0)})
	var ae *AuthorizationError
	require.ErrorAs(t, err, &ae)

	_, err = f.svc.UpdateEvent(ctx, staff, ev.ID, EventInput{Name: "Staff edit", Venue: "Hall", StartAt: on(11, 0), EndAt: on(12, 0)})
	require.ErrorAs(t, err, &ae)

	_, err = f.svc.ApproveConcept(ctx, admin, ev.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateEvent(ctx, admin, ev.ID, EventInput{Name: "Late edit", Venue: "Hall", StartAt: on(11, 0), EndAt: on(12, 0)})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)
}

func TestUpdateEvent_BlockedByApprovedSlot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.approved(t, "Hall", on(11, 0), on(12, 0))
	ev := f.event(t, requestor2, "Gym", on(9, 0), on(10, 0))

	_, err := f.svc.UpdateEvent(ctx, requestor2, ev.ID, EventInput{Name: "Move", Venue: "Hall", StartAt: on(11, 30), EndAt: on(12, 30)})
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "Gym", f.get(t, ev.ID).Venue)
}

func TestDeleteEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	ev := f.event(t, requestor, "Gym", on(9, 0), on(10, 0))
	started := f.event(t, requestor, "Hall", on(9, 0), on(10, 0))

	var ae *AuthorizationError
	require.ErrorAs(t, f.svc.DeleteEvent(ctx, requestor2, ev.ID), &ae)
	require.NoError(t, f.svc.DeleteEvent(ctx, requestor, ev.ID))

	var nf *NotFoundError
	_, err := f.svc.GetEvent(ctx, admin, ev.ID)
	require.ErrorAs(t, err, &nf)
	require.ErrorAs(t, f.svc.DeleteEvent(ctx, requestor, ev.ID), &nf)

	f.clock.Set(on(9, 30))
	require.ErrorAs(t, f.svc.DeleteEvent(ctx, admin, started.ID), &ae)
}
