package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

func TestSubmitBatch_PartialApproveWhenShort(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.item(t, "Projector", 5)
	f.approved(t, "Gym", on(9, 0), on(12, 0), LineInput{ItemName: "Projector", Quantity: 3})
	require.Equal(t, 2, f.available(t, "Projector"))

	ev := f.event(t, requestor, "Library", on(9, 0), on(12, 0), LineInput{ItemName: "Projector", Quantity: 4})
	_, err := f.svc.ApproveConcept(ctx, admin, ev.ID)
	require.NoError(t, err)

	ff, err := f.svc.Fulfillment(ctx, staff, ev.ID)
	require.NoError(t, err)
	require.Len(t, ff.Lines, 1)
	assert.Equal(t, 2, ff.Lines[0].Available)
	assert.Equal(t, 3, ff.Lines[0].InUse)
	assert.Equal(t, []model.LineAction{model.ActionPartialApprove, model.ActionReject, model.ActionSelfProvide}, ff.Lines[0].LegalActions)

	tests := []struct {
		name     string
		decision model.LineDecision
	}{
		{"full approve", model.LineDecision{ItemName: "Projector", Action: model.ActionApprove}},
		{"partial above available", model.LineDecision{ItemName: "Projector", Action: model.ActionPartialApprove, Quantity: 3}},
	}
	for _, tt := range tests {
		_, err := f.svc.SubmitBatch(ctx, staff, ev.ID, BatchInput{Decisions: []model.LineDecision{tt.decision}})
		var ie *InsufficientInventoryError
		require.ErrorAs(t, err, &ie, tt.name)
		assert.Equal(t, 2, ie.Available, tt.name)
	}

	out, err := f.svc.SubmitBatch(ctx, staff, ev.ID, BatchInput{Decisions: []model.LineDecision{
		{ItemName: "Projector", Action: model.ActionPartialApprove, Quantity: 2},
	}})
	require.NoError(t, err)
	assert.Equal(t, model.EquipmentApproved, out.EquipmentStatus)
	assert.Equal(t, model.StatusUnderReview, out.EventStatus)
	line := lineOf(t, f.get(t, ev.ID), "Projector")
	assert.Equal(t, model.LinePartial, line.Status)
	require.NotNil(t, line.QuantityApproved)
	assert.Equal(t, 2, *line.QuantityApproved)
	assert.Equal(t, 0, f.available(t, "Projector"))
}

func TestSubmitBatch_PartialRefusedWhenFullyAvailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.item(t, "Projector", 5)
	ev := f.event(t, requestor, "Gym", on(9, 0), on(10, 0), LineInput{ItemName: "Projector", Quantity: 2})

	_, err := f.svc.SubmitBatch(ctx, superAdmin, ev.ID, BatchInput{Decisions: []model.LineDecision{
		{ItemName: "Projector", Action: model.ActionPartialApprove, Quantity: 1},
	}})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestSubmitBatch_RejectReason(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.item(t, "Microphone", 4)
	ev := f.event(t, requestor, "Gym", on(9, 0), on(10, 0), LineInput{ItemName: "Microphone", Quantity: 2})

	_, err := f.svc.SubmitBatch(ctx, superAdmin, ev.ID, BatchInput{Decisions: []model.LineDecision{
		{ItemName: "Microphone", Action: model.ActionReject, Reason: "short"},
	}})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "decisions[0].reason", ve.Field)

	out, err := f.svc.SubmitBatch(ctx, superAdmin, ev.ID, BatchInput{Decisions: []model.LineDecision{
		{ItemName: "Microphone", Action: model.ActionReject, Reason: "Out of stock due to repair"},
	}})
	require.NoError(t, err)
	require.Len(t, out.Lines, 1)
	assert.Equal(t, model.LineRejected, out.Lines[0].Status)
	assert.Equal(t, "Out of stock due to repair", out.Lines[0].RejectionReason)
	require.NotNil(t, out.Lines[0].QuantityApproved)
	assert.Equal(t, 0, *out.Lines[0].QuantityApproved)
	assert.Equal(t, 4, f.available(t, "Microphone"))
}

func TestSubmitBatch_IsAtomic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.item(t, "Projector", 5)
	f.item(t, "Speaker", 1)
	ev := f.event(t, requestor, "Gym", on(9, 0), on(10, 0),
		LineInput{ItemName: "Projector", Quantity: 2},
		LineInput{ItemName: "Speaker", Quantity: 2})

	_, err := f.svc.SubmitBatch(ctx, superAdmin, ev.ID, BatchInput{Decisions: []model.LineDecision{
		{ItemName: "Projector", Action: model.ActionApprove},
		{ItemName: "Speaker", Action: model.ActionApprove},
	}})
	var ie *InsufficientInventoryError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "Speaker", ie.ItemName)

	got := f.get(t, ev.ID)
	assert.Equal(t, model.LinePending, lineOf(t, got, "Projector").Status)
	assert.Nil(t, lineOf(t, got, "Projector").QuantityApproved)
	assert.Equal(t, 5, f.available(t, "Projector"))
}

func TestSubmitBatch_Idempotency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.item(t, "Projector", 5)
	ev := f.event(t, requestor, "Gym", on(9, 0), on(10, 0), LineInput{ItemName: "Projector", Quantity: 2})
	batch := BatchInput{
		Decisions:      []model.LineDecision{{ItemName: "Projector", Action: model.ActionApprove}},
		IdempotencyKey: "batch-1",
	}

	first, err := f.svc.SubmitBatch(ctx, superAdmin, ev.ID, batch)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.svc.SubmitBatch(ctx, superAdmin, ev.ID, batch)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Lines, second.Lines)
	assert.Equal(t, 3, f.available(t, "Projector"))

	batch.Decisions[0].Action = model.ActionSelfProvide
	_, err = f.svc.SubmitBatch(ctx, superAdmin, ev.ID, batch)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "idempotency_key", ve.Field)
}

func TestSubmitBatch_ReapplyingSameDecisionIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.item(t, "Projector", 3)
	ev := f.event(t, requestor, "Gym", on(9, 0), on(10, 0), LineInput{ItemName: "Projector", Quantity: 3})
	batch := BatchInput{Decisions: []model.LineDecision{{ItemName: "Projector", Action: model.ActionApprove}}}

	_, err := f.svc.SubmitBatch(ctx, superAdmin, ev.ID, batch)
	require.NoError(t, err)
	_, err = f.svc.SubmitBatch(ctx, superAdmin, ev.ID, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, f.available(t, "Projector"))
}

func TestSubmitBatch_Revoke(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.item(t, "Projector", 3)
	f.item(t, "Banner", 3)
	ev := f.approved(t, "Gym", on(9, 0), on(10, 0), LineInput{ItemName: "Projector", Quantity: 2})
	other := f.event(t, requestor, "Hall", on(9, 0), on(10, 0), LineInput{ItemName: "Banner", Quantity: 1})
	assert.Equal(t, 1, f.available(t, "Projector"))

	_, err := f.svc.SubmitBatch(ctx, staff, ev.ID, BatchInput{Decisions: []model.LineDecision{
		{ItemName: "Projector", Action: model.ActionRevoke},
	}})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	out, err := f.svc.SubmitBatch(ctx, staff, ev.ID, BatchInput{Decisions: []model.LineDecision{
		{ItemName: "Projector", Action: model.ActionRevoke, Reason: "needed for the board meeting"},
	}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, out.EventStatus)
	assert.Equal(t, model.LineRejected, out.Lines[0].Status)
	assert.Equal(t, 3, f.available(t, "Projector"))

	// Pending lines cannot be revoked.
	_, err = f.svc.SubmitBatch(ctx, superAdmin, other.ID, BatchInput{Decisions: []model.LineDecision{
		{ItemName: "Banner", Action: model.ActionRevoke, Reason: "needed for the board meeting"},
	}})
	require.ErrorAs(t, err, &ve)
}

func TestSubmitBatch_SelfProvideReleases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.item(t, "Projector", 3)
	ev := f.event(t, requestor, "Gym", on(9, 0), on(10, 0), LineInput{ItemName: "Projector", Quantity: 2})
	_, err := f.svc.SubmitBatch(ctx, superAdmin, ev.ID, BatchInput{Decisions: []model.LineDecision{{ItemName: "Projector", Action: model.ActionApprove}}})
	require.NoError(t, err)
	require.Equal(t, 1, f.available(t, "Projector"))

	out, err := f.svc.SubmitBatch(ctx, superAdmin, ev.ID, BatchInput{Decisions: []model.LineDecision{{ItemName: "Projector", Action: model.ActionSelfProvide}}})
	require.NoError(t, err)
	assert.Equal(t, model.LineSelfProvided, out.Lines[0].Status)
	assert.Nil(t, out.Lines[0].QuantityApproved)
	assert.Equal(t, 3, f.available(t, "Projector"))
}

func TestSubmitBatch_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.item(t, "Projector", 3)
	ev := f.event(t, requestor, "Gym", on(9, 0), on(10, 0), LineInput{ItemName: "Projector", Quantity: 2})

	tests := []struct {
		name     string
		in       BatchInput
		notFound bool
	}{
		{name: "empty", in: BatchInput{}},
		{name: "unknown action", in: BatchInput{Decisions: []model.LineDecision{{ItemName: "Projector", Action: "MAYBE"}}}},
		{name: "no target", in: BatchInput{Decisions: []model.LineDecision{{Action: model.ActionApprove}}}},
		{name: "partial without quantity", in: BatchInput{Decisions: []model.LineDecision{{ItemName: "Projector", Action: model.ActionPartialApprove}}}},
		{name: "same line twice", in: BatchInput{Decisions: []model.LineDecision{
			{ItemName: "Projector", Action: model.ActionApprove},
			{LineID: ev.Lines[0].ID, Action: model.ActionSelfProvide},
		}}},
		{name: "unknown line", in: BatchInput{Decisions: []model.LineDecision{{LineID: 999, Action: model.ActionApprove}}}, notFound: true},
		{name: "item not requested", in: BatchInput{Decisions: []model.LineDecision{{ItemName: "Laser", Action: model.ActionApprove}}}, notFound: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitBatch(ctx, superAdmin, ev.ID, tt.in)
			if tt.notFound {
				var nf *NotFoundError
				require.ErrorAs(t, err, &nf)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}

	_, err := f.svc.SubmitBatch(ctx, superAdmin, 404, BatchInput{Decisions: []model.LineDecision{{ItemName: "Projector", Action: model.ActionApprove}}})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)

	_, err = f.svc.SubmitBatch(ctx, requestor, ev.ID, BatchInput{Decisions: []model.LineDecision{{ItemName: "Projector", Action: model.ActionApprove}}})
	var ae *AuthorizationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 3, f.available(t, "Projector"))
}
