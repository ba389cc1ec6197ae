package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

func TestReduceQuantity_NeverBelowInUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	chairs := f.item(t, "Chair", 10)
	f.approved(t, "Gym", on(9, 0), on(12, 0), LineInput{ItemName: "Chair", Quantity: 3})

	_, err := f.svc.ReduceQuantity(ctx, staff, chairs.ID, 12, "broken in storage")
	var ie *InsufficientInventoryError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 12, ie.Requested)
	assert.Equal(t, 7, ie.Available)

	_, err = f.svc.ReduceQuantity(ctx, staff, chairs.ID, 8, "broken in storage")
	require.ErrorAs(t, err, &ie)

	it, err := f.svc.ReduceQuantity(ctx, staff, chairs.ID, 7, "broken in storage")
	require.NoError(t, err)
	assert.Equal(t, 3, it.TotalQuantity)
	assert.Equal(t, 3, it.InUse)
	assert.Equal(t, 0, it.Available())
}

func TestAddQuantity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	mics := f.item(t, "Microphone", 2)

	it, err := f.svc.AddQuantity(ctx, superAdmin, mics.ID, 3, "donation")
	require.NoError(t, err)
	assert.Equal(t, 5, it.TotalQuantity)
	assert.Equal(t, 5, f.available(t, "Microphone"))

	_, err = f.svc.AddQuantity(ctx, staff, mics.ID, 0, "")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "quantity", ve.Field)

	_, err = f.svc.AddQuantity(ctx, staff, 999, 1, "")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestLedgerValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	mics := f.item(t, "Microphone", 2)

	tests := []struct {
		name  string
		run   func() error
		field string
	}{
		{"reduce without reason", func() error {
			_, err := f.svc.ReduceQuantity(ctx, staff, mics.ID, 1, "  ")
			return err
		}, "reason"},
		{"reduce zero", func() error {
			_, err := f.svc.ReduceQuantity(ctx, staff, mics.ID, 0, "lost")
			return err
		}, "quantity"},
		{"create without name", func() error {
			_, err := f.svc.CreateItem(ctx, staff, CreateItemInput{Name: " ", TotalQuantity: 1})
			return err
		}, "name"},
		{"create negative total", func() error {
			_, err := f.svc.CreateItem(ctx, staff, CreateItemInput{Name: "Laser", TotalQuantity: -1})
			return err
		}, "total_quantity"},
		{"duplicate name", func() error {
			_, err := f.svc.CreateItem(ctx, staff, CreateItemInput{Name: "Microphone", TotalQuantity: 1})
			return err
		}, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ve *ValidationError
			require.ErrorAs(t, tt.run(), &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestLedgerRoles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	mics := f.item(t, "Microphone", 2)

	for _, a := range []model.Actor{requestor, admin} {
		var ae *AuthorizationError
		_, err := f.svc.CreateItem(ctx, a, CreateItemInput{Name: "Laser", TotalQuantity: 1})
		require.ErrorAs(t, err, &ae)
		_, err = f.svc.AddQuantity(ctx, a, mics.ID, 1, "")
		require.ErrorAs(t, err, &ae)
		_, err = f.svc.ReduceQuantity(ctx, a, mics.ID, 1, "lost")
		require.ErrorAs(t, err, &ae)
		_, err = f.svc.ArchiveItem(ctx, a, mics.ID, "")
		require.ErrorAs(t, err, &ae)
	}
	assert.Equal(t, 2, f.available(t, "Microphone"))
}

func TestArchiveItem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.item(t, "Banner", 4)
	tent := f.item(t, "Tent", 2)
	f.approved(t, "Field", on(9, 0), on(12, 0), LineInput{ItemName: "Tent", Quantity: 1})

	it, err := f.svc.ArchiveItem(ctx, staff, tent.ID, "replaced by canopies")
	require.NoError(t, err)
	assert.True(t, it.Archived)
	assert.Equal(t, 1, it.InUse)

	active, err := f.svc.ListItems(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Banner", active[0].Name)

	all, err := f.svc.ListItems(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.CreateEvent(ctx, requestor, EventInput{
		Name: "Camp", Venue: "Lawn", StartAt: on(13, 0), EndAt: on(15, 0),
		Lines: []LineInput{{ItemName: "Tent", Quantity: 1}},
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "equipment[0].item", ve.Field)

	_, err = f.svc.ArchiveItem(ctx, staff, tent.ID, "")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "archived", ve.Field)
}

func TestAuditTrail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	mics := f.item(t, "Microphone", 2)

	_, err := f.svc.AddQuantity(ctx, staff, mics.ID, 4, "donation")
	require.NoError(t, err)
	_, err = f.svc.ReduceQuantity(ctx, superAdmin, mics.ID, 1, "dropped")
	require.NoError(t, err)
	// Failed adjustments leave no trace.
	_, err = f.svc.ReduceQuantity(ctx, staff, mics.ID, 50, "lost")
	require.Error(t, err)

	trail, err := f.svc.AuditTrail(ctx, mics.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)

	want := []struct {
		action model.InventoryAction
		delta  int
		total  int
		actor  uint64
	}{
		{model.InventoryCreate, 2, 2, staff.ID},
		{model.InventoryAdd, 4, 6, staff.ID},
		{model.InventoryReduce, -1, 5, superAdmin.ID},
	}
	for i, w := range want {
		assert.Equal(t, w.action, trail[i].Action)
		assert.Equal(t, w.delta, trail[i].Delta)
		assert.Equal(t, w.total, trail[i].TotalAfter)
		assert.Equal(t, w.actor, trail[i].ActorID)
	}
	assert.Equal(t, "dropped", trail[2].Reason)

	_, err = f.svc.AuditTrail(ctx, 999)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestInUseFollowsEventLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.item(t, "Speaker", 4)
	ev := f.approved(t, "Gym", on(9, 0), on(12, 0), LineInput{ItemName: "Speaker", Quantity: 3})
	assert.Equal(t, 1, f.available(t, "Speaker"))

	f.clock.Set(on(12, 30))
	_, err := f.svc.Complete(ctx, admin, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, f.available(t, "Speaker"))

	_, err = f.svc.GetAvailable(ctx, "Laser")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}
