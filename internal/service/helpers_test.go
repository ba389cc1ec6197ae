package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Lierre03/bcp-ems-sub000/internal/clock"
	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/queue"
	"github.com/Lierre03/bcp-ems-sub000/internal/repository/memstore"
)

var (
	now = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	requestor  = model.Actor{ID: 10, Role: model.RoleRequestor}
	requestor2 = model.Actor{ID: 11, Role: model.RoleRequestor}
	admin      = model.Actor{ID: 20, Role: model.RoleAdmin}
	staff      = model.Actor{ID: 30, Role: model.RoleStaff}
	superAdmin = model.Actor{ID: 40, Role: model.RoleSuperAdmin}
)

// on returns hh:mm on the day after now.
func on(h, m int) time.Time {
	return time.Date(2026, 3, 3, h, m, 0, 0, time.UTC)
}

type notifierSpy struct {
	mu   sync.Mutex
	msgs []queue.StatusChangedEvent
}

func (n *notifierSpy) PublishStatusChanged(_ context.Context, ev queue.StatusChangedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, ev)
	return nil
}

func (n *notifierSpy) forEvent(id uint64) []queue.StatusChangedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []queue.StatusChangedEvent
	for _, m := range n.msgs {
		if m.EventID == id {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	store *memstore.Store
	clock *clock.Manual
	notes *notifierSpy
	svc   *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{store: memstore.New(), clock: clock.NewManual(now), notes: &notifierSpy{}}
	opts = append([]Option{WithNotifier(f.notes)}, opts...)
	f.svc = New(f.store, f.clock, opts...)
	return f
}

func (f *fixture) item(t *testing.T, name string, total int) *model.EquipmentItem {
	t.Helper()
	it, err := f.svc.CreateItem(context.Background(), staff, CreateItemInput{Name: name, Category: "AV", TotalQuantity: total})
	require.NoError(t, err)
	return it
}

func (f *fixture) event(t *testing.T, who model.Actor, venue string, start, end time.Time, lines ...LineInput) *model.Event {
	t.Helper()
	ev, err := f.svc.CreateEvent(context.Background(), who, EventInput{
		Name:    fmt.Sprintf("%s %s", venue, start.Format("15:04")),
		Type:    "seminar",
		Venue:   venue,
		StartAt: start,
		EndAt:   end,
		Lines:   lines,
	})
	require.NoError(t, err)
	return ev
}

func (f *fixture) get(t *testing.T, id uint64) *model.Event {
	t.Helper()
	ev, err := f.svc.GetEvent(context.Background(), superAdmin, id)
	require.NoError(t, err)
	return ev
}

func (f *fixture) available(t *testing.T, name string) int {
	t.Helper()
	n, err := f.svc.GetAvailable(context.Background(), name)
	require.NoError(t, err)
	return n
}

// approved files an event and takes it straight to Approved with every
// line approved in full.
func (f *fixture) approved(t *testing.T, venue string, start, end time.Time, lines ...LineInput) *model.Event {
	t.Helper()
	ev := f.event(t, requestor, venue, start, end, lines...)
	var ds []model.LineDecision
	for _, l := range ev.Lines {
		ds = append(ds, model.LineDecision{LineID: l.ID, Action: model.ActionApprove})
	}
	_, err := f.svc.SuperAdminApprove(context.Background(), superAdmin, ev.ID, ApproveInput{Decisions: ds})
	require.NoError(t, err)
	return f.get(t, ev.ID)
}

func lineOf(t *testing.T, ev *model.Event, item string) model.EquipmentRequestLine {
	t.Helper()
	for _, l := range ev.Lines {
		if l.ItemName == item {
			return l
		}
	}
	t.Fatalf("event %d has no line for %q", ev.ID, item)
	return model.EquipmentRequestLine{}
}
