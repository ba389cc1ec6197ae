package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

// budgetRow and timelineRow are the JSON shapes of the events.budget_breakdown
// and events.timeline columns.
type budgetRow struct {
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents"`
}

type timelineRow struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Label       string    `json:"label"`
	Description string    `json:"description,omitempty"`
}

const eventColumns = `id, name, event_type, venue, start_at, end_at, status, requestor_id, department,
	budget_cents, budget_breakdown, additional_resources, timeline, equipment_status, version,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var e model.Event
	var budgetRaw, resRaw, timeRaw []byte
	var status, equipment string
	err := row.Scan(
		&e.ID, &e.Name, &e.Type, &e.Venue, &e.StartAt, &e.EndAt, &status, &e.RequestorID, &e.Department,
		&e.BudgetCents, &budgetRaw, &resRaw, &timeRaw, &equipment, &e.Version,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = model.EventStatus(status)
	e.EquipmentStatus = model.EquipmentApproval(equipment)

	var budget []budgetRow
	if err := fromJSON(budgetRaw, &budget); err != nil {
		return nil, fmt.Errorf("decode budget_breakdown of event %d: %w", e.ID, err)
	}
	for _, b := range budget {
		e.BudgetBreakdown = append(e.BudgetBreakdown, model.BudgetItem{Category: b.Category, AmountCents: b.AmountCents})
	}
	if err := fromJSON(resRaw, &e.AdditionalResources); err != nil {
		return nil, fmt.Errorf("decode additional_resources of event %d: %w", e.ID, err)
	}
	var phases []timelineRow
	if err := fromJSON(timeRaw, &phases); err != nil {
		return nil, fmt.Errorf("decode timeline of event %d: %w", e.ID, err)
	}
	for _, p := range phases {
		e.Timeline = append(e.Timeline, model.TimelinePhase{
			StartAt: p.Start.UTC(), EndAt: p.End.UTC(), Label: p.Label, Description: p.Description,
		})
	}
	return &e, nil
}

func encodeEventJSON(e *model.Event) (budget, resources, timeline []byte, err error) {
	rows := make([]budgetRow, 0, len(e.BudgetBreakdown))
	for _, b := range e.BudgetBreakdown {
		rows = append(rows, budgetRow{Category: b.Category, AmountCents: b.AmountCents})
	}
	if budget, err = toJSON(rows); err != nil {
		return
	}
	res := e.AdditionalResources
	if res == nil {
		res = []string{}
	}
	if resources, err = toJSON(res); err != nil {
		return
	}
	phases := make([]timelineRow, 0, len(e.Timeline))
	for _, p := range e.Timeline {
		phases = append(phases, timelineRow{Start: p.StartAt, End: p.EndAt, Label: p.Label, Description: p.Description})
	}
	timeline, err = toJSON(phases)
	return
}

// CreateEvent inserts the event and its request lines, assigning the
// generated ids back onto e.
func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	budget, resources, timeline, err := encodeEventJSON(e)
	if err != nil {
		return err
	}
	if e.Version == 0 {
		e.Version = 1
	}
	const q = `INSERT INTO events (name, event_type, venue, start_at, end_at, status, requestor_id, department,
		budget_cents, budget_breakdown, additional_resources, timeline, equipment_status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.q(ctx).ExecContext(ctx, q,
		e.Name, e.Type, e.Venue, e.StartAt.UTC(), e.EndAt.UTC(), string(e.Status), e.RequestorID, e.Department,
		e.BudgetCents, budget, resources, timeline, string(e.EquipmentStatus), e.Version, e.CreatedAt.UTC(), e.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return s.insertLines(ctx, e.ID, e.Lines)
}

func (s *Store) insertLines(ctx context.Context, eventID uint64, lines []model.EquipmentRequestLine) error {
	const q = `INSERT INTO equipment_request_lines
		(event_id, position, item_name, quantity_requested, quantity_approved, line_status, rejection_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	for i := range lines {
		l := &lines[i]
		res, err := s.q(ctx).ExecContext(ctx, q,
			eventID, i, l.ItemName, l.QuantityRequested, nullInt(l.QuantityApproved), string(l.Status), l.RejectionReason)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		l.ID = uint64(id)
		l.EventID = eventID
	}
	return nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// GetEvent loads an event with its lines and decision trail.
func (s *Store) GetEvent(ctx context.Context, id uint64) (*model.Event, error) {
	return s.getEvent(ctx, id, false)
}

// GetEventForUpdate loads an event and holds its row lock until the
// surrounding transaction ends.
func (s *Store) GetEventForUpdate(ctx context.Context, id uint64) (*model.Event, error) {
	return s.getEvent(ctx, id, true)
}

func (s *Store) getEvent(ctx context.Context, id uint64, forUpdate bool) (*model.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	e, err := scanEvent(s.q(ctx).QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	lines, err := s.loadLines(ctx, []uint64{e.ID})
	if err != nil {
		return nil, err
	}
	e.Lines = lines[e.ID]
	if e.Decisions, err = s.loadDecisions(ctx, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) loadLines(ctx context.Context, eventIDs []uint64) (map[uint64][]model.EquipmentRequestLine, error) {
	out := make(map[uint64][]model.EquipmentRequestLine, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		args[i] = id
	}
	q := `SELECT id, event_id, item_name, quantity_requested, quantity_approved, line_status, rejection_reason
		FROM equipment_request_lines WHERE event_id IN (` + placeholders(len(eventIDs)) + `)
		ORDER BY event_id, position, id`
	rows, err := s.q(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l        model.EquipmentRequestLine
			approved sql.NullInt64
			status   string
		)
		if err := rows.Scan(&l.ID, &l.EventID, &l.ItemName, &l.QuantityRequested, &approved, &status, &l.RejectionReason); err != nil {
			return nil, err
		}
		if approved.Valid {
			v := int(approved.Int64)
			l.QuantityApproved = &v
		}
		l.Status = model.LineStatus(status)
		out[l.EventID] = append(out[l.EventID], l)
	}
	return out, rows.Err()
}

func (s *Store) loadDecisions(ctx context.Context, eventID uint64) ([]model.ApprovalDecision, error) {
	const q = `SELECT id, event_id, stage, actor_role, actor_id, outcome, reason, created_at
		FROM approval_decisions WHERE event_id = ? ORDER BY id`
	rows, err := s.q(ctx).QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ApprovalDecision
	for rows.Next() {
		var d model.ApprovalDecision
		var stage, role, outcome string
		if err := rows.Scan(&d.ID, &d.EventID, &stage, &role, &d.ActorID, &outcome, &d.Reason, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Stage = model.DecisionStage(stage)
		d.ActorRole = model.Role(role)
		d.Outcome = model.DecisionOutcome(outcome)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListEvents returns events matching f ordered by start time, with lines
// but without the decision trail.
func (s *Store) ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Venue != "" {
		where = append(where, "venue = ?")
		args = append(args, f.Venue)
	}
	if f.RequestorID != 0 {
		where = append(where, "requestor_id = ?")
		args = append(args, f.RequestorID)
	}
	q := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY start_at, id`

	rows, err := s.q(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var (
		events []model.Event
		ids    []uint64
	)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		events = append(events, *e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	lines, err := s.loadLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Lines = lines[events[i].ID]
	}
	return events, nil
}

// UpdateEvent rewrites the editable columns of e and replaces its lines.
// The stored version is bumped and copied back onto e.
func (s *Store) UpdateEvent(ctx context.Context, e *model.Event) error {
	budget, resources, timeline, err := encodeEventJSON(e)
	if err != nil {
		return err
	}
	const q = `UPDATE events SET name = ?, event_type = ?, venue = ?, start_at = ?, end_at = ?, status = ?,
		department = ?, budget_cents = ?, budget_breakdown = ?, additional_resources = ?, timeline = ?,
		equipment_status = ?, version = version + 1, updated_at = ?
		WHERE id = ?`
	res, err := s.q(ctx).ExecContext(ctx, q,
		e.Name, e.Type, e.Venue, e.StartAt.UTC(), e.EndAt.UTC(), string(e.Status),
		e.Department, e.BudgetCents, budget, resources, timeline,
		string(e.EquipmentStatus), e.UpdatedAt.UTC(), e.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := s.q(ctx).ExecContext(ctx, `DELETE FROM equipment_request_lines WHERE event_id = ?`, e.ID); err != nil {
		return err
	}
	if err := s.insertLines(ctx, e.ID, e.Lines); err != nil {
		return err
	}
	e.Version++
	return nil
}

// UpdateEventStatus moves an event to status.
func (s *Store) UpdateEventStatus(ctx context.Context, id uint64, status model.EventStatus, at time.Time) error {
	const q = `UPDATE events SET status = ?, version = version + 1, updated_at = ? WHERE id = ?`
	res, err := s.q(ctx).ExecContext(ctx, q, string(status), at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveLineDecisions persists the decision columns of every line and the
// aggregate equipment status of the event.
func (s *Store) SaveLineDecisions(ctx context.Context, eventID uint64, lines []model.EquipmentRequestLine, status model.EquipmentApproval, at time.Time) error {
	const ql = `UPDATE equipment_request_lines SET quantity_approved = ?, line_status = ?, rejection_reason = ?
		WHERE id = ? AND event_id = ?`
	for _, l := range lines {
		if _, err := s.q(ctx).ExecContext(ctx, ql, nullInt(l.QuantityApproved), string(l.Status), l.RejectionReason, l.ID, eventID); err != nil {
			return err
		}
	}
	const qe = `UPDATE events SET equipment_status = ?, version = version + 1, updated_at = ? WHERE id = ?`
	_, err := s.q(ctx).ExecContext(ctx, qe, string(status), at.UTC(), eventID)
	return err
}

// DeleteEvent removes an event; lines and decisions go with it through
// ON DELETE CASCADE.
func (s *Store) DeleteEvent(ctx context.Context, id uint64) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendDecision adds an entry to the audit trail.
func (s *Store) AppendDecision(ctx context.Context, d *model.ApprovalDecision) error {
	const q = `INSERT INTO approval_decisions (event_id, stage, actor_role, actor_id, outcome, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.q(ctx).ExecContext(ctx, q,
		d.EventID, string(d.Stage), string(d.ActorRole), d.ActorID, string(d.Outcome), d.Reason, d.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = uint64(id)
	return nil
}

// FindBookings returns the events occupying q.Venue during [q.StartAt,
// q.EndAt), ordered by id.  With forUpdate the matching event rows stay
// locked until the transaction ends.
func (s *Store) FindBookings(ctx context.Context, q model.SlotQuery, forUpdate bool) ([]model.VenueBooking, error) {
	query := `SELECT id, name, venue, start_at, end_at, status FROM events
		WHERE venue = ? AND status IN (?, ?, ?, ?) AND id <> ? AND start_at < ? AND ? < end_at
		ORDER BY id`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := s.q(ctx).QueryContext(ctx, query,
		q.Venue,
		string(model.StatusPending), string(model.StatusUnderReview), string(model.StatusApproved), string(model.StatusCompleted),
		q.ExcludeEventID, q.EndAt.UTC(), q.StartAt.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.VenueBooking
	for rows.Next() {
		var (
			b      model.VenueBooking
			status string
		)
		if err := rows.Scan(&b.EventID, &b.EventName, &b.Venue, &b.StartAt, &b.EndAt, &status); err != nil {
			return nil, err
		}
		b.Status = model.EventStatus(status)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListApprovedEndedBefore returns the ids of Approved events whose end
// time is at or before t.
func (s *Store) ListApprovedEndedBefore(ctx context.Context, t time.Time) ([]uint64, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT id FROM events WHERE status = ? AND end_at <= ? ORDER BY id`, string(model.StatusApproved), t.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
