// Package service implements the approval workflow: the role-gated state
// machine, the venue conflict detector, the equipment reservation engine
// and the inventory ledger.  All of them share one Service so that an
// approval can run detector, engine and cascade inside one transaction.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Lierre03/bcp-ems-sub000/internal/clock"
	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/queue"
)

// Notifier receives one message per committed status change.
type Notifier interface {
	PublishStatusChanged(ctx context.Context, ev queue.StatusChangedEvent) error
}

// Predictor proposes budget, timeline and equipment for an event.
type Predictor interface {
	Suggest(ctx context.Context, ev model.Event) (model.Suggestion, error)
}

// UndecidedPolicy says what approval does with lines nobody decided.
type UndecidedPolicy string

const (
	// UndecidedRequire refuses the approval and names the open lines.
	UndecidedRequire UndecidedPolicy = "require"
	// UndecidedApprove approves every open line in full.
	UndecidedApprove UndecidedPolicy = "approve"
)

// Service is the workflow core.  It is safe for concurrent use; all
// coordination happens in the Store's transactions.
type Service struct {
	store     Store
	clock     clock.Clock
	log       zerolog.Logger
	notifier  Notifier
	predictor Predictor
	drafts    DraftStore
	undecided UndecidedPolicy
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithNotifier sets where status changes are published.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithPredictor enables Suggest.
func WithPredictor(p Predictor) Option {
	return func(s *Service) { s.predictor = p }
}

// WithDraftStore overrides the in-memory draft store.
func WithDraftStore(d DraftStore) Option {
	return func(s *Service) {
		if d != nil {
			s.drafts = d
		}
	}
}

// WithUndecidedPolicy sets the undecided line policy; unknown values
// keep the default.
func WithUndecidedPolicy(p UndecidedPolicy) Option {
	return func(s *Service) {
		if p == UndecidedRequire || p == UndecidedApprove {
			s.undecided = p
		}
	}
}

// New builds a Service over store.
func New(store Store, clk clock.Clock, opts ...Option) *Service {
	s := &Service{
		store:     store,
		clock:     clk,
		log:       zerolog.Nop(),
		notifier:  nopNotifier{},
		drafts:    NewMemoryDraftStore(24 * time.Hour),
		undecided: UndecidedRequire,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type nopNotifier struct{}

func (nopNotifier) PublishStatusChanged(context.Context, queue.StatusChangedEvent) error { return nil }

// statusChange is collected inside a transaction and published after it
// commits.
type statusChange struct {
	event  model.Event
	from   model.EventStatus
	to     model.EventStatus
	actor  model.Actor
	reason string
	winner uint64
}

func (s *Service) publish(ctx context.Context, changes []statusChange) {
	now := s.clock.Now()
	for _, c := range changes {
		s.log.Info().
			Uint64("event_id", c.event.ID).
			Str("from", string(c.from)).
			Str("to", string(c.to)).
			Str("role", string(c.actor.Role)).
			Uint64("actor_id", c.actor.ID).
			Msg("event status changed")
		msg := queue.StatusChangedEvent{
			MessageID:     uuid.NewString(),
			EventID:       c.event.ID,
			EventName:     c.event.Name,
			Venue:         c.event.Venue,
			StartAt:       c.event.StartAt,
			EndAt:         c.event.EndAt,
			RequestorID:   c.event.RequestorID,
			From:          string(c.from),
			To:            string(c.to),
			ActorRole:     string(c.actor.Role),
			ActorID:       c.actor.ID,
			Reason:        c.reason,
			WinnerEventID: c.winner,
			OccurredAt:    now,
		}
		if err := s.notifier.PublishStatusChanged(ctx, msg); err != nil {
			s.log.Warn().Err(err).Uint64("event_id", c.event.ID).Msg("status notification not sent")
		}
	}
}

func (s *Service) decide(ctx context.Context, ev *model.Event, stage model.DecisionStage, actor model.Actor, outcome model.DecisionOutcome, reason string) error {
	d := &model.ApprovalDecision{
		EventID:   ev.ID,
		Stage:     stage,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		Outcome:   outcome,
		Reason:    reason,
		CreatedAt: s.clock.Now(),
	}
	return s.store.AppendDecision(ctx, d)
}

// setStatus persists a status change, records the decision and queues
// the notification.
func (s *Service) setStatus(ctx context.Context, ev *model.Event, to model.EventStatus, stage model.DecisionStage, actor model.Actor, outcome model.DecisionOutcome, reason string, changes *[]statusChange) error {
	from := ev.Status
	if err := s.store.UpdateEventStatus(ctx, ev.ID, to, s.clock.Now()); err != nil {
		return err
	}
	if err := s.decide(ctx, ev, stage, actor, outcome, reason); err != nil {
		return err
	}
	ev.Status = to
	*changes = append(*changes, statusChange{event: *ev, from: from, to: to, actor: actor, reason: reason})
	return nil
}
