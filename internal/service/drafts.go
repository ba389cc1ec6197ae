package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

// ErrDraftVersion is returned by DraftStore.Put when the stored draft is
// not at the expected version.
var ErrDraftVersion = errors.New("draft version mismatch")

// DraftStore keeps one uncommitted decision batch per event.
type DraftStore interface {
	// Get returns nil, nil when the event has no draft.
	Get(ctx context.Context, eventID uint64) (*model.DraftBatch, error)
	// Put stores d as version expected+1.  expected is 0 for a new draft.
	Put(ctx context.Context, d model.DraftBatch, expected int64) (*model.DraftBatch, error)
	Delete(ctx context.Context, eventID uint64) error
}

// MemoryDraftStore is the process-local DraftStore used when Redis is
// not configured.
type MemoryDraftStore struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	drafts map[uint64]memDraft
}

type memDraft struct {
	draft   model.DraftBatch
	expires time.Time
}

// NewMemoryDraftStore returns a store whose drafts expire after ttl.
func NewMemoryDraftStore(ttl time.Duration) *MemoryDraftStore {
	return &MemoryDraftStore{ttl: ttl, now: time.Now, drafts: map[uint64]memDraft{}}
}

func (m *MemoryDraftStore) current(eventID uint64) (model.DraftBatch, bool) {
	d, ok := m.drafts[eventID]
	if !ok {
		return model.DraftBatch{}, false
	}
	if m.ttl > 0 && m.now().After(d.expires) {
		delete(m.drafts, eventID)
		return model.DraftBatch{}, false
	}
	return d.draft, true
}

func (m *MemoryDraftStore) Get(_ context.Context, eventID uint64) (*model.DraftBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.current(eventID)
	if !ok {
		return nil, nil
	}
	d.Decisions = append([]model.LineDecision(nil), d.Decisions...)
	return &d, nil
}

func (m *MemoryDraftStore) Put(_ context.Context, d model.DraftBatch, expected int64) (*model.DraftBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var version int64
	if cur, ok := m.current(d.EventID); ok {
		version = cur.Version
	}
	if version != expected {
		return nil, ErrDraftVersion
	}
	d.Version = expected + 1
	d.Decisions = append([]model.LineDecision(nil), d.Decisions...)
	m.drafts[d.EventID] = memDraft{draft: d, expires: m.now().Add(m.ttl)}
	return &d, nil
}

func (m *MemoryDraftStore) Delete(_ context.Context, eventID uint64) error {
	m.mu.Lock()
	delete(m.drafts, eventID)
	m.mu.Unlock()
	return nil
}

// GetDraft returns the saved draft batch of an event.
func (s *Service) GetDraft(ctx context.Context, actor model.Actor, eventID uint64) (*model.DraftBatch, error) {
	if err := checkRole(actor, ActDecideEquipment); err != nil {
		return nil, err
	}
	if _, err := s.reload(ctx, eventID); err != nil {
		return nil, err
	}
	d, err := s.drafts.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &NotFoundError{Resource: "draft for event", Key: fmt.Sprint(eventID)}
	}
	return d, nil
}

// SaveDraft replaces the draft of an event.  expectedVersion is the
// version the caller last read, 0 when starting a new draft.
func (s *Service) SaveDraft(ctx context.Context, actor model.Actor, eventID uint64, decisions []model.LineDecision, expectedVersion int64) (*model.DraftBatch, error) {
	ev, err := s.reload(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, ev, ActDecideEquipment); err != nil {
		return nil, err
	}
	if err := validateDecisions(decisions); err != nil {
		return nil, err
	}
	for _, d := range decisions {
		if _, err := resolveLine(ev, d); err != nil {
			return nil, err
		}
	}
	saved, err := s.drafts.Put(ctx, model.DraftBatch{
		EventID:   eventID,
		Token:     uuid.NewString(),
		Decisions: decisions,
		UpdatedBy: actor.ID,
		UpdatedAt: s.clock.Now(),
	}, expectedVersion)
	if errors.Is(err, ErrDraftVersion) {
		return nil, invalid("version", "draft was changed by someone else; reload it")
	}
	return saved, err
}

// DiscardDraft drops the draft of an event.
func (s *Service) DiscardDraft(ctx context.Context, actor model.Actor, eventID uint64) error {
	if err := checkRole(actor, ActDecideEquipment); err != nil {
		return err
	}
	return s.drafts.Delete(ctx, eventID)
}

// CommitDraft submits the draft at version as one batch and drops it.
// Without an explicit key the batch is keyed by the draft's token, so a
// retried commit replays while a later draft on the same event does not.
func (s *Service) CommitDraft(ctx context.Context, actor model.Actor, eventID uint64, version int64, key string) (*model.BatchOutcome, error) {
	if err := checkRole(actor, ActDecideEquipment); err != nil {
		return nil, err
	}
	d, err := s.drafts.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &NotFoundError{Resource: "draft for event", Key: fmt.Sprint(eventID)}
	}
	if d.Version != version {
		return nil, invalid("version", "draft is at version %d, not %d", d.Version, version)
	}
	if key == "" {
		key = "draft-" + d.Token
	}
	out, err := s.SubmitBatch(ctx, actor, eventID, BatchInput{Decisions: d.Decisions, IdempotencyKey: key})
	if err != nil {
		return nil, err
	}
	s.dropDraft(ctx, eventID)
	return out, nil
}

func (s *Service) dropDraft(ctx context.Context, eventID uint64) {
	if err := s.drafts.Delete(ctx, eventID); err != nil {
		s.log.Warn().Err(err).Uint64("event_id", eventID).Msg("draft not discarded")
	}
}
