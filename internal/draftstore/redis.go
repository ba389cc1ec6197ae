// Package draftstore keeps server-side draft decision batches in Redis so
// every staff session editing the same event sees one authoritative copy.
package draftstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/service"
)

type draftDoc struct {
	EventID   uint64        `json:"event_id"`
	Version   int64         `json:"version"`
	Token     string        `json:"token"`
	Decisions []decisionDoc `json:"decisions"`
	UpdatedBy uint64        `json:"updated_by"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type decisionDoc struct {
	LineID   uint64 `json:"line_id,omitempty"`
	ItemName string `json:"item,omitempty"`
	Action   string `json:"action"`
	Quantity int    `json:"quantity,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Redis implements service.DraftStore.  Each draft is one JSON value
// under draft:event:<id>; writes are compare-and-set on the version via
// WATCH/MULTI.
type Redis struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis returns a draft store whose entries expire after ttl.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl, prefix: "draft:event:"}
}

var _ service.DraftStore = (*Redis)(nil)

func (r *Redis) key(eventID uint64) string {
	return fmt.Sprintf("%s%d", r.prefix, eventID)
}

func decode(raw []byte) (*model.DraftBatch, error) {
	var doc draftDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	d := &model.DraftBatch{
		EventID:   doc.EventID,
		Version:   doc.Version,
		Token:     doc.Token,
		UpdatedBy: doc.UpdatedBy,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, x := range doc.Decisions {
		d.Decisions = append(d.Decisions, model.LineDecision{
			LineID: x.LineID, ItemName: x.ItemName, Action: model.LineAction(x.Action),
			Quantity: x.Quantity, Reason: x.Reason,
		})
	}
	return d, nil
}

func encode(d model.DraftBatch) ([]byte, error) {
	doc := draftDoc{
		EventID:   d.EventID,
		Version:   d.Version,
		Token:     d.Token,
		Decisions: make([]decisionDoc, 0, len(d.Decisions)),
		UpdatedBy: d.UpdatedBy,
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, x := range d.Decisions {
		doc.Decisions = append(doc.Decisions, decisionDoc{
			LineID: x.LineID, ItemName: x.ItemName, Action: string(x.Action),
			Quantity: x.Quantity, Reason: x.Reason,
		})
	}
	return json.Marshal(doc)
}

func (r *Redis) Get(ctx context.Context, eventID uint64) (*model.DraftBatch, error) {
	raw, err := r.rdb.Get(ctx, r.key(eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func (r *Redis) Put(ctx context.Context, d model.DraftBatch, expected int64) (*model.DraftBatch, error) {
	key := r.key(d.EventID)
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		var version int64
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			cur, err := decode(raw)
			if err != nil {
				return err
			}
			version = cur.Version
		}
		if version != expected {
			return service.ErrDraftVersion
		}
		d.Version = expected + 1
		payload, err := encode(d)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, service.ErrDraftVersion
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Redis) Delete(ctx context.Context, eventID uint64) error {
	return r.rdb.Del(ctx, r.key(eventID)).Err()
}
