package draftstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
	"github.com/Lierre03/bcp-ems-sub000/internal/service"
)

func newStore(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, ttl), mr
}

func TestRedis_PutGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, mr := newStore(t, time.Hour)
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	got, err := s.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, got)

	d := model.DraftBatch{
		EventID: 5,
		Token:   "3f0c9a4e-7d1b-4c55-9e0a-2b6f8d1c4a77",
		Decisions: []model.LineDecision{
			{LineID: 11, Action: model.ActionApprove},
			{ItemName: "Speaker", Action: model.ActionReject, Reason: "Out of stock due to repair"},
		},
		UpdatedBy: 30,
		UpdatedAt: at,
	}
	saved, err := s.Put(ctx, d, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, saved.Version)
	assert.True(t, mr.Exists("draft:event:5"))
	assert.Equal(t, time.Hour, mr.TTL("draft:event:5"))

	got, err = s.Get(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 1, got.Version)
	assert.Equal(t, d.Decisions, got.Decisions)
	assert.Equal(t, uint64(30), got.UpdatedBy)
	assert.Equal(t, d.Token, got.Token)
	assert.True(t, at.Equal(got.UpdatedAt))
}

func TestRedis_VersionCheck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, _ := newStore(t, time.Hour)

	_, err := s.Put(ctx, model.DraftBatch{EventID: 1}, 0)
	require.NoError(t, err)
	_, err = s.Put(ctx, model.DraftBatch{EventID: 1}, 0)
	require.ErrorIs(t, err, service.ErrDraftVersion)
	_, err = s.Put(ctx, model.DraftBatch{EventID: 1}, 2)
	require.ErrorIs(t, err, service.ErrDraftVersion)

	d, err := s.Put(ctx, model.DraftBatch{EventID: 1}, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, d.Version)

	// A new event starts from zero regardless of others.
	_, err = s.Put(ctx, model.DraftBatch{EventID: 2}, 0)
	require.NoError(t, err)
}

func TestRedis_DeleteAndExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s, mr := newStore(t, time.Minute)

	_, err := s.Put(ctx, model.DraftBatch{EventID: 3}, 0)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, 3))
	got, err := s.Get(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, s.Delete(ctx, 3))

	_, err = s.Put(ctx, model.DraftBatch{EventID: 4}, 0)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	got, err = s.Get(ctx, 4)
	require.NoError(t, err)
	assert.Nil(t, got)
}
