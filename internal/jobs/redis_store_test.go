package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*RedisStore, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "jobs"), rdb
}

func TestRedisStore_PutReplacesExisting(t *testing.T) {
	store, rdb := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Job{ID: "reminder_1", Kind: "reminder", FireAt: base}))
	require.NoError(t, store.Put(ctx, Job{ID: "reminder_1", Kind: "reminder", FireAt: base.Add(time.Hour)}))

	n, err := rdb.ZCard(ctx, "jobs:due").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	job, err := store.Get(ctx, "reminder_1")
	require.NoError(t, err)
	assert.True(t, job.FireAt.Equal(base.Add(time.Hour)))
}

func TestRedisStore_ClaimDueOnlyTakesDueJobsOnce(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	payload, _ := json.Marshal(map[string]string{"appointmentId": "a"})
	require.NoError(t, store.Put(ctx, Job{ID: "early", Kind: "reminder", FireAt: base, Payload: payload}))
	require.NoError(t, store.Put(ctx, Job{ID: "late", Kind: "reminder", FireAt: base.Add(time.Hour)}))

	claimed, err := store.ClaimDue(ctx, base.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "early", claimed[0].ID)
	assert.JSONEq(t, `{"appointmentId":"a"}`, string(claimed[0].Payload))

	again, err := store.ClaimDue(ctx, base.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	_, err = store.Get(ctx, "early")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = store.Get(ctx, "late")
	assert.NoError(t, err)
}

func TestRedisStore_ClaimDueRespectsLimit(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Put(ctx, Job{ID: id, Kind: "k", FireAt: base.Add(time.Duration(i) * time.Second)}))
	}

	claimed, err := store.ClaimDue(ctx, base.Add(time.Minute), 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, "a", claimed[0].ID)
	assert.Equal(t, "b", claimed[1].ID)
}

func TestRedisStore_Remove(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Job{ID: "x", Kind: "k", FireAt: base}))
	require.NoError(t, store.Remove(ctx, "x"))
	require.NoError(t, store.Remove(ctx, "missing"))

	claimed, err := store.ClaimDue(ctx, base.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestRedisStore_RejectsIncompleteJob(t *testing.T) {
	store, _ := newStore(t)

	err := store.Put(context.Background(), Job{ID: "x", Kind: "k"})
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestRedisStore_ClaimDueKeepsDecodableJobs(t *testing.T) {
	store, rdb := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Job{ID: "a", Kind: "k", FireAt: base}))
	require.NoError(t, rdb.HSet(ctx, "jobs:data", "broken", "{not json").Err())
	require.NoError(t, rdb.ZAdd(ctx, "jobs:due", redis.Z{Score: float64(base.UnixMilli()), Member: "broken"}).Err())
	require.NoError(t, store.Put(ctx, Job{ID: "b", Kind: "k", FireAt: base}))

	claimed, err := store.ClaimDue(ctx, base.Add(time.Minute), 10)
	assert.ErrorIs(t, err, ErrUndecodableJob)
	require.Len(t, claimed, 2)

	n, err := rdb.ZCard(ctx, "jobs:due").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}
