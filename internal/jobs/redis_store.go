package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps job ids in a sorted set scored by fire time (unix ms) and the job
// bodies in a hash keyed by id.
type RedisStore struct {
	client  *redis.Client
	dueKey  string
	dataKey string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client:  client,
		dueKey:  prefix + ":due",
		dataKey: prefix + ":data",
	}
}

func (s *RedisStore) Put(ctx context.Context, job Job) error {
	if err := job.validate(); err != nil {
		return err
	}
	job.FireAt = job.FireAt.UTC()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.dataKey, job.ID, data)
		pipe.ZAdd(ctx, s.dueKey, redis.Z{Score: float64(job.FireAt.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("put job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.client.HGet(ctx, s.dataKey, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (s *RedisStore) Remove(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, s.dueKey, id)
		pipe.HDel(ctx, s.dataKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove job %s: %w", id, err)
	}
	return nil
}

var claimScript = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
local out = {}
for _, id in ipairs(ids) do
  redis.call("ZREM", KEYS[1], id)
  local data = redis.call("HGET", KEYS[2], id)
  redis.call("HDEL", KEYS[2], id)
  if data then
    table.insert(out, data)
  end
end
return out
`)

func (s *RedisStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	raw, err := claimScript.Run(ctx, s.client, []string{s.dueKey, s.dataKey}, now.UnixMilli(), limit).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}

	jobs := make([]Job, 0, len(raw))
	var decodeErrs []error
	for _, data := range raw {
		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			decodeErrs = append(decodeErrs, fmt.Errorf("%w: %v", ErrUndecodableJob, err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, errors.Join(decodeErrs...)
}
