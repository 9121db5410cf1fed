package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"stagehand/internal/config"
)

const redisKeyPrefix = "job:"

// RedisRegistry persists jobs as JSON values keyed by job ID. Records carry no
// TTL; jobs live until deleted.
type RedisRegistry struct {
	client *redis.Client
}

// OpenRedis connects to the configured Redis instance and verifies it answers.
func OpenRedis(cfg *config.Config) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.RedisAddr,
		Password: cfg.Store.RedisPassword,
		DB:       cfg.Store.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Store.RedisAddr, err)
	}

	return &RedisRegistry{client: client}, nil
}

// Close releases the client connection pool.
func (r *RedisRegistry) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

// Put inserts or fully replaces a job record.
func (r *RedisRegistry) Put(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("job id is empty")
	}
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}

	data, err := json.Marshal(redisRecordFromJob(job))
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("put job: %w", err)
	}
	return nil
}

// Get fetches a job by identifier.
func (r *RedisRegistry) Get(ctx context.Context, id string) (*Job, error) {
	data, err := r.client.Get(ctx, redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFoundErr(id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return rec.toJob(), nil
}

// List scans all job keys and returns matching jobs ordered by creation time.
func (r *RedisRegistry) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	wanted := make(map[Status]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}

	var list []*Job
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("get job %s: %w", iter.Val(), err)
		}
		var rec redisRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal job %s: %w", iter.Val(), err)
		}
		job := rec.toJob()
		if len(wanted) > 0 {
			if _, ok := wanted[job.Status]; !ok {
				continue
			}
		}
		list = append(list, job)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

// Delete removes a job by identifier.
func (r *RedisRegistry) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := r.client.Del(ctx, redisKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	return removed > 0, nil
}

// redisRecord is the stored JSON shape. Kept separate from Job so wire field
// names stay stable if the in-memory struct evolves.
type redisRecord struct {
	ID         string            `json:"id"`
	Status     Status            `json:"status"`
	Progress   int               `json:"progress"`
	Timeline   []PhaseRecord     `json:"timeline,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func redisRecordFromJob(job *Job) redisRecord {
	return redisRecord{
		ID:         job.ID,
		Status:     job.Status,
		Progress:   job.Progress,
		Timeline:   job.Timeline,
		Attributes: job.Attributes,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
}

func (r redisRecord) toJob() *Job {
	return &Job{
		ID:         r.ID,
		Status:     r.Status,
		Progress:   r.Progress,
		Timeline:   r.Timeline,
		Attributes: r.Attributes,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}
