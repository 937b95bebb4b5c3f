// Package cache keeps instructor review projections in redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReviewCache stores review lists per assignment and review summaries per course set.
//
// Every entry key embeds the generation of the assignment or courses it covers.
// Invalidate bumps those generations, so a reader that resolved its key before a
// mutation can only write under a generation nobody reads anymore.
type ReviewCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewReviewCache builds a cache with the given entry lifetime.
func NewReviewCache(client *redis.Client, ttl time.Duration) *ReviewCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &ReviewCache{client: client, ttl: ttl, prefix: "review:"}
}

func (c *ReviewCache) assignmentGenKey(assignmentID uint) string {
	return fmt.Sprintf("%sassignment:%d:gen", c.prefix, assignmentID)
}

func (c *ReviewCache) courseGenKey(courseID uint) string {
	return fmt.Sprintf("%scourse:%d:gen", c.prefix, courseID)
}

// SubmissionsKey resolves the entry key for an assignment's review list at its current generation.
// Resolve it before reading the database and reuse it for the store.
func (c *ReviewCache) SubmissionsKey(ctx context.Context, assignmentID uint) (string, error) {
	gen, err := c.client.Get(ctx, c.assignmentGenKey(assignmentID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%sassignment:%d:submissions:g%d", c.prefix, assignmentID, gen), nil
}

// CourseSummaryKey resolves the entry key for a course-set summary. The key ignores
// the order of courseIDs and changes when any covered course is invalidated.
func (c *ReviewCache) CourseSummaryKey(ctx context.Context, courseIDs []uint) (string, error) {
	ids := append([]uint(nil), courseIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) == 0 {
		return c.prefix + "courses:", nil
	}

	genKeys := make([]string, 0, len(ids))
	for _, id := range ids {
		genKeys = append(genKeys, c.courseGenKey(id))
	}
	gens, err := c.client.MGet(ctx, genKeys...).Result()
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(ids))
	for i, id := range ids {
		gen := "0"
		if value, ok := gens[i].(string); ok {
			gen = value
		}
		parts = append(parts, strconv.FormatUint(uint64(id), 10)+"g"+gen)
	}
	return c.prefix + "courses:" + strings.Join(parts, ","), nil
}

// Load decodes the entry at key into dest. It reports false on a miss.
func (c *ReviewCache) Load(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// Store writes value at key for the configured lifetime.
func (c *ReviewCache) Store(ctx context.Context, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}

// Invalidate moves the course, and the assignment when non-zero, to a new generation.
// Entries written under older generations are never read again and expire with their TTL.
func (c *ReviewCache) Invalidate(ctx context.Context, courseID, assignmentID uint) error {
	pipe := c.client.TxPipeline()
	if courseID != 0 {
		pipe.Incr(ctx, c.courseGenKey(courseID))
	}
	if assignmentID != 0 {
		pipe.Incr(ctx, c.assignmentGenKey(assignmentID))
	}
	_, err := pipe.Exec(ctx)
	return err
}
