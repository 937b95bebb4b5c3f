package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type summary struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

func newTestCache(t *testing.T) (*ReviewCache, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	return NewReviewCache(client, time.Minute), mini
}

func TestReviewCacheRoundTripsSubmissions(t *testing.T) {
	cache, mini := newTestCache(t)
	ctx := context.Background()

	key, err := cache.SubmissionsKey(ctx, 1)
	require.NoError(t, err)

	var missed []summary
	hit, err := cache.Load(ctx, key, &missed)
	require.NoError(t, err)
	require.False(t, hit)

	require.NoError(t, cache.Store(ctx, key, []summary{{Title: "a", Count: 2}}))

	var loaded []summary
	hit, err = cache.Load(ctx, key, &loaded)
	require.NoError(t, err)
	require.True(t, hit)
	require.Equal(t, []summary{{Title: "a", Count: 2}}, loaded)

	mini.FastForward(2 * time.Minute)
	hit, err = cache.Load(ctx, key, &loaded)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestReviewCacheSummaryKeyIgnoresOrder(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	first, err := cache.CourseSummaryKey(ctx, []uint{3, 1})
	require.NoError(t, err)
	second, err := cache.CourseSummaryKey(ctx, []uint{1, 3})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestReviewCacheInvalidateDropsCoveringSummaries(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	listKey, err := cache.SubmissionsKey(ctx, 10)
	require.NoError(t, err)
	bothKey, err := cache.CourseSummaryKey(ctx, []uint{1, 2})
	require.NoError(t, err)
	otherKey, err := cache.CourseSummaryKey(ctx, []uint{2})
	require.NoError(t, err)

	require.NoError(t, cache.Store(ctx, listKey, []summary{{Title: "list"}}))
	require.NoError(t, cache.Store(ctx, bothKey, []summary{{Title: "both"}}))
	require.NoError(t, cache.Store(ctx, otherKey, []summary{{Title: "other"}}))

	require.NoError(t, cache.Invalidate(ctx, 1, 10))

	var loaded []summary
	key, err := cache.SubmissionsKey(ctx, 10)
	require.NoError(t, err)
	hit, err := cache.Load(ctx, key, &loaded)
	require.NoError(t, err)
	require.False(t, hit)

	key, err = cache.CourseSummaryKey(ctx, []uint{1, 2})
	require.NoError(t, err)
	hit, err = cache.Load(ctx, key, &loaded)
	require.NoError(t, err)
	require.False(t, hit)

	key, err = cache.CourseSummaryKey(ctx, []uint{2})
	require.NoError(t, err)
	require.Equal(t, otherKey, key)
	hit, err = cache.Load(ctx, key, &loaded)
	require.NoError(t, err)
	require.True(t, hit, "summaries that do not cover the course survive")
}

func TestReviewCacheStoreAfterInvalidateStaysUnread(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	// A reader resolves its keys, then a mutation lands before it writes back.
	staleList, err := cache.SubmissionsKey(ctx, 7)
	require.NoError(t, err)
	staleSummary, err := cache.CourseSummaryKey(ctx, []uint{4})
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(ctx, 4, 7))

	require.NoError(t, cache.Store(ctx, staleList, []summary{{Title: "old"}}))
	require.NoError(t, cache.Store(ctx, staleSummary, []summary{{Title: "old"}}))

	var loaded []summary
	key, err := cache.SubmissionsKey(ctx, 7)
	require.NoError(t, err)
	require.NotEqual(t, staleList, key)
	hit, err := cache.Load(ctx, key, &loaded)
	require.NoError(t, err)
	require.False(t, hit)

	key, err = cache.CourseSummaryKey(ctx, []uint{4})
	require.NoError(t, err)
	require.NotEqual(t, staleSummary, key)
	hit, err = cache.Load(ctx, key, &loaded)
	require.NoError(t, err)
	require.False(t, hit)
}

func TestReviewCacheInvalidateCourseOnly(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	listKey, err := cache.SubmissionsKey(ctx, 3)
	require.NoError(t, err)
	summaryKey, err := cache.CourseSummaryKey(ctx, []uint{9})
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(ctx, 9, 0))

	key, err := cache.SubmissionsKey(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, listKey, key)

	key, err = cache.CourseSummaryKey(ctx, []uint{9})
	require.NoError(t, err)
	require.NotEqual(t, summaryKey, key)
}
