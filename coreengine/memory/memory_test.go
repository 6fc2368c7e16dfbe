package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration, max int) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl, max), mr
}

// storeContract runs the behaviour shared by every backend.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	empty, err := s.History(ctx, "s1", 5)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := 1; i <= 4; i++ {
		require.NoError(t, s.Append(ctx, "s1", Exchange{Query: fmt.Sprintf("q%d", i), Summary: fmt.Sprintf("a%d", i)}))
	}
	require.NoError(t, s.Append(ctx, "s2", Exchange{Query: "other"}))

	recent, err := s.History(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "q3", recent[0].Query)
	assert.Equal(t, "q4", recent[1].Query)

	all, err := s.History(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3, "history is capped at maxEntries")
	assert.Equal(t, "q2", all[0].Query)

	require.NoError(t, s.Clear(ctx, "s1"))
	cleared, err := s.History(ctx, "s1", 5)
	require.NoError(t, err)
	assert.Empty(t, cleared)

	other, err := s.History(ctx, "s2", 5)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestCacheStore_Contract(t *testing.T) {
	storeContract(t, NewCacheStore(time.Minute, 3))
}

func TestRedisStore_Contract(t *testing.T) {
	s, _ := newRedisStore(t, time.Minute, 3)
	storeContract(t, s)
}

func TestRedisStore_TTL(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute, 10)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "s1", Exchange{Query: "q"}))

	assert.Equal(t, time.Minute, mr.TTL(key("s1")))
	mr.FastForward(2 * time.Minute)

	history, err := s.History(ctx, "s1", 5)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRedisStore_CorruptEntry(t *testing.T) {
	s, mr := newRedisStore(t, 0, 10)
	_, err := mr.Push(key("s1"), "{not json")
	require.NoError(t, err)

	_, err = s.History(context.Background(), "s1", 5)
	assert.ErrorContains(t, err, "decode memory")
}

func TestRedisStore_ServerDown(t *testing.T) {
	s, mr := newRedisStore(t, 0, 10)
	mr.Close()

	err := s.Append(context.Background(), "s1", Exchange{Query: "q"})
	assert.ErrorContains(t, err, "append memory")
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := DialRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	_ = client.Close()

	_, err = DialRedis(context.Background(), "://bad")
	assert.ErrorContains(t, err, "parse redis url")
}

func TestCacheStore_CancelledContext(t *testing.T) {
	s := NewCacheStore(time.Minute, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Append(ctx, "s1", Exchange{}), context.Canceled)
	_, err := s.History(ctx, "s1", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatContext(t *testing.T) {
	assert.Equal(t, "", FormatContext(nil))

	got := FormatContext([]Exchange{
		{Query: "What is TCP?", Summary: "A transport protocol."},
		{Query: "And UDP?"},
	})

	assert.Equal(t, "Previous question: What is TCP?\nPrevious answer: A transport protocol.\n\nPrevious question: And UDP?", got)
}

func TestContext(t *testing.T) {
	s := NewCacheStore(time.Minute, 10)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, "s1", Exchange{Query: "q1", Summary: "a1"}))

	text, err := Context(ctx, s, "s1", 0)

	require.NoError(t, err)
	assert.Equal(t, "Previous question: q1\nPrevious answer: a1", text)
}
