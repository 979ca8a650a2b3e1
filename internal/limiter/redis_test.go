package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeKey struct {
	count int64
	pttl  int64
}

// fakeScripter evaluates the take script in Go; unimplemented Scripter methods panic.
type fakeScripter struct {
	redis.Scripter
	keys     map[string]*fakeKey
	err      error
	lastKeys []string
}

func (f *fakeScripter) EvalSha(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.eval(ctx, keys, args...)
}

func (f *fakeScripter) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.eval(ctx, keys, args...)
}

func (f *fakeScripter) eval(ctx context.Context, keys []string, args ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	f.lastKeys = keys
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	max := int64(args[0].(int))
	window := args[1].(int64)
	if f.keys == nil {
		f.keys = map[string]*fakeKey{}
	}
	k, ok := f.keys[keys[0]]
	if !ok {
		k = &fakeKey{pttl: -1}
		f.keys[keys[0]] = k
	}
	allowed := int64(0)
	if k.count < max {
		k.count++
		allowed = 1
	}
	if k.pttl < 0 {
		k.pttl = window
	}
	cmd.SetVal([]interface{}{k.count, allowed, k.pttl})
	return cmd
}

func TestRedisStore_Take(t *testing.T) {
	f := &fakeScripter{}
	s := NewRedisStore(f, "rl:")
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		res, err := s.Take(ctx, "login:1.2.3.4", 2, 15*time.Minute)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		require.EqualValues(t, i, res.Count)
		require.Equal(t, 15*time.Minute, res.ResetIn)
	}
	res, err := s.Take(ctx, "login:1.2.3.4", 2, 15*time.Minute)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.EqualValues(t, 2, res.Count)
	require.Equal(t, []string{"rl:login:1.2.3.4"}, f.lastKeys)
}

func TestRedisStore_ErrorPropagates(t *testing.T) {
	f := &fakeScripter{err: errors.New("dial tcp: connection refused")}
	s := NewRedisStore(f, "")
	_, err := s.Take(context.Background(), "k", 1, time.Minute)
	require.Error(t, err)
}

func TestRedisStore_BehindLimiterFailsClosedForLogin(t *testing.T) {
	f := &fakeScripter{err: errors.New("i/o timeout")}
	l, err := New(NewRedisStore(f, ""), DefaultPolicies())
	require.NoError(t, err)

	d, err := l.Check(context.Background(), CategoryLogin, "ip")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, DefaultFailClosedRetry, d.RetryAfter)
}
