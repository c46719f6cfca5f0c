package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyGuardClaimsOnce(t *testing.T) {
	mr, client := newTestClient(t)
	guard := NewDailyGuard(client, "reminders:sent", time.Hour)
	ctx := context.Background()

	ok, err := guard.Claim(ctx, "2030-01-08")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Claim(ctx, "2030-01-08")
	require.NoError(t, err)
	assert.False(t, ok, "second claim for the same day")

	ok, err = guard.Claim(ctx, "2030-01-09")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, time.Hour, mr.TTL("reminders:sent:2030-01-08"))
}

func TestDailyGuardRelease(t *testing.T) {
	_, client := newTestClient(t)
	guard := NewDailyGuard(client, "reminders:sent", 0)
	ctx := context.Background()

	ok, err := guard.Claim(ctx, "2030-01-08")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, guard.Release(ctx, "2030-01-08"))

	ok, err = guard.Claim(ctx, "2030-01-08")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDailyGuardRedisDown(t *testing.T) {
	mr, client := newTestClient(t)
	guard := NewDailyGuard(client, "reminders:sent", time.Hour)
	mr.Close()

	_, err := guard.Claim(context.Background(), "2030-01-08")
	assert.Error(t, err)
}
