package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityPoolRotatesEveryN(t *testing.T) {
	pool := newIdentityPool([]string{"ua-a", "ua-b", "ua-c"}, 2)

	var got []string
	for i := 0; i < 6; i++ {
		got = append(got, pool.Next())
	}
	assert.Equal(t, []string{"ua-a", "ua-a", "ua-b", "ua-b", "ua-c", "ua-c"}, got)

	// Wraps back to the first identity.
	assert.Equal(t, "ua-a", pool.Next())
}

func TestIdentityPoolEmpty(t *testing.T) {
	pool := newIdentityPool(nil, 5)
	assert.Equal(t, "", pool.Next())
}

func TestJitteredDelayStaysInRange(t *testing.T) {
	d := jitteredDelay{min: 10 * time.Millisecond, max: 50 * time.Millisecond}
	for i := 0; i < 100; i++ {
		got := d.next()
		require.GreaterOrEqual(t, got, 10*time.Millisecond)
		require.Less(t, got, 50*time.Millisecond)
	}
}

func TestPauseHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	pause(ctx, 5*time.Second)
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
}

func TestDomainBlockerThreshold(t *testing.T) {
	blocker := newDomainBlocker(2)
	require.False(t, blocker.IsBlocked("example.org"))
	require.False(t, blocker.MarkForbidden("example.org"))
	require.True(t, blocker.MarkForbidden("example.org"))
	require.True(t, blocker.IsBlocked("EXAMPLE.ORG"), "host comparison should be case-insensitive")
}
