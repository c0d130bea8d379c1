package nntppool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nzbcore/nzbcore/internal/model"
)

func testPool() *Pool {
	return New([]model.ServerConfig{
		{ID: 1, Active: true, Level: 0, Group: "A", MaxConnection: 1},
		{ID: 2, Active: true, Level: 0, Group: "B", MaxConnection: 1},
		{ID: 3, Active: true, Level: 1, MaxConnection: 2},
	}, nil)
}

func TestAcquirePrefersLowestLevel(t *testing.T) {
	p := testPool()
	conn, ok := p.Acquire(1, nil)
	require.True(t, ok)
	require.Equal(t, 1, conn.ServerID)
}

func TestAcquireHonoursExcludedGroup(t *testing.T) {
	p := testPool()
	conn, ok := p.Acquire(0, map[string]bool{"A": true})
	require.True(t, ok)
	require.Equal(t, 2, conn.ServerID)
}

func TestAcquireNonBlockingWhenFull(t *testing.T) {
	p := testPool()
	c1, ok := p.Acquire(0, nil)
	require.True(t, ok)
	require.Equal(t, 1, c1.ServerID)

	c2, ok := p.Acquire(0, nil)
	require.True(t, ok)
	require.Equal(t, 2, c2.ServerID)

	_, ok = p.Acquire(0, nil)
	require.False(t, ok, "level 0 is saturated and level 1 is not eligible at requested level 0")
}

func TestAcquireEscalatesToNextLevel(t *testing.T) {
	p := testPool()
	p.Acquire(0, nil)
	p.Acquire(0, nil)

	conn, ok := p.Acquire(1, nil)
	require.True(t, ok)
	require.Equal(t, 3, conn.ServerID)
}

func TestReleaseReturnsConnectionToIdlePool(t *testing.T) {
	p := testPool()
	conn, _ := p.Acquire(0, map[string]bool{"B": true})
	p.Release(conn, model.OutcomeOK)

	total, byServer := p.ConnectionCount()
	require.Equal(t, 0, total)
	require.Equal(t, 0, byServer[1])

	// Reacquiring should reuse the idle connection object rather than
	// minting a new one.
	reacquired, ok := p.Acquire(0, map[string]bool{"B": true})
	require.True(t, ok)
	require.Same(t, conn, reacquired)
}

func TestReleaseBlocksServerAfterTransientFailureBurst(t *testing.T) {
	p := testPool()
	for i := 0; i < blockBurstThreshold; i++ {
		conn, ok := p.Acquire(0, map[string]bool{"B": true})
		require.True(t, ok, "a transient error alone must not remove a server from rotation")
		p.Release(conn, model.OutcomeTransientError)
	}

	_, ok := p.Acquire(0, map[string]bool{"B": true})
	require.False(t, ok, "server 1 should be blocked after a burst of transient failures")
}

func TestReleaseBlocksServerImmediatelyOnAuthFailure(t *testing.T) {
	p := testPool()
	conn, ok := p.Acquire(0, map[string]bool{"B": true})
	require.True(t, ok)
	p.Release(conn, model.OutcomeAuthOrFatal)

	_, ok = p.Acquire(0, map[string]bool{"B": true})
	require.False(t, ok, "a single auth/fatal error blocks the server immediately per spec")
}

func TestSetActiveExcludesServerImmediately(t *testing.T) {
	p := testPool()
	p.SetActive(1, false)
	p.SetActive(2, false)

	_, ok := p.Acquire(0, nil)
	require.False(t, ok)
}

func TestTotalCapacityOnlyCountsActiveServers(t *testing.T) {
	p := testPool()
	require.Equal(t, 4, p.TotalCapacity())
	p.SetActive(3, false)
	require.Equal(t, 2, p.TotalCapacity())
}
