package system

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Collect(t *testing.T) {
	c := NewCollector()

	snap := c.Collect(context.Background(), []string{t.TempDir()})

	hostname, _ := os.Hostname()
	assert.Equal(t, hostname, snap.Hostname)
	assert.Equal(t, runtime.GOOS, snap.OS)
	assert.Equal(t, runtime.GOARCH, snap.Arch)
	assert.Positive(t, snap.CPU.Cores)
	assert.Positive(t, snap.Memory.TotalBytes)
	assert.False(t, snap.CollectedAt.IsZero())

	require.Len(t, snap.Disks, 1)
	assert.Positive(t, snap.Disks[0].TotalBytes)
}

func TestCollector_SkipsUnresolvableRoots(t *testing.T) {
	c := NewCollector()

	snap := c.Collect(context.Background(), []string{
		filepath.Join(t.TempDir(), "missing"),
	})

	assert.Empty(t, snap.Disks)
}

func TestCollector_NetworkRatesNeedTwoSamples(t *testing.T) {
	c := NewCollector()

	first := c.Collect(context.Background(), nil)
	assert.Zero(t, first.Network.SendRateBps)
	assert.Zero(t, first.Network.RecvRateBps)

	time.Sleep(20 * time.Millisecond)

	second := c.Collect(context.Background(), nil)
	assert.GreaterOrEqual(t, second.Network.SendRateBps, 0.0)
	assert.GreaterOrEqual(t, second.Network.RecvRateBps, 0.0)
}

func TestRate(t *testing.T) {
	assert.Equal(t, 100.0, rate(1200, 1000, 2))
	assert.Zero(t, rate(500, 1000, 2), "counter reset reports zero, not a negative rate")
}
