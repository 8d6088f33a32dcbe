package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockReadyAfterFirstRefresh(t *testing.T) {
	c := NewClock()
	require.False(t, c.Ready())
	require.Zero(t, c.Now())

	c.Refresh()
	require.True(t, c.Ready())
}

func TestClockCachesBetweenRefreshes(t *testing.T) {
	c := NewClock()
	first := c.Refresh()

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, first, c.Now(), "Now reads the cached value until the next Refresh")

	second := c.Refresh()
	require.GreaterOrEqual(t, second, first+25)
	require.Equal(t, second, c.Now())
}
