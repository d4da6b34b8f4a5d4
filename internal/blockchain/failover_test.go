package blockchain

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFailoverClient(t *testing.T) {
	t.Run("requires at least one URL", func(t *testing.T) {
		_, err := NewFailoverClient(nil, nil)
		assert.Error(t, err)
	})

	t.Run("rejects empty URL", func(t *testing.T) {
		_, err := NewFailoverClient([]string{"https://rpc1.example.com", ""}, nil)
		assert.Error(t, err)
	})

	t.Run("all endpoints start healthy", func(t *testing.T) {
		fc, err := NewFailoverClient([]string{"https://rpc1.example.com", "https://rpc2.example.com"}, nil)
		require.NoError(t, err)

		assert.Equal(t, map[string]bool{
			"https://rpc1.example.com": true,
			"https://rpc2.example.com": true,
		}, fc.EndpointsHealth())
		assert.Equal(t, "https://rpc1.example.com", fc.GetEndpoint())
	})
}

func TestFailoverSwitchesEndpoint(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fc, err := NewFailoverClient([]string{"https://rpc1.example.com", "https://rpc2.example.com"}, clock)
	require.NoError(t, err)

	fc.MarkUnhealthy("https://rpc1.example.com", errors.New("connection refused"))
	assert.Equal(t, "https://rpc2.example.com", fc.GetEndpoint())

	// Sticks with the healthy endpoint
	assert.Equal(t, "https://rpc2.example.com", fc.GetEndpoint())
}

func TestFailoverCooldown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fc, err := NewFailoverClient([]string{"https://rpc1.example.com", "https://rpc2.example.com"}, clock)
	require.NoError(t, err)

	fc.MarkUnhealthy("https://rpc1.example.com", errors.New("timeout"))
	clock.Advance(time.Minute)
	fc.MarkUnhealthy("https://rpc2.example.com", errors.New("timeout"))

	// Both down: least recently failed endpoint is still attempted
	assert.Equal(t, "https://rpc1.example.com", fc.GetEndpoint())
	assert.Equal(t, map[string]bool{
		"https://rpc1.example.com": false,
		"https://rpc2.example.com": false,
	}, fc.EndpointsHealth())

	clock.Advance(unhealthyDuration)
	assert.Equal(t, "https://rpc1.example.com", fc.GetEndpoint())
	assert.True(t, fc.EndpointsHealth()["https://rpc1.example.com"])
}

func TestFailoverSingleEndpointAlwaysAttempted(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fc, err := NewFailoverClient([]string{"https://rpc.example.com"}, clock)
	require.NoError(t, err)

	for range 3 {
		fc.MarkUnhealthy("https://rpc.example.com", errors.New("connection refused"))
		clock.Advance(10 * time.Second)
		assert.Equal(t, "https://rpc.example.com", fc.GetEndpoint())
	}

	fc.MarkHealthy("https://rpc.example.com")
	assert.True(t, fc.EndpointsHealth()["https://rpc.example.com"])
}

func TestFailoverIgnoresUnknownURL(t *testing.T) {
	fc, err := NewFailoverClient([]string{"https://rpc.example.com"}, nil)
	require.NoError(t, err)

	fc.MarkUnhealthy("https://other.example.com", errors.New("boom"))
	fc.MarkHealthy("https://other.example.com")

	assert.Equal(t, map[string]bool{"https://rpc.example.com": true}, fc.EndpointsHealth())
	assert.Equal(t, []string{"https://rpc.example.com"}, fc.URLs())
}
