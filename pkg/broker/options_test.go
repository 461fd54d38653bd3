package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptions_SetDefaults(t *testing.T) {
	t.Run("sets_default_values", func(t *testing.T) {
		opts := Options{}
		opts.SetDefaults()

		assert.Equal(t, 120*time.Second, opts.ConnectTimeout)
		assert.Equal(t, 2*time.Second, opts.ReconnectDelay)
		assert.Equal(t, 30*time.Second, opts.MaxReconnectDelay)
		assert.Equal(t, 2*time.Minute, opts.PingInterval)
		assert.Equal(t, 2, opts.MaxPingsOut)
		assert.Equal(t, 10*time.Second, opts.WriteTimeout)
		assert.NotNil(t, opts.Logger)
	})

	t.Run("preserves_custom_values", func(t *testing.T) {
		opts := Options{
			ConnectTimeout:       5 * time.Second,
			MaxReconnectAttempts: 3,
			ReconnectDelay:       100 * time.Millisecond,
			MaxReconnectDelay:    time.Second,
		}
		opts.SetDefaults()

		assert.Equal(t, 5*time.Second, opts.ConnectTimeout)
		assert.Equal(t, 3, opts.MaxReconnectAttempts)
		assert.Equal(t, 100*time.Millisecond, opts.ReconnectDelay)
		assert.Equal(t, time.Second, opts.MaxReconnectDelay)
	})
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.WaitForFirstConnect)
	assert.Equal(t, -1, opts.MaxReconnectAttempts)
	assert.True(t, opts.unlimited())
}

func TestOptions_Validate(t *testing.T) {
	opts := DefaultOptions()
	opts.SetDefaults()
	assert.NoError(t, opts.Validate())

	opts.MaxReconnectDelay = time.Second
	opts.ReconnectDelay = 2 * time.Second
	assert.Error(t, opts.Validate())

	opts = DefaultOptions()
	opts.ConnectTimeout = -time.Second
	assert.Error(t, opts.Validate())
}

func TestOptions_NextDelay(t *testing.T) {
	opts := Options{ReconnectDelay: time.Second, MaxReconnectDelay: 5 * time.Second}

	d := opts.ReconnectDelay
	var got []time.Duration
	for range 4 {
		d = opts.nextDelay(d)
		got = append(got, d)
	}
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}, got)
}
