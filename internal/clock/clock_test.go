package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual_AdvanceRunsDueTimersInOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var fired []string

	m.AfterFunc(2*time.Second, func() { fired = append(fired, "second") })
	m.AfterFunc(time.Second, func() { fired = append(fired, "first") })
	m.AfterFunc(5*time.Second, func() { fired = append(fired, "later") })

	m.Advance(2 * time.Second)

	assert.Equal(t, []string{"first", "second"}, fired)
	assert.Equal(t, 1, m.Pending())
	assert.Equal(t, time.Unix(2, 0), m.Now())
}

func TestManual_StopAndReset(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	count := 0

	timer := m.AfterFunc(time.Second, func() { count++ })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	m.Advance(time.Second)
	assert.Equal(t, 0, count)

	timer.Reset(3 * time.Second)
	m.Advance(2 * time.Second)
	assert.Equal(t, 0, count)

	m.Advance(time.Second)
	assert.Equal(t, 1, count)
}

func TestManual_CallbackMaySchedule(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var fired []time.Duration

	m.AfterFunc(time.Second, func() {
		fired = append(fired, m.Now().Sub(time.Unix(0, 0)))
		m.AfterFunc(time.Second, func() {
			fired = append(fired, m.Now().Sub(time.Unix(0, 0)))
		})
	})

	m.Advance(5 * time.Second)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fired)
}

func TestManual_NextDelay(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	_, ok := m.NextDelay()
	assert.False(t, ok)

	m.AfterFunc(5*time.Second, func() {})
	m.Advance(time.Second)

	d, ok := m.NextDelay()
	assert.True(t, ok)
	assert.Equal(t, 4*time.Second, d)
}
