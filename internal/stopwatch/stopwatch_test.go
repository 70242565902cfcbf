package stopwatch

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestWatch(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := &Watch{now: clock.now}

	assert.Equal(t, time.Duration(0), w.Elapsed())
	assert.False(t, w.Running())

	w.Start()
	clock.advance(3 * time.Second)
	assert.Equal(t, 3*time.Second, w.Elapsed())

	w.Stop()
	clock.advance(time.Hour)
	assert.Equal(t, 3*time.Second, w.Elapsed())
	assert.False(t, w.Running())

	w.Start()
	clock.advance(2 * time.Second)
	assert.Equal(t, 5*time.Second, w.Elapsed())
	assert.True(t, w.Running())

	// starting a running watch has no effect
	w.Start()
	assert.Equal(t, 5*time.Second, w.Elapsed())

	w.Reset()
	assert.Equal(t, time.Duration(0), w.Elapsed())
	assert.False(t, w.Running())
}

func TestNewStarted(t *testing.T) {
	w := New(true)
	assert.True(t, w.Running())
	assert.False(t, New(false).Running())
}

func TestMeasure(t *testing.T) {
	var got string
	done := Measure("[Test] partition", func(format string, args ...any) {
		got = fmt.Sprintf(format, args...)
	})
	done()
	require.NotEmpty(t, got)
	assert.Contains(t, got, "[Test] partition: ")
}
