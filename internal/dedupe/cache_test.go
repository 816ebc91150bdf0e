// ABOUTME: Tests for the rotating-generation seen-set.
// ABOUTME: Covers duplicate detection, window expiry, and the size bound.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckAndMark_NewKeyThenDuplicate(t *testing.T) {
	c := New(time.Minute, 100)

	assert.False(t, c.CheckAndMark("msg-42"), "first sighting is not a duplicate")
	assert.True(t, c.CheckAndMark("msg-42"), "second sighting is a duplicate")
}

func TestCheckAndMark_DistinctKeys(t *testing.T) {
	c := New(time.Minute, 100)

	assert.False(t, c.CheckAndMark("msg-1"))
	assert.False(t, c.CheckAndMark("msg-2"))
	assert.Equal(t, 2, c.Len())
}

func TestKeySurvivesOneRotation(t *testing.T) {
	c := New(time.Minute, 100)
	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.CheckAndMark("msg-1")

	// One window later the key moves to the previous generation but is
	// still a known duplicate.
	clock = clock.Add(61 * time.Second)
	assert.True(t, c.CheckAndMark("msg-1"))
}

func TestKeyExpiresAfterTwoRotations(t *testing.T) {
	c := New(time.Minute, 100)
	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.CheckAndMark("msg-1")

	clock = clock.Add(61 * time.Second)
	c.CheckAndMark("other") // trigger first rotation

	clock = clock.Add(61 * time.Second)
	assert.False(t, c.CheckAndMark("msg-1"), "key older than two windows is forgotten")
}

func TestSizeBoundForcesRotation(t *testing.T) {
	c := New(time.Hour, 10)

	for i := 0; i < 25; i++ {
		c.CheckAndMark(fmt.Sprintf("msg-%d", i))
	}

	assert.LessOrEqual(t, c.Len(), 20, "cache never holds more than two generations")
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Minute, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.CheckAndMark(fmt.Sprintf("msg-%d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 800, c.Len())
}
