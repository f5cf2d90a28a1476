package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestFixedClock_DoesNotMoveOnItsOwn(t *testing.T) {
	clock := NewFixedClock(epoch)

	assert.Equal(t, epoch, clock.Now())
	assert.Equal(t, epoch, clock.Now())
}

func TestFixedClock_ConvertsToUTC(t *testing.T) {
	local := time.FixedZone("UTC+2", 2*60*60)
	clock := NewFixedClock(time.Date(2024, 3, 1, 12, 0, 0, 0, local))

	assert.Equal(t, epoch, clock.Now())
	assert.Equal(t, time.UTC, clock.Now().Location())
}

func TestFixedClock_SetAndAdvance(t *testing.T) {
	clock := NewFixedClock(epoch)

	clock.Advance(90 * time.Second)
	assert.Equal(t, epoch.Add(90*time.Second), clock.Now())

	later := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock.Set(later)
	assert.Equal(t, later, clock.Now())
}

func TestFixedClock_ThreadSafe(t *testing.T) {
	clock := NewFixedClock(epoch)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, epoch.Add(100*time.Second), clock.Now())
}
