package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_StepsOnEveryReading(t *testing.T) {
	clock := NewFakeClock(ChainStart, time.Millisecond)

	assert.Equal(t, ChainStart, clock.Now())
	assert.Equal(t, ChainStart.Add(time.Millisecond), clock.Now())
	assert.Equal(t, ChainStart.Add(2*time.Millisecond), clock.Peek())
}

func TestFakeClock_Advance(t *testing.T) {
	clock := NewFakeClock(ChainStart, 0)
	clock.Advance(time.Second)
	assert.Equal(t, ChainStart.Add(time.Second), clock.Now())
	assert.Equal(t, ChainStart.Add(time.Second), clock.Now(), "zero step never advances")
}

func TestFakeClock_ThreadSafe(t *testing.T) {
	clock := NewFakeClock(ChainStart, time.Microsecond)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				clock.Now()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, ChainStart.Add(1000*time.Microsecond), clock.Peek())
}
