package clock_test

import (
	"testing"
	"time"

	"github.com/stemsi/exstem-proctor/internal/clock"
	"github.com/stretchr/testify/assert"
)

func drain(c <-chan time.Time) int {
	n := 0
	for {
		select {
		case <-c:
			n++
		default:
			return n
		}
	}
}

func TestFake_AdvanceFiresEachPeriod(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	f := clock.NewFake(start)
	tick := f.NewTicker(500 * time.Millisecond)

	f.Advance(400 * time.Millisecond)
	assert.Equal(t, 0, drain(tick.C()))

	f.Advance(1100 * time.Millisecond)
	assert.Equal(t, 3, drain(tick.C()))
	assert.Equal(t, start.Add(1500*time.Millisecond), f.Now())
}

func TestFake_StopRemovesTicker(t *testing.T) {
	f := clock.NewFake(time.Unix(0, 0))
	a := f.NewTicker(time.Second)
	b := f.NewTicker(time.Second)
	assert.Equal(t, 2, f.Tickers())

	a.Stop()
	a.Stop()
	assert.Equal(t, 1, f.Tickers())

	f.Advance(2 * time.Second)
	assert.Equal(t, 0, drain(a.C()))
	assert.Equal(t, 2, drain(b.C()))
}
