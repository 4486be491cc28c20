package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DelayDoublesAndCaps(t *testing.T) {
	b := New(time.Second, 2, 8*time.Second)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, w := range want {
		delay, _ := b.Failure()
		assert.Equalf(t, w, delay, "after %d consecutive failures", i+1)
	}
}

func TestBackoff_SuccessResets(t *testing.T) {
	b := Default()
	b.Failure()
	b.Failure()
	b.Failure()
	assert.Equal(t, uint64(3), b.ConsecutiveFailures())

	b.Success()
	assert.Equal(t, uint64(0), b.ConsecutiveFailures())

	delay, _ := b.Failure()
	assert.Equal(t, time.Second, delay)
}

func TestBackoff_LogPoints(t *testing.T) {
	b := Default()
	wantLog := map[int]bool{1: true, 2: false, 3: true, 9: false, 10: true, 49: false, 50: true, 99: false, 100: true, 199: false, 200: true, 201: false}
	for i := 1; i <= 201; i++ {
		_, shouldLog := b.Failure()
		if want, ok := wantLog[i]; ok {
			assert.Equalf(t, want, shouldLog, "failure count %d", i)
		}
	}
}

func TestBackoff_DefaultPolicy(t *testing.T) {
	b := Default()
	for i := 0; i < 7; i++ {
		b.Failure()
	}
	// 1,2,4,8,16,32,64 -> capped at 64s on 7th failure
	delay, _ := b.Failure()
	assert.Equal(t, 64*time.Second, delay)
}
