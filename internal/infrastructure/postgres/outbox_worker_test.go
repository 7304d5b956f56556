package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	none := func(int64) int64 { return 0 }
	most := func(n int64) int64 { return n - 1 }

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{attempt: -1, base: 5 * time.Second},
		{attempt: 0, base: 5 * time.Second},
		{attempt: 1, base: 10 * time.Second},
		{attempt: 4, base: 80 * time.Second},
		{attempt: 9, base: 2560 * time.Second},
		{attempt: 11, base: 30 * time.Minute},
		{attempt: 40, base: 30 * time.Minute},
	}
	for _, tt := range tests {
		base := tt.base
		if base > maxRetry {
			base = maxRetry
		}
		assert.Equal(t, base-base/10, retryDelay(tt.attempt, none), "attempt %d low", tt.attempt)
		assert.Equal(t, base+base/10-1, retryDelay(tt.attempt, most), "attempt %d high", tt.attempt)
	}
}
