package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelay(t *testing.T) {
	base := 30 * time.Minute
	freq := 2 * time.Hour

	assert.Equal(t, 30*time.Minute, NextDelay(base, 1, freq))
	assert.Equal(t, time.Hour, NextDelay(base, 2, freq))
	assert.Equal(t, freq, NextDelay(base, 3, freq)) // 2h would equal the cap
	assert.Equal(t, freq, NextDelay(base, 10, freq))
}
