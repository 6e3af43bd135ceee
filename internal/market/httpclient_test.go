package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay_DoublesPerAttempt(t *testing.T) {
	assert.Equal(t, 600*time.Millisecond, backoffDelay(1))
	assert.Equal(t, 1200*time.Millisecond, backoffDelay(2))
	assert.Equal(t, 2400*time.Millisecond, backoffDelay(3))
}
