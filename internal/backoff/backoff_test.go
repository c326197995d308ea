package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDoublesUpToCap(t *testing.T) {
	p := New(250*time.Millisecond, 8*time.Second)

	assert.Equal(t, 250*time.Millisecond, p.Next(0))
	assert.Equal(t, 500*time.Millisecond, p.Next(1))
	assert.Equal(t, 1*time.Second, p.Next(2))
	assert.Equal(t, 2*time.Second, p.Next(3))
	assert.Equal(t, 4*time.Second, p.Next(4))
	assert.Equal(t, 8*time.Second, p.Next(5))
	assert.Equal(t, 8*time.Second, p.Next(6))
	assert.Equal(t, 8*time.Second, p.Next(20))
}
