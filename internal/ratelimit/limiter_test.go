package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBurstThenDenied(t *testing.T) {
	l := NewLimiter(60, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d should be within burst", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestClientsAreIndependent(t *testing.T) {
	l := NewLimiter(60, 1)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestTokens(t *testing.T) {
	l := NewLimiter(60, 5)

	assert.InDelta(t, 5, l.Tokens("10.0.0.1"), 0.01)
	l.Allow("10.0.0.1")
	assert.Less(t, l.Tokens("10.0.0.1"), 5.0)
}
