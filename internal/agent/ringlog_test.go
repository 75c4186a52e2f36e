package agent

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingLogDropsOldest(t *testing.T) {
	r := NewRingLog(3)
	for i := 1; i <= 5; i++ {
		r.Appendf("entry %d", i)
	}
	entries := r.Entries()
	assert.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("entry %d", i+3), e.Message)
	}
	assert.Equal(t, 3, r.Len())
}

func TestRingLogPartialFill(t *testing.T) {
	r := NewRingLog(10)
	r.Appendf("only one")
	entries := r.Entries()
	assert.Len(t, entries, 1)
	assert.Equal(t, "only one", entries[0].Message)
}

func TestRingLogZeroCapacity(t *testing.T) {
	r := NewRingLog(0)
	r.Appendf("a")
	r.Appendf("b")
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "b", r.Entries()[0].Message)
}
