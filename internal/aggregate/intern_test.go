package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternerAssignsStableInsertionOrderIndices(t *testing.T) {
	n := NewInterner()

	assert.Equal(t, uint64(0), n.Intern("a"))
	assert.Equal(t, uint64(1), n.Intern("b"))
	assert.Equal(t, uint64(0), n.Intern("a")) // repeat returns the same index
	assert.Equal(t, uint64(2), n.Intern("c"))

	assert.Equal(t, []string{"a", "b", "c"}, n.Take())
}

func TestInternerEmpty(t *testing.T) {
	n := NewInterner()
	assert.Empty(t, n.Take())
}
