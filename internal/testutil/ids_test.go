package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceIDs(t *testing.T) {
	ids := NewSequenceIDs("req")

	assert.Equal(t, "req-1", ids.Next())
	assert.Equal(t, "req-2", ids.Next())
	assert.Equal(t, "req-3", ids.Next())
}

func TestSequenceIDs_DefaultPrefix(t *testing.T) {
	ids := NewSequenceIDs("")

	assert.Equal(t, "id-1", ids.Next())
}

func TestSequenceIDs_Independent(t *testing.T) {
	a := NewSequenceIDs("a")
	b := NewSequenceIDs("b")

	a.Next()
	a.Next()
	assert.Equal(t, "b-1", b.Next())
	assert.Equal(t, "a-3", a.Next())
}
