package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetBasics(t *testing.T) {
	s := New("b", "a")
	s.Add("c")

	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("z"))

	clone := s.Clone()
	s.Delete("a")
	assert.False(t, s.Has("a"))
	assert.True(t, clone.Has("a"), "clone must not share storage")
}

func TestSortedOrdered(t *testing.T) {
	s := New(3, 1, 2)
	assert.Equal(t, []int{1, 2, 3}, SortedOrdered(s))
	assert.Empty(t, SortedOrdered(New[int]()))
}
