package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingEvictsOldestAtCapacity(t *testing.T) {
	r := NewRing[int](3)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Push(4)

	assert.Equal(t, []int{2, 3, 4}, r.Snapshot())
	assert.Equal(t, 3, r.Len())
}

func TestRingFilter(t *testing.T) {
	r := NewRing[string](10)
	r.Push("a")
	r.Push("b")
	r.Push("a")

	assert.Len(t, r.Filter(func(s string) bool { return s == "a" }), 2)
}

func TestRingNonPositiveCapacityTreatedAsOne(t *testing.T) {
	r := NewRing[int](0)
	r.Push(1)
	r.Push(2)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, []int{2}, r.Snapshot())
}
