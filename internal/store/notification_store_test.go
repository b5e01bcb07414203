package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"oncall-platform/internal/models"
)

func TestNotificationStorePutEvictsOldestAtCapacity(t *testing.T) {
	s := NewNotificationStore(2)
	s.Put(models.Notification{ID: "1"})
	s.Put(models.Notification{ID: "2"})
	s.Put(models.Notification{ID: "3"})

	_, ok := s.Get("1")
	assert.False(t, ok, "expected oldest entry to be evicted")

	_, ok = s.Get("3")
	assert.True(t, ok, "expected newest entry to be present")

	assert.Len(t, s.List(), 2)
}

func TestNotificationStoreListPreservesInsertionOrder(t *testing.T) {
	s := NewNotificationStore(10)
	s.Put(models.Notification{ID: "a"})
	s.Put(models.Notification{ID: "b"})
	s.Put(models.Notification{ID: "c"})

	got := s.List()
	want := []string{"a", "b", "c"}
	assert.Len(t, got, len(want))
	for i, n := range got {
		assert.Equal(t, want[i], n.ID)
	}
}

func TestNotificationStoreGetMissingReturnsFalse(t *testing.T) {
	s := NewNotificationStore(5)
	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestNewNotificationStoreNonPositiveCapacityTreatedAsOne(t *testing.T) {
	s := NewNotificationStore(0)
	s.Put(models.Notification{ID: "1"})
	s.Put(models.Notification{ID: "2"})
	got := s.List()
	assert.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
}
