package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"oncall-platform/internal/models"
)

func TestGetActiveOverrideEvictsExpired(t *testing.T) {
	s := NewOnCallStore(10, 10)
	past := time.Now().Add(-time.Hour)
	s.PutOverride(&models.Override{Team: "platform", Name: "Dan", ExpiresAt: past})

	expired := func(o *models.Override) bool { return o.Expired(time.Now()) }

	o, justExpired := s.GetActiveOverride("platform", expired)
	assert.Nil(t, o)
	assert.True(t, justExpired)

	// second read: already evicted, so no repeated justExpired signal
	_, justExpired = s.GetActiveOverride("platform", expired)
	assert.False(t, justExpired)
}

func TestActiveOverrideCountExcludesExpired(t *testing.T) {
	s := NewOnCallStore(10, 10)
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)
	s.PutOverride(&models.Override{Team: "platform", Name: "Dan", ExpiresAt: future})
	s.PutOverride(&models.Override{Team: "backend", Name: "Ella", ExpiresAt: past})

	expired := func(o *models.Override) bool { return o.Expired(time.Now()) }
	assert.Equal(t, 1, s.ActiveOverrideCount(expired))
}

func TestObserveLastPrimaryDetectsChange(t *testing.T) {
	s := NewOnCallStore(10, 10)
	assert.False(t, s.ObserveLastPrimary("platform", "alice@example.com"), "first observation should never report a change")
	assert.False(t, s.ObserveLastPrimary("platform", "alice@example.com"), "same primary should not report a change")
	assert.True(t, s.ObserveLastPrimary("platform", "bob@example.com"), "different primary should report a change")
}

func TestDeleteScheduleClearsOverridesAndRotationState(t *testing.T) {
	s := NewOnCallStore(10, 10)
	s.PutSchedule(&models.Schedule{Team: "platform"})
	s.PutOverride(&models.Override{Team: "platform", ExpiresAt: time.Now().Add(time.Hour)})
	s.ObserveLastPrimary("platform", "alice@example.com")

	s.DeleteSchedule("platform")

	_, ok := s.GetSchedule("platform")
	assert.False(t, ok, "schedule should be gone")

	o, _ := s.GetActiveOverride("platform", func(*models.Override) bool { return false })
	assert.Nil(t, o, "override should be gone")

	assert.False(t, s.ObserveLastPrimary("platform", "bob@example.com"), "rotation state should have been cleared, so this is a fresh observation")
}
