package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to IncidentStatus
		want     bool
	}{
		{StatusOpen, StatusAcknowledged, true},
		{StatusOpen, StatusInProgress, true},
		{StatusOpen, StatusResolved, true},
		{StatusAcknowledged, StatusInProgress, true},
		{StatusAcknowledged, StatusResolved, true},
		{StatusAcknowledged, StatusOpen, false},
		{StatusInProgress, StatusResolved, true},
		{StatusInProgress, StatusOpen, false},
		{StatusResolved, StatusOpen, false},
		{StatusResolved, StatusAcknowledged, false},
		{StatusResolved, StatusResolved, true},
		{StatusOpen, StatusOpen, true},
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, CanTransition(c.from, c.to), "CanTransition(%s, %s)", c.from, c.to)
	}
}

func TestSeverityValid(t *testing.T) {
	valid := []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
	for _, s := range valid {
		assert.Truef(t, s.Valid(), "expected %s to be valid", s)
	}
	assert.False(t, Severity("catastrophic").Valid())
}
