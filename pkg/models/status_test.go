package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntryStatus_String(t *testing.T) {
	tests := []struct {
		status EntryStatus
		want   string
	}{
		{EntryStatusUnset, "unset"},
		{EntryStatusSuccess, "success"},
		{EntryStatusFailure, "failure"},
		{EntryStatusSkipped, "skipped"},
		{EntryStatusLocked, "locked"},
		{EntryStatusNotFound, "not_found"},
		{EntryStatusDBError, "db_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestEntryStatus_IsValid(t *testing.T) {
	tests := []struct {
		status EntryStatus
		want   bool
	}{
		{EntryStatusSuccess, true},
		{EntryStatusFailure, true},
		{EntryStatusSkipped, true},
		{EntryStatusLocked, true},
		{EntryStatusUnset, false},
		{EntryStatusNotFound, false},
		{EntryStatusDBError, false},
		{EntryStatus("arbitrary"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsValid(), "EntryStatus(%q).IsValid()", string(tt.status))
	}
}

func TestEntryStatus_IsTerminal(t *testing.T) {
	assert.True(t, EntryStatusSuccess.IsTerminal())
	assert.True(t, EntryStatusSkipped.IsTerminal())
	assert.False(t, EntryStatusFailure.IsTerminal())
	assert.False(t, EntryStatusLocked.IsTerminal())
}
