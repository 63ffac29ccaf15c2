package models

// EntryStatus represents the processing status of a video in the database
type EntryStatus string

const (
	EntryStatusUnset    EntryStatus = ""          // Zero value = unset/unknown
	EntryStatusSuccess  EntryStatus = "success"   // All streams dispatched
	EntryStatusFailure  EntryStatus = "failure"   // Resolution or muxing failed
	EntryStatusSkipped  EntryStatus = "skipped"   // Already present in the archive file
	EntryStatusLocked   EntryStatus = "locked"    // Passcode required and none worked
	EntryStatusNotFound EntryStatus = "not_found" // Entry not in database
	EntryStatusDBError  EntryStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s EntryStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s EntryStatus) IsValid() bool {
	switch s {
	case EntryStatusSuccess, EntryStatusFailure, EntryStatusSkipped, EntryStatusLocked:
		return true
	}
	return false
}

// IsTerminal reports whether a video with this status needs no further attempts.
func (s EntryStatus) IsTerminal() bool {
	return s == EntryStatusSuccess || s == EntryStatusSkipped
}
