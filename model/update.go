package model

import "time"

// UpdateState tracks the catalog download/update lifecycle.
type UpdateState int

const (
	UpdateIdle              UpdateState = iota
	UpdateUpdating                      // fetch in flight
	UpdateCompleteNoUpdates             // fetched; version unchanged
	UpdateCompleteUpdates               // fetched; catalog replaced
	UpdateDownloadError                 // transport failure
	UpdateOtherError                    // payload rejected
)

// String returns a stable lower_snake name, used in logs and metric labels.
func (s UpdateState) String() string {
	switch s {
	case UpdateIdle:
		return "idle"
	case UpdateUpdating:
		return "updating"
	case UpdateCompleteNoUpdates:
		return "complete_no_updates"
	case UpdateCompleteUpdates:
		return "complete_updates"
	case UpdateDownloadError:
		return "download_error"
	case UpdateOtherError:
		return "other_error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends an update attempt.
func (s UpdateState) Terminal() bool {
	switch s {
	case UpdateCompleteNoUpdates, UpdateCompleteUpdates, UpdateDownloadError, UpdateOtherError:
		return true
	}
	return false
}

// UpdateStatus is the observable summary of the updater.
type UpdateStatus struct {
	State          UpdateState
	LastResult     UpdateState // last terminal state, UpdateIdle if none yet
	LastAttemptID  string
	LastUpdate     time.Time
	CatalogVersion string
	Enabled        bool
	Frequency      time.Duration
}
