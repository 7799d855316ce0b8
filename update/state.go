package update

import (
	"github.com/signalsfoundry/meteor-showers/model"
)

// Event drives the update state machine.
type Event int

const (
	// EventCheckRequested starts an attempt (explicit request or due periodic check).
	EventCheckRequested Event = iota
	// EventFetchFailed reports a transport failure or an abandoned fetch.
	EventFetchFailed
	// EventPayloadInvalid reports a downloaded catalog that failed to parse,
	// failed validation or could not be installed.
	EventPayloadInvalid
	// EventVersionUnchanged reports a valid download matching the current version.
	EventVersionUnchanged
	// EventCatalogReplaced reports that the downloaded catalog is now active.
	EventCatalogReplaced
	// EventObserved acknowledges a terminal state.
	EventObserved
)

func (e Event) String() string {
	switch e {
	case EventCheckRequested:
		return "check_requested"
	case EventFetchFailed:
		return "fetch_failed"
	case EventPayloadInvalid:
		return "payload_invalid"
	case EventVersionUnchanged:
		return "version_unchanged"
	case EventCatalogReplaced:
		return "catalog_replaced"
	case EventObserved:
		return "observed"
	default:
		return "unknown"
	}
}

// Notification is a user-facing message produced by a state change.
type Notification struct {
	State   model.UpdateState
	Message string
}

var terminalFor = map[Event]model.UpdateState{
	EventFetchFailed:      model.UpdateDownloadError,
	EventPayloadInvalid:   model.UpdateOtherError,
	EventVersionUnchanged: model.UpdateCompleteNoUpdates,
	EventCatalogReplaced:  model.UpdateCompleteUpdates,
}

var messages = map[model.UpdateState]string{
	model.UpdateUpdating:          "Updating meteor showers catalog...",
	model.UpdateCompleteNoUpdates: "Meteor showers catalog is up to date.",
	model.UpdateCompleteUpdates:   "Meteor showers catalog updated.",
	model.UpdateDownloadError:     "Cannot download meteor showers catalog.",
	model.UpdateOtherError:        "Cannot update meteor showers catalog: downloaded data is invalid.",
}

func notify(s model.UpdateState) []Notification {
	return []Notification{{State: s, Message: messages[s]}}
}

// Transition returns the state following s on event e, plus the notifications
// to deliver. Events that do not apply in s leave it unchanged and notify
// nothing; in particular a check requested while Updating is a no-op, so only
// one attempt is ever in flight.
func Transition(s model.UpdateState, e Event) (model.UpdateState, []Notification) {
	switch e {
	case EventCheckRequested:
		if s == model.UpdateUpdating {
			return s, nil
		}
		return model.UpdateUpdating, notify(model.UpdateUpdating)

	case EventObserved:
		if s.Terminal() {
			return model.UpdateIdle, nil
		}
		return s, nil

	default:
		next, ok := terminalFor[e]
		if !ok || s != model.UpdateUpdating {
			return s, nil
		}
		return next, notify(next)
	}
}
