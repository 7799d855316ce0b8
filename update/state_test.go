package update

import (
	"testing"

	"github.com/signalsfoundry/meteor-showers/model"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name      string
		from      model.UpdateState
		event     Event
		want      model.UpdateState
		wantNotes int
	}{
		{"idle check", model.UpdateIdle, EventCheckRequested, model.UpdateUpdating, 1},
		{"check while updating is a no-op", model.UpdateUpdating, EventCheckRequested, model.UpdateUpdating, 0},
		{"fetch failed", model.UpdateUpdating, EventFetchFailed, model.UpdateDownloadError, 1},
		{"payload invalid", model.UpdateUpdating, EventPayloadInvalid, model.UpdateOtherError, 1},
		{"version unchanged", model.UpdateUpdating, EventVersionUnchanged, model.UpdateCompleteNoUpdates, 1},
		{"catalog replaced", model.UpdateUpdating, EventCatalogReplaced, model.UpdateCompleteUpdates, 1},
		{"observed terminal", model.UpdateCompleteUpdates, EventObserved, model.UpdateIdle, 0},
		{"observed download error", model.UpdateDownloadError, EventObserved, model.UpdateIdle, 0},
		{"observed while updating", model.UpdateUpdating, EventObserved, model.UpdateUpdating, 0},
		{"result outside an attempt", model.UpdateIdle, EventCatalogReplaced, model.UpdateIdle, 0},
		{"check from terminal", model.UpdateOtherError, EventCheckRequested, model.UpdateUpdating, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, notes := Transition(tt.from, tt.event)
			if got != tt.want {
				t.Fatalf("Transition(%v, %v) = %v, want %v", tt.from, tt.event, got, tt.want)
			}
			if len(notes) != tt.wantNotes {
				t.Fatalf("got %d notifications, want %d", len(notes), tt.wantNotes)
			}
			for _, n := range notes {
				if n.State != got || n.Message == "" {
					t.Fatalf("unexpected notification %+v", n)
				}
			}
		})
	}
}
