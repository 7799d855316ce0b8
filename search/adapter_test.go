package search

import (
	"reflect"
	"testing"
	"time"

	"github.com/signalsfoundry/meteor-showers/catalog"
	"github.com/signalsfoundry/meteor-showers/core"
	"github.com/signalsfoundry/meteor-showers/model"
)

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	showers := []*model.Shower{
		{ID: "PER", Name: "Perseids", Radiant: model.Radiant{RA: 48, Dec: 58}, Speed: 59,
			Periods: []model.ActivityPeriod{{
				Year:  model.GenericYear,
				Start: model.MonthDay{Month: time.July, Day: 17}, Peak: model.MonthDay{Month: time.August, Day: 12},
				Finish: model.MonthDay{Month: time.August, Day: 24}, ZHR: 100,
			}}},
		{ID: "PEG", Name: "Pegasids", Radiant: model.Radiant{RA: 332, Dec: 15}},
		{ID: "PE", Name: "Pe", Radiant: model.Radiant{RA: 10, Dec: -10}},
		{ID: "ETA", Name: "eta Aquariids", Radiant: model.Radiant{RA: 338, Dec: -1}},
		{ID: "SDA", Name: "Southern delta Aquariids", Radiant: model.Radiant{RA: 340, Dec: -16}},
		{ID: "CAP", Name: "alpha Capricornids", Radiant: model.Radiant{RA: 307, Dec: -10}},
	}
	snap, err := catalog.NewSnapshot("t", showers)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	store := catalog.NewStore()
	store.Replace(snap)
	return NewAdapter(store)
}

func TestSearchAround(t *testing.T) {
	a := newAdapter(t)
	got := a.SearchAround(core.FromEquatorial(338, -3), 15)
	var ids []string
	for _, o := range got {
		ids = append(ids, o.ID())
	}
	// ETA is 2 deg away, SDA ~13.2 deg, PEG ~18.6 deg (outside).
	if !reflect.DeepEqual(ids, []string{"ETA", "SDA"}) {
		t.Fatalf("SearchAround = %v", ids)
	}
	if a.SearchAround(core.Vec3{}, 10) != nil {
		t.Fatalf("zero direction should match nothing")
	}
}

func TestSearchByNameAndID(t *testing.T) {
	a := newAdapter(t)
	if o, ok := a.SearchByName("PERSEIDS"); !ok || o.ID() != "PER" || o.Kind() != KindMeteorShower {
		t.Fatalf("SearchByName = %v, %v", o, ok)
	}
	if _, ok := a.SearchByName("Perse"); ok {
		t.Fatalf("partial name should not match")
	}
	if o, ok := a.SearchByID("eta"); !ok || o.DisplayName() != "eta Aquariids" {
		t.Fatalf("SearchByID = %v, %v", o, ok)
	}
	if _, ok := a.SearchByID("XXX"); ok {
		t.Fatalf("unknown id matched")
	}
}

func TestListMatchingPrefix(t *testing.T) {
	a := newAdapter(t)
	if got := a.ListMatchingPrefix("pe", 10); !reflect.DeepEqual(got, []string{"Pe", "Pegasids", "Perseids"}) {
		t.Fatalf("ListMatchingPrefix = %v", got)
	}
	if got := a.ListMatchingPrefix("pe", 2); !reflect.DeepEqual(got, []string{"Pe", "Pegasids"}) {
		t.Fatalf("capped ListMatchingPrefix = %v", got)
	}
	if got := a.ListMatchingPrefix("", 5); got != nil {
		t.Fatalf("empty prefix = %v", got)
	}
}

func TestListMatchingStartOfWords(t *testing.T) {
	a := newAdapter(t)
	if got := a.ListMatching("aqu", 0, false); len(got) != 0 {
		t.Fatalf("whole-name match = %v", got)
	}
	want := []string{"eta Aquariids", "Southern delta Aquariids"}
	if got := a.ListMatching("aqu", 0, true); !reflect.DeepEqual(got, want) {
		t.Fatalf("start-of-words match = %v, want %v", got, want)
	}
	// Whole-name matches come before word matches.
	if got := a.ListMatching("al", 0, true); !reflect.DeepEqual(got, []string{"alpha Capricornids"}) {
		t.Fatalf("got %v", got)
	}
}

func TestListAll(t *testing.T) {
	a := newAdapter(t)
	got := a.ListAll()
	want := []string{"Pe", "Pegasids", "Perseids", "Southern delta Aquariids", "alpha Capricornids", "eta Aquariids"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ListAll = %v", got)
	}
}

func TestShowerInfo(t *testing.T) {
	a := newAdapter(t)
	o, _ := a.SearchByID("PER")
	info := o.Info(time.Date(2025, 8, 12, 0, 0, 0, 0, time.UTC))
	if !info.Active || info.ZHR != 100 || info.PeakZHR != 100 || info.Peak == nil {
		t.Fatalf("info at peak = %+v", info)
	}
	info = o.Info(time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC))
	if info.Active || info.ZHR != 0 || info.Peak != nil {
		t.Fatalf("info off season = %+v", info)
	}
}
