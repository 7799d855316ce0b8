package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/signalsfoundry/meteor-showers/model"
)

const sampleCatalog = `{
  "version": "2.0.1",
  "showers": {
    "PER": {
      "name": "Perseids", "speed": 59, "ra": 48.0, "dec": 58.0,
      "activity": [
        {"year": "generic", "start": "07.17", "finish": "08.24", "peak": "08.12", "zhr": 100, "variable": "broad"},
        {"year": "2026", "start": "07.20", "finish": "08.20", "peak": "08.13", "zhr": 120, "variable": "steep"}
      ]
    },
    "QUA": {
      "name": "Quadrantids", "speed": 41, "ra": 230.0, "dec": 49.0,
      "activity": [
        {"start": "12.28", "finish": "01.12", "peak": "01.04", "zhr": 110, "variable": "10-80"}
      ]
    },
    "INERT": {"name": "Inert", "speed": 10, "ra": 1.5, "dec": -3.0}
  }
}`

func TestParseValidCatalog(t *testing.T) {
	snap, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if snap.Version() != "2.0.1" || snap.Len() != 3 {
		t.Fatalf("snapshot = %v", snap)
	}
	ids := []string{}
	for _, s := range snap.Showers() {
		ids = append(ids, s.ID)
	}
	if !reflect.DeepEqual(ids, []string{"INERT", "PER", "QUA"}) {
		t.Fatalf("showers not ordered by id: %v", ids)
	}

	qua := snap.Get("QUA")
	if qua == nil || len(qua.Periods) != 1 {
		t.Fatalf("QUA = %+v", qua)
	}
	if qua.Periods[0].Year != model.GenericYear {
		t.Fatalf("missing year should normalise to generic, got %q", qua.Periods[0].Year)
	}
	if qua.Periods[0].Variable != model.ShapeBroad {
		t.Fatalf("unknown variable should fall back to broad, got %v", qua.Periods[0].Variable)
	}
	if inert := snap.Get("INERT"); inert == nil || len(inert.Periods) != 0 {
		t.Fatalf("INERT = %+v", inert)
	}
}

func TestRoundTrip(t *testing.T) {
	snap, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	data, err := Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	again, err := Parse(data)
	if err != nil {
		t.Fatalf("re-Parse error: %v\n%s", err, data)
	}
	if again.Version() != snap.Version() {
		t.Fatalf("version %q != %q", again.Version(), snap.Version())
	}
	if !reflect.DeepEqual(again.Showers(), snap.Showers()) {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", again.Showers(), snap.Showers())
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"version": "1", "showers": {`))
	var pe *ParseError
	if !errors.As(err, &pe) || !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected malformed ParseError, got %v", err)
	}
}

func TestParseMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		record string
		field  string
	}{
		{"version", `{"showers": {}}`, "", "version"},
		{"showers", `{"version": "1"}`, "", "showers"},
		{"ra", `{"version": "1", "showers": {"A": {"speed": 1, "dec": 0}}}`, "A", "ra"},
		{"zhr", `{"version": "1", "showers": {"A": {"speed": 1, "ra": 0, "dec": 0,
			"activity": [{"start": "01.01", "finish": "01.05", "peak": "01.02"}]}}}`, "A", "activity[0].zhr"},
		{"peak", `{"version": "1", "showers": {"B": {"speed": 1, "ra": 0, "dec": 0,
			"activity": [{"start": "01.01", "finish": "01.05", "zhr": 3}]}}}`, "B", "activity[0].peak"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if pe.Record != tt.record || pe.Field != tt.field {
				t.Fatalf("ParseError record=%q field=%q, want %q/%q", pe.Record, pe.Field, tt.record, tt.field)
			}
		})
	}
}

func TestParseRejectsWholeCatalogOnBadPeak(t *testing.T) {
	doc := strings.Replace(sampleCatalog, `"peak": "08.13"`, `"peak": "09.01"`, 1)
	snap, err := Parse([]byte(doc))
	if snap != nil {
		t.Fatalf("expected no snapshot, got %v", snap)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected range ValidationError, got %v", err)
	}
	if ve.Record != "PER" || ve.Period != 1 {
		t.Fatalf("ValidationError points at %q[%d], want PER[1]", ve.Record, ve.Period)
	}
	if !IsRejected(err) {
		t.Fatalf("IsRejected(%v) = false", err)
	}
}

func TestParseNumericValidation(t *testing.T) {
	docs := map[string]string{
		"negative zhr": `{"version": "1", "showers": {"A": {"speed": 1, "ra": 0, "dec": 0,
			"activity": [{"start": "01.01", "finish": "01.05", "peak": "01.02", "zhr": -1}]}}}`,
		"dec": `{"version": "1", "showers": {"A": {"speed": 1, "ra": 0, "dec": 91}}}`,
		"ra":  `{"version": "1", "showers": {"A": {"speed": 1, "ra": 360, "dec": 0}}}`,
		"year": `{"version": "1", "showers": {"A": {"speed": 1, "ra": 0, "dec": 0,
			"activity": [{"year": "next", "start": "01.01", "finish": "01.05", "peak": "01.02", "zhr": 1}]}}}`,
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestVersionOf(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "showers.json")
	if got := VersionOf(path); got != "" {
		t.Fatalf("VersionOf(missing) = %q", got)
	}

	// Version after a large record still resolves; broken trailing data is never read.
	doc := `{"showers": {"A": {"speed": 1, "ra": 0, "dec": 0}}, "version": "3.1.4", "x": [`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := VersionOf(path); got != "3.1.4" {
		t.Fatalf("VersionOf = %q, want 3.1.4", got)
	}
	if got := VersionOfBytes([]byte(`[1, 2]`)); got != "" {
		t.Fatalf("VersionOfBytes(array) = %q", got)
	}
}

func TestSaveAndLoad(t *testing.T) {
	snap, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "nested", "showers.json")
	if err := Save(path, snap); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !reflect.DeepEqual(loaded.Showers(), snap.Showers()) {
		t.Fatalf("loaded catalog differs")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestDefaultCatalogParses(t *testing.T) {
	snap, err := Parse(DefaultCatalog())
	if err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
	if snap.Get("PER") == nil || snap.Get("GEM") == nil {
		t.Fatalf("default catalog missing core showers: %v", snap)
	}
}
