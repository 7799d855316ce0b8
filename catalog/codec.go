package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/signalsfoundry/meteor-showers/activity"
	"github.com/signalsfoundry/meteor-showers/model"
)

// On-disk JSON shapes. Pointers distinguish missing fields from zero values.
type catalogJSON struct {
	Version string                `json:"version"`
	Showers map[string]showerJSON `json:"showers"`
}

type showerJSON struct {
	Name     string       `json:"name"`
	Speed    *int         `json:"speed"`
	RA       *float64     `json:"ra"`
	Dec      *float64     `json:"dec"`
	Activity []periodJSON `json:"activity"`
}

type periodJSON struct {
	Year     string `json:"year"`
	Start    string `json:"start"`
	Finish   string `json:"finish"`
	Peak     string `json:"peak"`
	ZHR      *int   `json:"zhr"`
	Variable string `json:"variable,omitempty"`
}

// Parse decodes and validates a catalog document. Any bad record rejects the
// whole document.
func Parse(data []byte) (*Snapshot, error) {
	var doc catalogJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if strings.TrimSpace(doc.Version) == "" {
		return nil, &ParseError{Field: "version", Err: ErrMissingField}
	}
	if doc.Showers == nil {
		return nil, &ParseError{Field: "showers", Err: ErrMissingField}
	}

	ids := make([]string, 0, len(doc.Showers))
	for id := range doc.Showers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	showers := make([]*model.Shower, 0, len(ids))
	for _, id := range ids {
		s, err := decodeShower(id, doc.Showers[id])
		if err != nil {
			return nil, err
		}
		showers = append(showers, s)
	}
	return NewSnapshot(doc.Version, showers)
}

func decodeShower(id string, js showerJSON) (*model.Shower, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &ParseError{Field: "id", Err: ErrMissingField}
	}
	switch {
	case js.RA == nil:
		return nil, &ParseError{Record: id, Field: "ra", Err: ErrMissingField}
	case js.Dec == nil:
		return nil, &ParseError{Record: id, Field: "dec", Err: ErrMissingField}
	case js.Speed == nil:
		return nil, &ParseError{Record: id, Field: "speed", Err: ErrMissingField}
	}
	if *js.RA < 0 || *js.RA >= 360 {
		return nil, &ValidationError{Record: id, Period: -1, Field: "ra", Err: ErrInvalidNumber}
	}
	if *js.Dec < -90 || *js.Dec > 90 {
		return nil, &ValidationError{Record: id, Period: -1, Field: "dec", Err: ErrInvalidNumber}
	}
	if *js.Speed < 0 {
		return nil, &ValidationError{Record: id, Period: -1, Field: "speed", Err: ErrInvalidNumber}
	}

	s := &model.Shower{
		ID:      id,
		Name:    js.Name,
		Speed:   *js.Speed,
		Radiant: model.Radiant{RA: *js.RA, Dec: *js.Dec},
		Periods: make([]model.ActivityPeriod, 0, len(js.Activity)),
	}
	for i, pj := range js.Activity {
		p, err := decodePeriod(id, i, pj)
		if err != nil {
			return nil, err
		}
		s.Periods = append(s.Periods, p)
	}
	return s, nil
}

func decodePeriod(id string, i int, pj periodJSON) (model.ActivityPeriod, error) {
	p := model.ActivityPeriod{
		Year:     strings.TrimSpace(pj.Year),
		Variable: model.ShapeFromString(pj.Variable),
	}
	if p.Year == "" || strings.EqualFold(p.Year, model.GenericYear) {
		p.Year = model.GenericYear
	} else if !isYear(p.Year) {
		return p, &ValidationError{Record: id, Period: i, Field: "year", Err: fmt.Errorf("%w: %q", ErrInvalidNumber, p.Year)}
	}

	dates := []struct {
		name string
		raw  string
		dst  *model.MonthDay
	}{
		{"start", pj.Start, &p.Start},
		{"finish", pj.Finish, &p.Finish},
		{"peak", pj.Peak, &p.Peak},
	}
	for _, d := range dates {
		if strings.TrimSpace(d.raw) == "" {
			return p, &ParseError{Record: id, Field: fmt.Sprintf("activity[%d].%s", i, d.name), Err: ErrMissingField}
		}
		v, err := model.ParseMonthDay(d.raw)
		if err != nil {
			return p, &ParseError{Record: id, Field: fmt.Sprintf("activity[%d].%s", i, d.name), Err: err}
		}
		*d.dst = v
	}

	if pj.ZHR == nil {
		return p, &ParseError{Record: id, Field: fmt.Sprintf("activity[%d].zhr", i), Err: ErrMissingField}
	}
	if *pj.ZHR < 0 {
		return p, &ValidationError{Record: id, Period: i, Field: "zhr", Err: ErrInvalidNumber}
	}
	p.ZHR = *pj.ZHR

	if !activity.ValidOrder(p) {
		return p, &ValidationError{
			Record: id,
			Period: i,
			Field:  "peak",
			Err:    fmt.Errorf("%w: start=%s peak=%s finish=%s", ErrInvalidRange, p.Start, p.Peak, p.Finish),
		}
	}
	return p, nil
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Marshal encodes a snapshot in the on-disk format.
func Marshal(snap *Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, ErrNilSnapshot
	}
	doc := catalogJSON{
		Version: snap.Version(),
		Showers: make(map[string]showerJSON, snap.Len()),
	}
	for _, s := range snap.showers {
		speed, ra, dec := s.Speed, s.Radiant.RA, s.Radiant.Dec
		js := showerJSON{
			Name:     s.Name,
			Speed:    &speed,
			RA:       &ra,
			Dec:      &dec,
			Activity: make([]periodJSON, 0, len(s.Periods)),
		}
		for _, p := range s.Periods {
			zhr := p.ZHR
			js.Activity = append(js.Activity, periodJSON{
				Year:     p.Year,
				Start:    p.Start.String(),
				Finish:   p.Finish.String(),
				Peak:     p.Peak.String(),
				ZHR:      &zhr,
				Variable: p.Variable.String(),
			})
		}
		doc.Showers[s.ID] = js
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Load reads and parses a catalog file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}
	return Parse(data)
}

// WriteFile atomically replaces path with data (write temp + rename).
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create catalog directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp catalog: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename catalog: %w", err)
	}
	return nil
}

// Save marshals snap and writes it atomically to path.
func Save(path string, snap *Snapshot) error {
	data, err := Marshal(snap)
	if err != nil {
		return err
	}
	return WriteFile(path, data)
}

// VersionOf returns the top-level "version" of a catalog file without decoding
// the shower records. It returns "" if the file is missing or unreadable.
func VersionOf(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	v, _ := versionFrom(f)
	return v
}

// VersionOfBytes is VersionOf for an in-memory document.
func VersionOfBytes(data []byte) string {
	v, _ := versionFrom(bytes.NewReader(data))
	return v
}

func versionFrom(r io.Reader) (string, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", ErrMalformed
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return "", err
		}
		key, _ := keyTok.(string)
		if key == "version" {
			var v string
			if err := dec.Decode(&v); err != nil {
				return "", err
			}
			return v, nil
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return "", err
		}
	}
	return "", errors.New("catalog has no version")
}
