// Package activity computes the instantaneous visual activity of meteor
// showers. Every function here is pure: results depend only on the shower
// definition and the instant passed in.
package activity

import (
	"math"
	"sort"
	"time"

	"github.com/signalsfoundry/meteor-showers/model"
)

// ZHRToWSR converts a zenithal hourly rate into a whole-sky rate of
// particles per second.
const ZHRToWSR = 1.6667 / 3600.0

const day = 24 * time.Hour

// shapeParams scales the Gaussian width on each side of the peak, as a
// fraction of the distance from the peak to that side's window edge.
type shapeParams struct {
	rise float64
	fall float64
}

// shapeTable is the tunable curve family selected by a period's Variable.
var shapeTable = map[model.Shape]shapeParams{
	model.ShapeBroad:      {rise: 0.5, fall: 0.5},
	model.ShapeSteep:      {rise: 0.25, fall: 0.25},
	model.ShapeAsymmetric: {rise: 0.5, fall: 0.25},
}

func paramsFor(s model.Shape) shapeParams {
	if p, ok := shapeTable[s]; ok {
		return p
	}
	return shapeTable[model.ShapeBroad]
}

// Window is a period resolved to concrete instants (midnight UTC).
type Window struct {
	Start  time.Time
	Peak   time.Time
	Finish time.Time
}

// Contains reports whether t lies in [Start, Finish].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.Finish)
}

// Resolve anchors the period at the given year. Dates that fall earlier in
// the calendar than Start belong to the following year, so windows may wrap
// over New Year.
func Resolve(p model.ActivityPeriod, year int) Window {
	start := p.Start.In(year)
	peak := p.Peak.In(year)
	if peak.Before(start) {
		peak = p.Peak.In(year + 1)
	}
	finish := p.Finish.In(year)
	if finish.Before(start) {
		finish = p.Finish.In(year + 1)
	}
	return Window{Start: start, Peak: peak, Finish: finish}
}

// ValidOrder reports whether start <= peak <= finish along the period's
// window. A leap reference year keeps Feb 29 representable.
func ValidOrder(p model.ActivityPeriod) bool {
	w := Resolve(p, 2000)
	return !w.Peak.After(w.Finish)
}

// Windows returns the concrete windows of p that could contain t.
func Windows(p model.ActivityPeriod, t time.Time) []Window {
	t = t.UTC()
	if p.IsGeneric() {
		y := t.Year()
		return []Window{Resolve(p, y-1), Resolve(p, y)}
	}
	year, ok := parseYear(p.Year)
	if !ok {
		return nil
	}
	return []Window{Resolve(p, year)}
}

func parseYear(s string) (int, bool) {
	if len(s) != 4 {
		return 0, false
	}
	y := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		y = y*10 + int(r-'0')
	}
	return y, true
}

// Curve returns the normalised activity in [0, 1] of a period with the given
// shape at t: 1 exactly at the peak, falling continuously to exactly 0 at the
// window edges, and 0 outside the window.
func Curve(shape model.Shape, w Window, t time.Time) float64 {
	if !w.Contains(t) {
		return 0
	}
	params := paramsFor(shape)

	var edge time.Duration
	k := params.fall
	if t.Before(w.Peak) {
		edge = w.Peak.Sub(w.Start)
		k = params.rise
	} else {
		edge = w.Finish.Sub(w.Peak)
	}
	delta := math.Abs(t.Sub(w.Peak).Hours()) / 24
	if edge <= 0 {
		// Zero-width side: only the peak instant itself is on it.
		if delta == 0 {
			return 1
		}
		return 0
	}

	edgeDays := edge.Hours() / 24
	sigma := k * edgeDays
	g := func(x float64) float64 { return math.Exp(-(x * x) / (sigma * sigma)) }
	ge := g(edgeDays)
	f := (g(delta) - ge) / (1 - ge)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Match is the period that determines a shower's activity at an instant.
type Match struct {
	Index  int // index into Shower.Periods
	Period model.ActivityPeriod
	Window Window
	ZHR    float64
}

// ActivePeriod selects the period with the highest activity at t. Overlapping
// periods never sum. It returns false when no period's window contains t.
func ActivePeriod(s *model.Shower, t time.Time) (Match, bool) {
	if s == nil {
		return Match{}, false
	}
	var best Match
	found := false
	for i, p := range s.Periods {
		for _, w := range Windows(p, t) {
			if !w.Contains(t) {
				continue
			}
			zhr := 0.0
			if p.ZHR > 0 {
				zhr = float64(p.ZHR) * Curve(p.Variable, w, t)
			}
			if !found || zhr > best.ZHR {
				best = Match{Index: i, Period: p, Window: w, ZHR: zhr}
				found = true
			}
		}
	}
	return best, found
}

// ZHR returns the instantaneous zenithal hourly rate of the shower at t.
func ZHR(s *model.Shower, t time.Time) float64 {
	m, ok := ActivePeriod(s, t)
	if !ok {
		return 0
	}
	return m.ZHR
}

// Rate returns the expected whole-sky particles per second at t.
func Rate(s *model.Shower, t time.Time) float64 {
	return ZHR(s, t) * ZHRToWSR
}

// IsActive reports whether any period's window contains t.
func IsActive(s *model.Shower, t time.Time) bool {
	_, ok := ActivePeriod(s, t)
	return ok
}

// ActiveShower summarises a shower that is active at some instant.
type ActiveShower struct {
	ShowerID string
	Name     string
	Year     string
	Start    time.Time
	Peak     time.Time
	Finish   time.Time
	PeakZHR  int
	ZHR      float64
	Variable model.Shape
	Speed    int
	Radiant  model.Radiant
}

// ActiveInfo lists the showers active at t, busiest first.
func ActiveInfo(showers []*model.Shower, t time.Time) []ActiveShower {
	var out []ActiveShower
	for _, s := range showers {
		m, ok := ActivePeriod(s, t)
		if !ok {
			continue
		}
		out = append(out, ActiveShower{
			ShowerID: s.ID,
			Name:     s.DisplayName(),
			Year:     m.Period.Year,
			Start:    m.Window.Start,
			Peak:     m.Window.Peak,
			Finish:   m.Window.Finish,
			PeakZHR:  m.Period.ZHR,
			ZHR:      m.ZHR,
			Variable: m.Period.Variable,
			Speed:    s.Speed,
			Radiant:  s.Radiant,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ZHR != out[j].ZHR {
			return out[i].ZHR > out[j].ZHR
		}
		return out[i].ShowerID < out[j].ShowerID
	})
	return out
}

// SkyDate truncates t to its UTC calendar day; the active-info list only
// changes when this value does.
func SkyDate(t time.Time) time.Time {
	return t.UTC().Truncate(day)
}
