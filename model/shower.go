package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GenericYear labels an activity period that recurs every year.
const GenericYear = "generic"

// Shape selects the rise/decay profile of a period's activity curve.
type Shape int

const (
	// ShapeBroad is a wide symmetric bell. Unknown catalog values map here.
	ShapeBroad Shape = iota
	// ShapeSteep is a narrow symmetric bell around the peak.
	ShapeSteep
	// ShapeAsymmetric rises slowly and decays quickly after the peak.
	ShapeAsymmetric
)

// String returns the catalog spelling of the shape.
func (s Shape) String() string {
	switch s {
	case ShapeSteep:
		return "steep"
	case ShapeAsymmetric:
		return "asymmetric"
	default:
		return "broad"
	}
}

// ShapeFromString maps the catalog "variable" field to a Shape.
//
// The mapping is tolerant: empty and unrecognised values yield ShapeBroad and
// never an error, so older catalogs that used free-form values keep loading.
func ShapeFromString(s string) Shape {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "steep", "sharp", "narrow":
		return ShapeSteep
	case "asymmetric", "asym", "skewed":
		return ShapeAsymmetric
	default:
		return ShapeBroad
	}
}

// MonthDay is a calendar date without a year, as written in the catalog ("MM.DD").
type MonthDay struct {
	Month time.Month
	Day   int
}

// ParseMonthDay parses the catalog "MM.DD" date format.
func ParseMonthDay(s string) (MonthDay, error) {
	ms, ds, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return MonthDay{}, fmt.Errorf("invalid date %q: want MM.DD", s)
	}
	m, errM := strconv.Atoi(ms)
	d, errD := strconv.Atoi(ds)
	if errM != nil || errD != nil {
		return MonthDay{}, fmt.Errorf("invalid date %q: want MM.DD", s)
	}
	if m < 1 || m > 12 {
		return MonthDay{}, fmt.Errorf("invalid date %q: month out of range", s)
	}
	if d < 1 || d > daysIn(time.Month(m)) {
		return MonthDay{}, fmt.Errorf("invalid date %q: day out of range", s)
	}
	return MonthDay{Month: time.Month(m), Day: d}, nil
}

// String renders the date in catalog format.
func (md MonthDay) String() string {
	return fmt.Sprintf("%02d.%02d", int(md.Month), md.Day)
}

// In returns midnight UTC of the date in the given year. Feb 29 in a non-leap
// year normalises to Mar 1.
func (md MonthDay) In(year int) time.Time {
	return time.Date(year, md.Month, md.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether md falls earlier in the calendar year than other.
func (md MonthDay) Before(other MonthDay) bool {
	if md.Month != other.Month {
		return md.Month < other.Month
	}
	return md.Day < other.Day
}

func daysIn(m time.Month) int {
	// Leap-year maximum; catalogs are year-agnostic.
	switch m {
	case time.February:
		return 29
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}

// ActivityPeriod is a dated window with a peak during which a shower is active.
type ActivityPeriod struct {
	Year     string // GenericYear or a four-digit year
	Start    MonthDay
	Finish   MonthDay
	Peak     MonthDay
	ZHR      int
	Variable Shape
}

// IsGeneric reports whether the period recurs every year.
func (p ActivityPeriod) IsGeneric() bool {
	return p.Year == "" || strings.EqualFold(p.Year, GenericYear)
}

// Radiant is the sky position meteors of a shower appear to originate from,
// in J2000 equatorial degrees.
type Radiant struct {
	RA  float64
	Dec float64
}

// Shower is one meteor-shower catalog entry.
type Shower struct {
	ID      string
	Name    string
	Periods []ActivityPeriod
	Radiant Radiant
	Speed   int // km/s
}

// DisplayName returns the name, falling back to the ID.
func (s *Shower) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}
