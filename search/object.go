// Package search exposes catalog showers as sky objects to a generic
// object-search framework.
package search

import (
	"time"

	"github.com/signalsfoundry/meteor-showers/activity"
	"github.com/signalsfoundry/meteor-showers/core"
	"github.com/signalsfoundry/meteor-showers/model"
)

// ObjectKind tags the concrete kind of a SkyObject.
type ObjectKind int

const (
	KindUnknown ObjectKind = iota
	KindMeteorShower
)

func (k ObjectKind) String() string {
	switch k {
	case KindMeteorShower:
		return "MeteorShower"
	default:
		return "Unknown"
	}
}

// SkyObject is the capability set the search framework relies on.
type SkyObject interface {
	Kind() ObjectKind
	ID() string
	DisplayName() string
	// Position is the J2000 unit direction of the object.
	Position() core.Vec3
	Info(t time.Time) Info
}

// Info is a descriptive snapshot of a sky object at an instant.
type Info struct {
	Kind   ObjectKind `json:"kind"`
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	RA     float64    `json:"ra"`
	Dec    float64    `json:"dec"`
	Speed  int        `json:"speed"`
	Active bool       `json:"active"`
	ZHR    float64    `json:"zhr"`
	// Set only while active.
	Peak    *time.Time `json:"peak,omitempty"`
	PeakZHR int        `json:"peak_zhr,omitempty"`
}

// ShowerObject adapts a catalog shower to SkyObject.
type ShowerObject struct {
	shower *model.Shower
}

// NewShowerObject wraps s.
func NewShowerObject(s *model.Shower) ShowerObject { return ShowerObject{shower: s} }

func (o ShowerObject) Kind() ObjectKind      { return KindMeteorShower }
func (o ShowerObject) ID() string            { return o.shower.ID }
func (o ShowerObject) DisplayName() string   { return o.shower.DisplayName() }
func (o ShowerObject) Shower() *model.Shower { return o.shower }

func (o ShowerObject) Position() core.Vec3 {
	return core.FromEquatorial(o.shower.Radiant.RA, o.shower.Radiant.Dec)
}

func (o ShowerObject) Info(t time.Time) Info {
	info := Info{
		Kind:  KindMeteorShower,
		ID:    o.shower.ID,
		Name:  o.shower.DisplayName(),
		RA:    o.shower.Radiant.RA,
		Dec:   o.shower.Radiant.Dec,
		Speed: o.shower.Speed,
	}
	if m, ok := activity.ActivePeriod(o.shower, t); ok {
		peak := m.Window.Peak
		info.Active = true
		info.ZHR = m.ZHR
		info.Peak = &peak
		info.PeakZHR = m.Period.ZHR
	}
	return info
}
