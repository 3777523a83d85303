// Package profile is the router's cost model: which transport mode is
// travelling, which highway types and way properties it prefers, and
// the dimensional limits it must respect (spec.md section 4.I).
package profile

import (
	"errors"
	"fmt"
	"math"

	"github.com/routino-go/routino/internal/store"
	"github.com/routino-go/routino/internal/units"
)

// ErrIncompatible reports a profile that cannot route against a given
// database at all -- no shared transport, no usable highway, or no
// usable speed.
var ErrIncompatible = errors.New("profile: incompatible with database")

// Mode selects the routing objective.
type Mode int

const (
	// Shortest minimises total distance.
	Shortest Mode = iota
	// Quickest minimises total travel time.
	Quickest
)

// Profile is a value object describing one transport mode's routing
// preferences. Zero value is invalid; call Normalize before use.
type Profile struct {
	Name      string
	Transport units.Transport
	Mode      Mode

	HighwayPref [units.HighwayCount]float64
	Speed       [units.HighwayCount]units.Speed
	PropsYes    [units.PropertyCount]float64
	PropsNo     [units.PropertyCount]float64

	ObeyOneway bool
	ObeyTurns  bool

	Weight units.Weight
	Height units.Height
	Width  units.Width
	Length units.Length

	// AllowedMask, MaxPref, and MaxSpeed are filled in by Normalize.
	AllowedMask units.Transports
	MaxPref     float64
	MaxSpeed    units.Speed
}

// Normalize rescales the raw, user-authored preferences into the
// router's cost-multiplier form (spec.md section 4.I steps 1-5) and
// must run exactly once after loading a profile, against the database
// it will route over. It mirrors the original's normalisation exactly,
// including flooring every highway and property multiplier to 0.0001
// rather than letting an explicit 0% preference reach true zero --
// that keeps a disfavoured highway routable-but-expensive instead of
// impossible, matching original_source's profiles.c.
func (p *Profile) Normalize(ways *store.Ways) error {
	p.AllowedMask = p.Transport.Bit()
	if p.AllowedMask == 0 {
		return fmt.Errorf("%w: no transport set", ErrIncompatible)
	}
	if p.AllowedMask&units.Transports(ways.Header.AllowMask) == 0 {
		return fmt.Errorf("%w: transport %s not present in database", ErrIncompatible, p.Transport.Name())
	}

	hmax := 0.0
	for h := units.Highway(1); h < units.HighwayCount; h++ {
		if p.HighwayPref[h] < 0 {
			p.HighwayPref[h] = 0
		}
		if p.HighwayPref[h] > hmax {
			hmax = p.HighwayPref[h]
		}
	}
	if hmax == 0 {
		return fmt.Errorf("%w: every highway preference is zero", ErrIncompatible)
	}
	for h := units.Highway(1); h < units.HighwayCount; h++ {
		p.HighwayPref[h] /= hmax
		if p.HighwayPref[h] < 0.0001 {
			p.HighwayPref[h] = 0.0001
		}
	}

	for prop := units.Property(1); prop < units.PropertyCount; prop++ {
		if p.PropsYes[prop] < 0 {
			p.PropsYes[prop] = 0
		}
		if p.PropsYes[prop] > 100 {
			p.PropsYes[prop] = 100
		}
		p.PropsYes[prop] /= 100
		p.PropsNo[prop] = 1 - p.PropsYes[prop]

		p.PropsYes[prop] = math.Sqrt(p.PropsYes[prop])
		p.PropsNo[prop] = math.Sqrt(p.PropsNo[prop])

		if p.PropsYes[prop] < 0.0001 {
			p.PropsYes[prop] = 0.0001
		}
		if p.PropsNo[prop] < 0.0001 {
			p.PropsNo[prop] = 0.0001
		}
	}

	p.MaxSpeed = 0
	for h := units.Highway(1); h < units.HighwayCount; h++ {
		if p.Speed[h] > p.MaxSpeed {
			p.MaxSpeed = p.Speed[h]
		}
	}
	if p.MaxSpeed == 0 {
		return fmt.Errorf("%w: every highway speed is zero", ErrIncompatible)
	}

	p.MaxPref = 1
	for prop := units.Property(1); prop < units.PropertyCount; prop++ {
		if units.Properties(ways.Header.PropsMask)&prop.Bit() == 0 {
			continue
		}
		if p.PropsYes[prop] > p.PropsNo[prop] {
			p.MaxPref *= p.PropsYes[prop]
		} else {
			p.MaxPref *= p.PropsNo[prop]
		}
	}

	return nil
}

// Allows reports whether the profile's transport is permitted on way.
func (p *Profile) Allows(way store.Way) bool {
	return way.Props.Allow&p.AllowedMask != 0
}

// FitsDimensions reports whether the profile's vehicle dimensions
// satisfy way's weight/height/width/length limits. A zero limit on
// either side means "unrestricted".
func (p *Profile) FitsDimensions(way store.Way) bool {
	if way.Props.Weight != 0 && p.Weight != 0 && p.Weight > way.Props.Weight {
		return false
	}
	if way.Props.Height != 0 && p.Height != 0 && p.Height > way.Props.Height {
		return false
	}
	if way.Props.Width != 0 && p.Width != 0 && p.Width > way.Props.Width {
		return false
	}
	if way.Props.Length != 0 && p.Length != 0 && p.Length > way.Props.Length {
		return false
	}
	return true
}

// HighwayMultiplier returns the profile's preference multiplier for
// way's highway class.
func (p *Profile) HighwayMultiplier(way store.Way) float64 {
	return p.HighwayPref[way.Props.Highway.Class()]
}

// PropsMultiplier folds in props_yes[p]/props_no[p] for every property
// p the way sets or clears, returning false if any one of them is
// zero -- an un-normalized zero collapses the whole edge.
func (p *Profile) PropsMultiplier(way store.Way) (float64, bool) {
	mult := 1.0
	for prop := units.Property(1); prop < units.PropertyCount; prop++ {
		var m float64
		if way.Props.Props&prop.Bit() != 0 {
			m = p.PropsYes[prop]
		} else {
			m = p.PropsNo[prop]
		}
		if m == 0 {
			return 0, false
		}
		mult *= m
	}
	return mult, true
}

// Valid reports whether way is usable at all by this profile: allowed
// transport, satisfied dimensions, and a non-zero combined highway and
// property multiplier (spec.md section 4.H's nearest-feature validity
// rule).
func (p *Profile) Valid(way store.Way) bool {
	if !p.Allows(way) || !p.FitsDimensions(way) {
		return false
	}
	if p.HighwayMultiplier(way) <= 0 {
		return false
	}
	mult, ok := p.PropsMultiplier(way)
	return ok && mult > 0
}

// effectiveSpeed picks the slower of the way's own speed limit and the
// profile's preferred speed for that highway class; an unset (zero)
// side defers to the other, and both unset reports ok=false.
func (p *Profile) effectiveSpeed(way store.Way) (units.Speed, bool) {
	ws := way.Props.Speed
	ps := p.Speed[way.Props.Highway.Class()]
	switch {
	case ws == 0 && ps == 0:
		return 0, false
	case ws == 0:
		return ps, true
	case ps == 0:
		return ws, true
	case ws < ps:
		return ws, true
	default:
		return ps, true
	}
}

// Duration estimates how long travelling metres along way takes under
// this profile, falling back to a fixed 10-hour "impassable" duration
// when neither side specifies a speed.
func (p *Profile) Duration(metres units.Distance, way store.Way) units.Duration {
	speed, ok := p.effectiveSpeed(way)
	if !ok {
		return units.HoursToDuration(10)
	}
	return units.DistanceSpeedToDuration(uint32(metres), uint8(speed))
}

// EdgeCost computes the routing score for travelling metres along way
// under this profile, folding in the highway and property multipliers.
// ok is false if any property multiplier collapses to zero, meaning
// the edge must be rejected outright.
func (p *Profile) EdgeCost(metres units.Distance, way store.Way) (units.Score, bool) {
	propsMult, ok := p.PropsMultiplier(way)
	if !ok {
		return 0, false
	}
	highwayMult := p.HighwayMultiplier(way)
	if highwayMult <= 0 {
		return 0, false
	}

	var base float64
	if p.Mode == Quickest {
		base = units.DurationToHours(p.Duration(metres, way))
	} else {
		base = units.DistanceToKM(metres)
	}
	return units.Score(base / highwayMult / propsMult), true
}
