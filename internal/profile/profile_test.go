package profile

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/routino-go/routino/internal/store"
	"github.com/routino-go/routino/internal/units"
	"github.com/routino-go/routino/internal/xstore"
)

func openTestWays(t *testing.T, ways []store.Way) *store.Ways {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ways.dat")
	namesPath := filepath.Join(dir, "waynames.dat")
	if _, err := store.WriteWays(path, namesPath, ways, strings.NewReader("")); err != nil {
		t.Fatalf("WriteWays: %v", err)
	}
	w, err := store.OpenWays(path, namesPath, store.ModeSlim)
	if err != nil {
		t.Fatalf("OpenWays: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

// way builds a minimal store.Way for tests, leaving any dimension left
// at zero to mean "unrestricted".
func way(h units.Highway, allow units.Transports, weight units.Weight) store.Way {
	return store.Way{Props: xstore.WayProperties{Highway: h, Allow: allow, Weight: weight}}
}

func bicycleProfile() *Profile {
	p := &Profile{Transport: units.TransportBicycle, Mode: Shortest}
	p.HighwayPref[units.HighwayResidential] = 100
	p.HighwayPref[units.HighwayCycleway] = 100
	p.HighwayPref[units.HighwayTrack] = 20
	p.Speed[units.HighwayResidential] = units.KPHToSpeed(20)
	p.Speed[units.HighwayCycleway] = units.KPHToSpeed(20)
	p.Speed[units.HighwayTrack] = units.KPHToSpeed(10)
	return p
}

func TestNormalizeRejectsUnsupportedTransport(t *testing.T) {
	ways := openTestWays(t, []store.Way{way(units.HighwayResidential, units.TransportMotorcar.Bit(), 0)})
	p := bicycleProfile()
	if err := p.Normalize(ways); err == nil {
		t.Fatalf("expected Normalize to reject a profile whose transport is absent from the database")
	}
}

func TestNormalizeRescalesHighwayToUnitMax(t *testing.T) {
	ways := openTestWays(t, []store.Way{way(units.HighwayResidential, units.TransportBicycle.Bit(), 0)})
	p := bicycleProfile()
	if err := p.Normalize(ways); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if p.HighwayPref[units.HighwayResidential] != 1.0 {
		t.Fatalf("expected the highest preference to rescale to 1.0, got %v", p.HighwayPref[units.HighwayResidential])
	}
	if got, want := p.HighwayPref[units.HighwayTrack], 0.2; got != want {
		t.Fatalf("expected track preference to rescale to %v, got %v", want, got)
	}
	if p.HighwayPref[units.HighwayMotorway] != 0.0001 {
		t.Fatalf("expected an unset highway preference to floor at 0.0001, got %v", p.HighwayPref[units.HighwayMotorway])
	}
}

func TestNormalizeRejectsZeroSpeed(t *testing.T) {
	ways := openTestWays(t, []store.Way{way(units.HighwayResidential, units.TransportBicycle.Bit(), 0)})
	p := &Profile{Transport: units.TransportBicycle}
	p.HighwayPref[units.HighwayResidential] = 100
	if err := p.Normalize(ways); err == nil {
		t.Fatalf("expected Normalize to reject a profile with every speed unset")
	}
}

func TestValidRejectsDisallowedTransport(t *testing.T) {
	ways := openTestWays(t, []store.Way{way(units.HighwayResidential, units.TransportBicycle.Bit(), 0)})
	p := bicycleProfile()
	if err := p.Normalize(ways); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	rec, _ := ways.Lookup(0, 1)
	if !p.Valid(rec) {
		t.Fatalf("expected a residential way allowing bicycles to be valid")
	}

	carOnly := way(units.HighwayResidential, units.TransportMotorcar.Bit(), 0)
	if p.Valid(carOnly) {
		t.Fatalf("expected a car-only way to be invalid for a bicycle profile")
	}
}

func TestFitsDimensionsRejectsOverweightVehicle(t *testing.T) {
	ways := openTestWays(t, []store.Way{way(units.HighwayResidential, units.TransportBicycle.Bit(), 0)})
	p := bicycleProfile()
	p.Weight = units.TonnesToWeight(7.5)
	if err := p.Normalize(ways); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	limited := way(units.HighwayResidential, units.TransportBicycle.Bit(), units.TonnesToWeight(3.5))
	if p.FitsDimensions(limited) {
		t.Fatalf("expected a 7.5t profile vehicle to violate a 3.5t way weight limit")
	}
}

func TestEdgeCostDividesByHighwayPreference(t *testing.T) {
	ways := openTestWays(t, []store.Way{way(units.HighwayCycleway, units.TransportBicycle.Bit(), 0)})
	p := bicycleProfile()
	if err := p.Normalize(ways); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	rec, _ := ways.Lookup(0, 1)

	score, ok := p.EdgeCost(1000, rec)
	if !ok {
		t.Fatalf("expected a valid way to produce a usable edge cost")
	}
	if got, want := float64(score), units.DistanceToKM(1000)/1.0; got != want {
		t.Fatalf("expected cost %v (full preference, no penalty), got %v", want, got)
	}
}
