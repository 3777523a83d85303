// Command router answers a multi-waypoint shortest/quickest route
// query against a database planetsplitter built, writing the result
// as GPX, HTML, and/or plain text (spec.md section 4.H, section 6).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/routino-go/routino/internal/config"
	"github.com/routino-go/routino/internal/dump"
	"github.com/routino-go/routino/internal/fakes"
	"github.com/routino-go/routino/internal/nearest"
	"github.com/routino-go/routino/internal/profile"
	"github.com/routino-go/routino/internal/profilexml"
	"github.com/routino-go/routino/internal/rlog"
	"github.com/routino-go/routino/internal/router"
	"github.com/routino-go/routino/internal/stats"
	"github.com/routino-go/routino/internal/store"
	"github.com/routino-go/routino/internal/units"
)

// defaultSnap is how far a waypoint may sit from the nearest usable
// segment and still be accepted, absent a dedicated CLI flag for it.
const defaultSnap = units.Distance(10000)

func main() {
	cfg, err := config.ParseRouterFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	rlog.Setup(cfg.Verbose)

	if err := run(cfg); err != nil {
		rlog.Error(err)
		os.Exit(1)
	}
}

func run(cfg *config.RouterConfig) error {
	dbDir := filepath.Join(cfg.Dir, cfg.Prefix)

	nodes, err := store.OpenNodes(filepath.Join(dbDir, store.NodesFile), store.ModeSlim)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	defer nodes.Close()
	segs, err := store.OpenSegments(filepath.Join(dbDir, store.SegmentsFile), store.ModeSlim)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	defer segs.Close()
	ways, err := store.OpenWays(filepath.Join(dbDir, store.WaysFile), filepath.Join(dbDir, store.WayNamesFile), store.ModeSlim)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	defer ways.Close()
	rels, err := store.OpenRelations(filepath.Join(dbDir, store.RelationsFile), store.ModeSlim)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	defer rels.Close()

	prof, err := loadProfile(cfg, dbDir, ways)
	if err != nil {
		return err
	}

	points, err := parsePoints(cfg.Points)
	if err != nil {
		return err
	}

	fk := fakes.New()
	search := nearest.New(nodes, segs, ways, prof)
	r, err := router.New(nodes, segs, ways, rels, prof, fk)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}

	metrics := stats.NewQuery()
	metrics.QueriesTotal.Inc()

	route, ok, err := r.Query(search, points, defaultSnap, cfg.Loop)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	if !ok {
		metrics.QueriesFailed.Inc()
		return fmt.Errorf("router: no route found between the given waypoints")
	}

	rlog.Info("router: found a route of %.3fkm, %.1f minutes, %d steps",
		units.DistanceToKM(route.Distance), units.DurationToMinutes(route.Duration), len(route.Steps))

	return writeOutputs(cfg, dbDir, route, ways)
}

// loadProfile resolves the named profile from --profiles (or the
// database's own <prefix>/profiles.xml, mirroring the original's
// fallback), overrides its transport from --transport if given, sets
// the routing mode from --quickest, and normalizes it against ways.
func loadProfile(cfg *config.RouterConfig, dbDir string, ways *store.Ways) (*profile.Profile, error) {
	path := cfg.ProfileFile
	if path == "" {
		path = filepath.Join(dbDir, "profiles.xml")
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("router: --profiles was not given and %s does not exist", path)
		}
	}

	all, err := profilexml.Load(path)
	if err != nil {
		return nil, err
	}
	prof, ok := all[cfg.Profile]
	if !ok {
		return nil, fmt.Errorf("router: no profile named %q in %s", cfg.Profile, path)
	}

	if cfg.Transport != "" {
		t, ok := units.ParseTransport(cfg.Transport)
		if !ok {
			return nil, fmt.Errorf("router: unknown transport %q", cfg.Transport)
		}
		prof.Transport = t
	}
	if cfg.Quickest {
		prof.Mode = profile.Quickest
	} else {
		prof.Mode = profile.Shortest
	}

	if err := prof.Normalize(ways); err != nil {
		return nil, fmt.Errorf("router: profile %q: %w", cfg.Profile, err)
	}
	return prof, nil
}

// parsePoints turns router's repeated --lat-lon="lat,lon" flags into
// radian-valued query points, in visiting order.
func parsePoints(raw []string) ([]nearest.Point, error) {
	points := make([]nearest.Point, 0, len(raw))
	for _, s := range raw {
		parts := strings.SplitN(s, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("router: invalid --lat-lon value %q, expected \"lat,lon\"", s)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("router: invalid latitude in %q: %w", s, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("router: invalid longitude in %q: %w", s, err)
		}
		points = append(points, nearest.Point{Lat: units.DegreesToRadians(lat), Lon: units.DegreesToRadians(lon)})
	}
	return points, nil
}

// wayNames adapts *store.Ways to package dump's narrow wayNamer
// interface.
type wayNames struct{ ways *store.Ways }

func (w wayNames) WayName(idx units.Index) string {
	rec, err := w.ways.Lookup(idx, 1)
	if err != nil {
		return ""
	}
	name, err := w.ways.Name(rec)
	if err != nil {
		return ""
	}
	return name
}

func writeOutputs(cfg *config.RouterConfig, dbDir string, route router.Route, ways *store.Ways) error {
	names := wayNames{ways: ways}

	if cfg.OutputGPX {
		data, err := dump.GPX(route)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dbDir, "route.gpx"), data, 0o644); err != nil {
			return fmt.Errorf("router: writing route.gpx: %w", err)
		}
	}
	if cfg.OutputHTML {
		html := dump.HTML(route, names)
		if err := os.WriteFile(filepath.Join(dbDir, "route.html"), []byte(html), 0o644); err != nil {
			return fmt.Errorf("router: writing route.html: %w", err)
		}
	}
	if cfg.OutputText {
		text := dump.Text(route, names)
		if err := os.WriteFile(filepath.Join(dbDir, "route.txt"), []byte(text), 0o644); err != nil {
			return fmt.Errorf("router: writing route.txt: %w", err)
		}
		fmt.Print(text)
	}
	return nil
}
