// Package config defines the shared command-line flag surface for the
// three Routino binaries (cmd/planetsplitter, cmd/router,
// cmd/filedumper), built on github.com/spf13/pflag the way the rest of
// the domain stack's CLIs are (section 6).
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
)

// Build errors.
var (
	ErrNoInputFiles    = errors.New("config: no input files specified")
	ErrInvalidRAMLimit = errors.New("config: --max-ram must be positive")
	ErrUnknownProfile  = errors.New("config: named profile not found")
)

// BuildConfig holds planetsplitter's flags (section 6).
type BuildConfig struct {
	InputFiles  []string
	Dir         string
	Prefix      string
	TagRules    string
	MaxRAM      int64 // bytes
	ParseOnly   bool
	ProcessOnly bool
	KeepTemp    bool
	Loggable    bool
	Verbose     bool
}

// ParseBuildFlags parses planetsplitter's command line.
func ParseBuildFlags(args []string) (*BuildConfig, error) {
	fs := pflag.NewFlagSet("planetsplitter", pflag.ContinueOnError)

	cfg := &BuildConfig{}
	var maxRAMMB int64

	fs.StringVar(&cfg.Dir, "dir", ".", "directory to write the routing database to")
	fs.StringVar(&cfg.Prefix, "prefix", "routino", "filename prefix for the routing database")
	fs.StringVar(&cfg.TagRules, "tagging", "", "path to the tagging rules file")
	fs.Int64Var(&maxRAMMB, "max-ram", 1024, "approximate RAM budget in megabytes for the external sort")
	fs.BoolVar(&cfg.ParseOnly, "parse-only", false, "stop after parsing the OSM input, keeping intermediate files")
	fs.BoolVar(&cfg.ProcessOnly, "process-only", false, "rejected with an error: resuming from kept intermediate files is not supported")
	fs.BoolVar(&cfg.KeepTemp, "keep-tmp", false, "accepted but has no effect: intermediate files are handled the same either way")
	fs.BoolVar(&cfg.Loggable, "loggable", false, "accepted but has no effect on progress output")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "log extra diagnostic detail")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parsing flags: %w", err)
	}

	cfg.InputFiles = fs.Args()
	if len(cfg.InputFiles) == 0 && !cfg.ProcessOnly {
		return nil, ErrNoInputFiles
	}
	if maxRAMMB <= 0 {
		return nil, ErrInvalidRAMLimit
	}
	cfg.MaxRAM = maxRAMMB * 1024 * 1024

	return cfg, nil
}

// RouterConfig holds router's flags (section 6).
type RouterConfig struct {
	Dir         string
	Prefix      string
	ProfileFile string
	Profile     string
	Transport   string
	Points      []string // "lat,lon" pairs, in visiting order
	Quickest    bool
	Loop        bool
	HeightProf  bool
	OutputGPX   bool
	OutputHTML  bool
	OutputText  bool
	Loggable    bool
	Verbose     bool
}

// ParseRouterFlags parses router's command line.
func ParseRouterFlags(args []string) (*RouterConfig, error) {
	fs := pflag.NewFlagSet("router", pflag.ContinueOnError)

	cfg := &RouterConfig{}

	fs.StringVar(&cfg.Dir, "dir", ".", "directory containing the routing database")
	fs.StringVar(&cfg.Prefix, "prefix", "routino", "filename prefix for the routing database")
	fs.StringVar(&cfg.ProfileFile, "profiles", "", "path to the profiles XML file")
	fs.StringVar(&cfg.Profile, "profile", "motorcar", "named profile to route with")
	fs.StringVar(&cfg.Transport, "transport", "motorcar", "transport mode to route with")
	fs.StringArrayVar(&cfg.Points, "lat-lon", nil, "lat,lon waypoint; repeat in visiting order")
	fs.BoolVar(&cfg.Quickest, "quickest", false, "find the quickest route instead of the shortest")
	fs.BoolVar(&cfg.Loop, "loop", false, "route back to the first waypoint after the last")
	fs.BoolVar(&cfg.HeightProf, "height-profile", false, "accepted but has no effect: no output includes elevation data")
	fs.BoolVar(&cfg.OutputGPX, "output-gpx", false, "write a GPX track of the route")
	fs.BoolVar(&cfg.OutputHTML, "output-html", false, "write an HTML turn-by-turn description")
	fs.BoolVar(&cfg.OutputText, "output-text", true, "write a plain-text turn-by-turn description")
	fs.BoolVar(&cfg.Loggable, "loggable", false, "accepted but has no effect on progress output")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "log extra diagnostic detail")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parsing flags: %w", err)
	}

	if len(cfg.Points) < 2 {
		return nil, fmt.Errorf("config: at least two --lat-lon waypoints are required")
	}

	return cfg, nil
}

// DumpConfig holds filedumper's flags (section 6).
type DumpConfig struct {
	Dir        string
	Prefix     string
	DumpNodes  bool
	DumpWays   bool
	DumpSegs   bool
	DumpVisual bool
	Statistics bool
	NodeID     uint64
	WayID      uint64
}

// ParseDumpFlags parses filedumper's command line.
func ParseDumpFlags(args []string) (*DumpConfig, error) {
	fs := pflag.NewFlagSet("filedumper", pflag.ContinueOnError)

	cfg := &DumpConfig{}

	fs.StringVar(&cfg.Dir, "dir", ".", "directory containing the routing database")
	fs.StringVar(&cfg.Prefix, "prefix", "routino", "filename prefix for the routing database")
	fs.BoolVar(&cfg.DumpNodes, "dump-nodes", false, "dump the node store")
	fs.BoolVar(&cfg.DumpWays, "dump-ways", false, "dump the way store")
	fs.BoolVar(&cfg.DumpSegs, "dump-segments", false, "dump the segment store")
	fs.BoolVar(&cfg.DumpVisual, "visualizer", false, "write a GeoJSON-friendly visualization dump")
	fs.BoolVar(&cfg.Statistics, "statistics", false, "render build/query Prometheus counters as text")
	fs.Uint64Var(&cfg.NodeID, "node", 0, "dump a single node by id")
	fs.Uint64Var(&cfg.WayID, "way", 0, "dump a single way by id")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parsing flags: %w", err)
	}

	return cfg, nil
}
