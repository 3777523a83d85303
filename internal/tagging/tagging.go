// Package tagging rewrites raw OSM tags before the graph builder
// interprets them, and then does that interpretation: turning a way's
// tag set into the Highway/Transports/Properties/dimension limits the
// rest of the build works with (tagging.c, section 4.C).
package tagging

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/osm"
	"github.com/routino-go/routino/internal/units"
)

// Action is one rewrite step applied when a Rule matches: set a tag,
// unset a tag, or (output/logerror) parsed but ignored by Apply,
// which leaves the tag set unchanged for them (tagging.h's
// TAGACTION_*).
type Action struct {
	Kind string `xml:"kind,attr"` // "set", "unset", "output", "logerror"
	Key  string `xml:"k,attr"`
	Val  string `xml:"v,attr"`
}

// Rule matches an exact (or wildcard, via an empty Val) tag and
// applies its Actions in order.
type Rule struct {
	Key     string   `xml:"k,attr"`
	Val     string   `xml:"v,attr"`
	Actions []Action `xml:"action"`
}

// RuleSet is an ordered list of tagging rules, applied top to bottom.
type RuleSet struct {
	XMLName xml.Name `xml:"tagging"`
	Rules   []Rule   `xml:"rule"`
}

// LoadRules parses a tagging-rules XML file. A zero RuleSet (no rules)
// is valid and simply passes tags through unchanged.
func LoadRules(path string) (*RuleSet, error) {
	if path == "" {
		return &RuleSet{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tagging: reading rules: %w", err)
	}
	var rs RuleSet
	if err := xml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("tagging: parsing rules: %w", err)
	}
	return &rs, nil
}

// Apply turns an OSM tag list into a plain map and rewrites it
// according to rs, matching each rule in order against the tag set as
// it stands after all earlier rules.
func (rs *RuleSet) Apply(tags osm.Tags) map[string]string {
	m := tags.Map()
	if rs == nil {
		return m
	}
	for _, rule := range rs.Rules {
		v, ok := m[rule.Key]
		if !ok {
			continue
		}
		if rule.Val != "" && rule.Val != v {
			continue
		}
		for _, act := range rule.Actions {
			switch act.Kind {
			case "set":
				m[act.Key] = act.Val
			case "unset":
				delete(m, act.Key)
			}
		}
	}
	return m
}

// WayProfile is the result of interpreting one way's tags: the data
// xstore.WayProperties needs, plus the oneway direction flags that get
// folded into each generated SegmentX's Distance word.
type WayProfile struct {
	Highway    units.Highway
	Allow      units.Transports
	Props      units.Properties
	Speed      units.Speed
	Weight     units.Weight
	Height     units.Height
	Width      units.Width
	Length     units.Length
	OneWay     bool // true if travel is restricted to the way's node order
	ReverseWay bool // true if oneway is reversed relative to node order
	Roundabout bool
	Name       string
}

// Interpret turns a way's (already rule-rewritten) tags into a
// WayProfile, following the highway/access/oneway logic of
// osmparser.c's way-tag handling loop.
func Interpret(tags map[string]string) (WayProfile, bool) {
	highwayTag, ok := tags["highway"]
	if !ok {
		return WayProfile{}, false
	}
	hw, ok := units.ParseHighway(highwayTag)
	if !ok {
		return WayProfile{}, false
	}

	wp := WayProfile{
		Highway: hw,
		Allow:   defaultAllowForHighway(hw),
		Name:    tags["name"],
	}

	if v, ok := tags["oneway"]; ok {
		switch strings.ToLower(v) {
		case "yes", "true", "1":
			wp.OneWay = true
		case "-1", "reverse":
			wp.OneWay = true
			wp.ReverseWay = true
		}
	}

	if v, ok := tags["junction"]; ok && strings.ToLower(v) == "roundabout" {
		wp.Roundabout = true
		wp.OneWay = true
	}

	wp.Allow = applyAccess(wp.Allow, tags)
	wp.Props = applyProperties(tags)

	if v, ok := tags["maxspeed"]; ok {
		if kph, ok := parseLeadingFloat(v); ok {
			wp.Speed = units.KPHToSpeed(int(kph))
		}
	}
	if v, ok := tags["maxweight"]; ok {
		if t, ok := parseLeadingFloat(v); ok {
			wp.Weight = units.TonnesToWeight(t)
		}
	}
	if v, ok := tags["maxheight"]; ok {
		if m, ok := parseLeadingFloat(v); ok {
			wp.Height = units.MetresToHeight(m)
		}
	}
	if v, ok := tags["maxwidth"]; ok {
		if m, ok := parseLeadingFloat(v); ok {
			wp.Width = units.MetresToWidth(m)
		}
	}
	if v, ok := tags["maxlength"]; ok {
		if m, ok := parseLeadingFloat(v); ok {
			wp.Length = units.MetresToLength(m)
		}
	}

	return wp, true
}

func defaultAllowForHighway(hw units.Highway) units.Transports {
	switch hw {
	case units.HighwayMotorway:
		return units.TransportsAll &^ (units.TransportFoot.Bit() | units.TransportBicycle.Bit() | units.TransportHorse.Bit())
	case units.HighwayPath, units.HighwayTrack, units.HighwaySteps:
		return units.TransportFoot.Bit() | units.TransportBicycle.Bit() | units.TransportHorse.Bit()
	case units.HighwayCycleway:
		return units.TransportFoot.Bit() | units.TransportBicycle.Bit()
	case units.HighwayFerry:
		return units.TransportsAll
	default:
		return units.TransportsAll
	}
}

// applyAccess narrows allow using access=*, and per-transport tags
// such as foot=*, bicycle=*, motorcar=* (osmparser.c's
// access-tag precedence: specific transport tags win over the
// generic access tag).
func applyAccess(allow units.Transports, tags map[string]string) units.Transports {
	if v, ok := tags["access"]; ok && isNegative(v) {
		allow = 0
	}
	for _, t := range units.TransportList() {
		tr, _ := units.ParseTransport(t)
		if v, ok := tags[t]; ok {
			if isNegative(v) {
				allow &^= tr.Bit()
			} else if isPositive(v) {
				allow |= tr.Bit()
			}
		}
	}
	return allow
}

func applyProperties(tags map[string]string) units.Properties {
	var props units.Properties
	if v, ok := tags["surface"]; ok {
		switch v {
		case "paved", "asphalt", "concrete", "paving_stones":
			props |= units.PropertyPaved.Bit()
		}
	}
	if v, ok := tags["bridge"]; ok && isPositive(v) {
		props |= units.PropertyBridge.Bit()
	}
	if v, ok := tags["tunnel"]; ok && isPositive(v) {
		props |= units.PropertyTunnel.Bit()
	}
	if v, ok := tags["foot"]; ok && isPositive(v) {
		props |= units.PropertyFootRoute.Bit()
	}
	if v, ok := tags["bicycle"]; ok && isPositive(v) {
		props |= units.PropertyBicycleRoute.Bit()
	}
	return props
}

func isNegative(v string) bool {
	switch strings.ToLower(v) {
	case "no", "private", "false", "0":
		return true
	}
	return false
}

func isPositive(v string) bool {
	switch strings.ToLower(v) {
	case "yes", "designated", "true", "1", "permissive":
		return true
	}
	return false
}

func parseLeadingFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] == '.' || s[end] == '-' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
