// Package profilexml loads named routing profiles from the profiles
// XML file router's --profiles flag points at (spec.md section 4.I),
// turning each <profile> element into a normalized internal/profile.Profile.
package profilexml

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"

	"github.com/routino-go/routino/internal/profile"
	"github.com/routino-go/routino/internal/units"
)

// speedElem is one <speed highway="..." kph="..."/> entry.
type speedElem struct {
	Highway string `xml:"highway,attr"`
	KPH     string `xml:"kph,attr"`
}

// preferenceElem is one <preference highway="..." percent="..."/> entry.
type preferenceElem struct {
	Highway string `xml:"highway,attr"`
	Percent string `xml:"percent,attr"`
}

// propertyElem is one <property type="..." percent="..."/> entry.
type propertyElem struct {
	Type    string `xml:"type,attr"`
	Percent string `xml:"percent,attr"`
}

type limitElem struct {
	Limit string `xml:"limit,attr"`
}

type obeyElem struct {
	Obey string `xml:"obey,attr"`
}

type restrictionsElem struct {
	Oneway obeyElem  `xml:"oneway"`
	Turns  obeyElem  `xml:"turns"`
	Weight limitElem `xml:"weight"`
	Height limitElem `xml:"height"`
	Width  limitElem `xml:"width"`
	Length limitElem `xml:"length"`
}

// profileElem is one <profile> entry, matching original_source's
// profiles.c xmltag tree (speedsType/preferencesType/propertiesType/
// restrictionsType) element-for-element.
type profileElem struct {
	Name         string           `xml:"name,attr"`
	Transport    string           `xml:"transport,attr"`
	Speeds       []speedElem      `xml:"speeds>speed"`
	Preferences  []preferenceElem `xml:"preferences>preference"`
	Properties   []propertyElem   `xml:"properties>property"`
	Restrictions restrictionsElem `xml:"restrictions"`
}

type profilesDoc struct {
	XMLName  xml.Name      `xml:"routino-profiles"`
	Profiles []profileElem `xml:"profile"`
}

// Load parses the profiles XML file at path and returns every profile
// it defines, keyed by name. The caller picks the named profile it
// wants and calls Profile.Normalize against the open database before
// routing with it -- Load only parses the raw, un-normalized
// preferences (spec.md section 4.I steps 1-5 run afterward).
func Load(path string) (map[string]*profile.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profilexml: reading %s: %w", path, err)
	}
	var doc profilesDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("profilexml: parsing %s: %w", path, err)
	}

	out := make(map[string]*profile.Profile, len(doc.Profiles))
	for _, pe := range doc.Profiles {
		p, err := parseProfile(pe)
		if err != nil {
			return nil, fmt.Errorf("profilexml: profile %q: %w", pe.Name, err)
		}
		out[p.Name] = p
	}
	return out, nil
}

func parseProfile(pe profileElem) (*profile.Profile, error) {
	transport, ok := units.ParseTransport(pe.Transport)
	if !ok {
		return nil, fmt.Errorf("unknown transport %q", pe.Transport)
	}

	p := &profile.Profile{Name: pe.Name, Transport: transport}

	for _, s := range pe.Speeds {
		h, ok := units.ParseHighway(s.Highway)
		if !ok {
			return nil, fmt.Errorf("unknown highway %q in <speed>", s.Highway)
		}
		kph, err := strconv.ParseFloat(s.KPH, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid kph %q: %w", s.KPH, err)
		}
		p.Speed[h] = units.KPHToSpeed(int(kph))
	}

	for _, pr := range pe.Preferences {
		h, ok := units.ParseHighway(pr.Highway)
		if !ok {
			return nil, fmt.Errorf("unknown highway %q in <preference>", pr.Highway)
		}
		pct, err := strconv.ParseFloat(pr.Percent, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid percent %q: %w", pr.Percent, err)
		}
		p.HighwayPref[h] = pct
	}

	for _, prop := range pe.Properties {
		prp, ok := units.ParseProperty(prop.Type)
		if !ok {
			return nil, fmt.Errorf("unknown property %q in <property>", prop.Type)
		}
		pct, err := strconv.ParseFloat(prop.Percent, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid percent %q: %w", prop.Percent, err)
		}
		p.PropsYes[prp] = pct
	}

	p.ObeyOneway = pe.Restrictions.Oneway.Obey == "yes"
	p.ObeyTurns = pe.Restrictions.Turns.Obey == "yes"

	if lim := pe.Restrictions.Weight.Limit; lim != "" {
		v, err := strconv.ParseFloat(lim, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight limit %q: %w", lim, err)
		}
		p.Weight = units.TonnesToWeight(v)
	}
	if lim := pe.Restrictions.Height.Limit; lim != "" {
		v, err := strconv.ParseFloat(lim, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid height limit %q: %w", lim, err)
		}
		p.Height = units.MetresToHeight(v)
	}
	if lim := pe.Restrictions.Width.Limit; lim != "" {
		v, err := strconv.ParseFloat(lim, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid width limit %q: %w", lim, err)
		}
		p.Width = units.MetresToWidth(v)
	}
	if lim := pe.Restrictions.Length.Limit; lim != "" {
		v, err := strconv.ParseFloat(lim, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid length limit %q: %w", lim, err)
		}
		p.Length = units.MetresToLength(v)
	}

	return p, nil
}
