package tagging

import (
	"testing"

	"github.com/paulmach/osm"
	"github.com/routino-go/routino/internal/units"
)

func osmTagsFor(m map[string]string) osm.Tags {
	var tags osm.Tags
	for k, v := range m {
		tags = append(tags, osm.Tag{Key: k, Value: v})
	}
	return tags
}

func TestInterpretBasicHighway(t *testing.T) {
	tags := map[string]string{
		"highway": "residential",
		"name":    "High Street",
		"oneway":  "yes",
	}

	wp, ok := Interpret(tags)
	if !ok {
		t.Fatalf("Interpret returned ok=false for a tagged highway")
	}
	if wp.Highway != units.HighwayResidential {
		t.Fatalf("Highway = %v, want residential", wp.Highway)
	}
	if !wp.OneWay || wp.ReverseWay {
		t.Fatalf("OneWay/ReverseWay = %v/%v, want true/false", wp.OneWay, wp.ReverseWay)
	}
	if wp.Name != "High Street" {
		t.Fatalf("Name = %q", wp.Name)
	}
}

func TestInterpretNoHighwayTag(t *testing.T) {
	if _, ok := Interpret(map[string]string{"building": "yes"}); ok {
		t.Fatalf("Interpret returned ok=true for a non-highway way")
	}
}

func TestInterpretAccessDenial(t *testing.T) {
	tags := map[string]string{
		"highway": "motorway",
		"access":  "no",
		"bicycle": "yes",
	}
	wp, ok := Interpret(tags)
	if !ok {
		t.Fatalf("Interpret returned ok=false")
	}
	if wp.Allow&units.TransportBicycle.Bit() == 0 {
		t.Fatalf("expected bicycle access override to re-allow bicycles despite access=no")
	}
	if wp.Allow&units.TransportMotorcar.Bit() != 0 {
		t.Fatalf("expected access=no to deny motorcar, which has no override tag")
	}
}

func TestApplyRules(t *testing.T) {
	rs := &RuleSet{
		Rules: []Rule{
			{
				Key: "highway", Val: "motorway_link",
				Actions: []Action{{Kind: "set", Key: "highway", Val: "motorway"}},
			},
		},
	}

	tags := osmTagsFor(map[string]string{"highway": "motorway_link"})
	m := rs.Apply(tags)
	if m["highway"] != "motorway" {
		t.Fatalf("Apply did not rewrite highway tag: %v", m)
	}
}
