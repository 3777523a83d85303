// Package dump renders a computed router.Route as GPX, HTML, or plain
// text (router's --output-gpx/--output-html/--output-text flags), and
// renders the compact stores as GeoJSON-friendly debug dumps for
// filedumper (spec.md section 6's "statistics/visualiser dumpers",
// specified only through its interface to the core).
package dump

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/routino-go/routino/internal/router"
	"github.com/routino-go/routino/internal/store"
	"github.com/routino-go/routino/internal/units"
)

type gpxWpt struct {
	Lat float64 `xml:"lat,attr"`
	Lon float64 `xml:"lon,attr"`
}

type gpxTrkseg struct {
	Points []gpxWpt `xml:"trkpt"`
}

type gpxTrk struct {
	Name string    `xml:"name"`
	Seg  gpxTrkseg `xml:"trkseg"`
}

type gpxDoc struct {
	XMLName xml.Name `xml:"gpx"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	Trk     gpxTrk   `xml:"trk"`
}

// GPX renders route as a GPX 1.1 track: one trkpt per step, in visiting
// order, with no elevation (spec.md's height profile is a separate,
// optional concern this dumper does not attempt).
func GPX(route router.Route) ([]byte, error) {
	doc := gpxDoc{Version: "1.1", Creator: "routino"}
	doc.Trk.Name = "route"
	for _, step := range route.Steps {
		doc.Trk.Seg.Points = append(doc.Trk.Seg.Points, gpxWpt{
			Lat: units.LatLongToDegrees(step.Lat),
			Lon: units.LatLongToDegrees(step.Lon),
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("dump: encoding gpx: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Text renders route as a plain-text turn-by-turn listing: one line
// per step naming its way, the distance travelled to reach it, and a
// running total distance/duration.
func Text(route router.Route, ways wayNamer) string {
	var b strings.Builder
	var total units.Distance
	var totalDur units.Duration
	for i, step := range route.Steps {
		if step.Segment == units.NoIndex {
			fmt.Fprintf(&b, "%3d  start\n", i)
			continue
		}
		total += step.Distance
		totalDur += step.Duration
		name := ways.WayName(step.Way)
		fmt.Fprintf(&b, "%3d  %-30s %8.3f km   %8.1f min   (total %8.3f km, %6.1f min)\n",
			i, name, units.DistanceToKM(step.Distance), units.DurationToMinutes(step.Duration),
			units.DistanceToKM(total), units.DurationToMinutes(totalDur))
	}
	return b.String()
}

// HTML renders route as a minimal HTML turn-by-turn <table>: each row
// names the step's way and gives the running total distance and
// duration up to that step; unlike Text it does not show per-step
// distance or duration.
func HTML(route router.Route, ways wayNamer) string {
	var b strings.Builder
	b.WriteString("<html><body><table border=\"1\">\n")
	b.WriteString("<tr><th>#</th><th>way</th><th>distance (km)</th><th>duration (min)</th></tr>\n")
	var total units.Distance
	var totalDur units.Duration
	for i, step := range route.Steps {
		if step.Segment == units.NoIndex {
			fmt.Fprintf(&b, "<tr><td>%d</td><td colspan=\"3\">start</td></tr>\n", i)
			continue
		}
		total += step.Distance
		totalDur += step.Duration
		name := ways.WayName(step.Way)
		fmt.Fprintf(&b, "<tr><td>%d</td><td>%s</td><td>%.3f</td><td>%.1f</td></tr>\n",
			i, htmlEscape(name), units.DistanceToKM(total), units.DurationToMinutes(totalDur))
	}
	b.WriteString("</table></body></html>\n")
	return b.String()
}

// wayNamer resolves a way index to its display name, implemented by a
// small adapter over *store.Ways in cmd/router -- kept as a narrow
// interface here (rather than threading a *store.Ways and a Name call
// through every step) since GPX/Text/HTML only ever need the one method.
type wayNamer interface {
	WayName(way units.Index) string
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// Node renders a single compact node record as a fixed-field text
// line, matching filedumper's original --dump-nodes/--node=<id> debug
// output (original_source's filedumper.c dumps one record per line).
func Node(idx units.Index, n store.Node) string {
	return fmt.Sprintf("node %d: lat=%.7f lon=%.7f allow=%#x flags=%#x first-segment=%d",
		idx, units.LatLongToDegrees(n.Latitude), units.LatLongToDegrees(n.Longitude),
		uint16(n.Allow), uint16(n.Flags), n.FirstSegment)
}

// Segment renders a single compact segment record as a text line.
func Segment(idx units.Index, s store.Segment) string {
	return fmt.Sprintf("segment %d: node1=%d node2=%d way=%d distance=%.3fkm super=%v normal=%v",
		idx, s.Node1, s.Node2, s.Way, units.DistanceToKM(s.Distance.Metres()), s.IsSuper(), s.IsNormal())
}

// Way renders a single way record as a text line, including its name
// if one is stored.
func Way(idx units.Index, w store.Way, name string) string {
	return fmt.Sprintf("way %d: highway=%s allow=%#x name=%q", idx, w.Props.Highway.Name(), uint16(w.Props.Allow), name)
}

// geoFeature and geoFeatureCollection are the minimal subset of the
// GeoJSON FeatureCollection schema filedumper --visualizer needs: a
// LineString per segment, tagged with its way's highway class so a
// map viewer can style it.
type geoGeometry struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

type geoFeature struct {
	Type       string            `json:"type"`
	Geometry   geoGeometry       `json:"geometry"`
	Properties map[string]string `json:"properties"`
}

type geoFeatureCollection struct {
	Type     string       `json:"type"`
	Features []geoFeature `json:"features"`
}

// Visualize renders every segment in segs as one GeoJSON LineString
// feature, reading each endpoint's coordinates from nodes and each
// segment's highway class from ways -- filedumper --visualizer's
// debug map dump.
func Visualize(nodes *store.Nodes, segs *store.Segments, ways *store.Ways) ([]byte, error) {
	fc := geoFeatureCollection{Type: "FeatureCollection"}

	err := segs.Iterate(func(idx units.Index, s store.Segment) error {
		n1, err := nodes.Lookup(s.Node1, 1)
		if err != nil {
			return err
		}
		n2, err := nodes.Lookup(s.Node2, 1)
		if err != nil {
			return err
		}
		way, err := ways.Lookup(s.Way, 1)
		if err != nil {
			return err
		}

		fc.Features = append(fc.Features, geoFeature{
			Type: "Feature",
			Geometry: geoGeometry{
				Type: "LineString",
				Coordinates: [][]float64{
					{units.LatLongToDegrees(n1.Longitude), units.LatLongToDegrees(n1.Latitude)},
					{units.LatLongToDegrees(n2.Longitude), units.LatLongToDegrees(n2.Latitude)},
				},
			},
			Properties: map[string]string{
				"highway": way.Props.Highway.Name(),
				"super":   fmt.Sprintf("%v", s.IsSuper()),
			},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dump: visualizing segments: %w", err)
	}

	out, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("dump: encoding geojson: %w", err)
	}
	return out, nil
}
