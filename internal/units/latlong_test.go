package units

import "testing"

func TestLatLongRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		degree float64
	}{
		{"zero", 0},
		{"london", 51.5074},
		{"negative", -33.8688},
		{"near-pole", 89.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ll := DegreesToLatLong(tt.degree)

			bin := ToBin(ll)
			off := ToOff(ll)

			reconstructed := BinToLatLong(bin) + OffToLatLong(off)
			if reconstructed != ll {
				t.Fatalf("round trip mismatch: got %d, want %d", reconstructed, ll)
			}
		})
	}
}

func TestDistanceFlags(t *testing.T) {
	d := Distance(150).WithFlags(OneWay1To2 | SegmentNormal)

	if got := d.Metres(); got != 150 {
		t.Fatalf("Metres() = %d, want 150", got)
	}
	if d.Flags() != OneWay1To2|SegmentNormal {
		t.Fatalf("Flags() = %#x, want %#x", d.Flags(), OneWay1To2|SegmentNormal)
	}
	if d.IsArea() {
		t.Fatalf("IsArea() = true for a 150m segment")
	}

	area := Distance(0).WithFlags(SegmentNormal)
	if !area.IsArea() {
		t.Fatalf("IsArea() = false for a zero-distance segment")
	}
}

func TestGreatCircleMetres(t *testing.T) {
	// Roughly one degree of latitude, ~111km.
	lat1 := DegreesToRadians(0)
	lat2 := DegreesToRadians(1)
	got := GreatCircleMetres(lat1, 0, lat2, 0)
	if got < 110_000 || got > 112_000 {
		t.Fatalf("GreatCircleMetres(1 degree lat) = %f, want ~111000", got)
	}
}
