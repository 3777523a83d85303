package units

// Transport identifies a mode of travel.
type Transport uint8

const (
	TransportNone Transport = 0

	TransportFoot       Transport = 1
	TransportHorse      Transport = 2
	TransportWheelchair Transport = 3
	TransportBicycle    Transport = 4
	TransportMoped      Transport = 5
	TransportMotorbike  Transport = 6
	TransportMotorcar   Transport = 7
	TransportGoods      Transport = 8
	TransportHGV        Transport = 9
	TransportPSV        Transport = 10

	// TransportCount is one more than the number of transport modes.
	TransportCount = 11
)

// Transports is a bitmask of transport modes.
type Transports uint16

// TransportsAll is the bitmask with every defined transport set.
const TransportsAll Transports = 0xffff

// Bit returns the single-mode bitmask for t.
func (t Transport) Bit() Transports {
	if t == TransportNone {
		return 0
	}
	return 1 << (t - 1)
}

var transportNames = [...]string{
	TransportFoot:       "foot",
	TransportHorse:      "horse",
	TransportWheelchair: "wheelchair",
	TransportBicycle:    "bicycle",
	TransportMoped:      "moped",
	TransportMotorbike:  "motorbike",
	TransportMotorcar:   "motorcar",
	TransportGoods:      "goods",
	TransportHGV:        "hgv",
	TransportPSV:        "psv",
}

// Name returns the canonical name of a transport mode.
func (t Transport) Name() string {
	if int(t) >= len(transportNames) {
		return ""
	}
	return transportNames[t]
}

// ParseTransport maps a profile/CLI transport name to a Transport.
func ParseTransport(name string) (Transport, bool) {
	for i, n := range transportNames {
		if i == 0 {
			continue
		}
		if n == name {
			return Transport(i), true
		}
	}
	return TransportNone, false
}

// TransportList returns the names of every defined transport mode.
func TransportList() []string {
	out := make([]string, 0, TransportCount-1)
	for i := 1; i < len(transportNames); i++ {
		out = append(out, transportNames[i])
	}
	return out
}

// Names renders a transports bitmask as a comma-separated list, for
// logging and error-log formatting.
func (ts Transports) Names() string {
	s := ""
	for t := Transport(1); t < TransportCount; t++ {
		if ts&t.Bit() != 0 {
			if s != "" {
				s += ","
			}
			s += t.Name()
		}
	}
	return s
}
