package units

// Property identifies a per-way boolean attribute consulted by profile
// scoring (spec.md section 4.I).
type Property uint8

const (
	PropertyNone Property = 0

	PropertyPaved        Property = 1
	PropertyMultilane    Property = 2
	PropertyBridge       Property = 3
	PropertyTunnel       Property = 4
	PropertyFootRoute    Property = 5
	PropertyBicycleRoute Property = 6

	// PropertyCount is one more than the number of defined properties.
	PropertyCount = 7
)

// Properties is a bitmask of properties.
type Properties uint8

// PropertiesAll is the bitmask with every defined property set.
const PropertiesAll Properties = 0xff

// Bit returns the single-property bitmask for p.
func (p Property) Bit() Properties {
	if p == PropertyNone {
		return 0
	}
	return 1 << (p - 1)
}

var propertyNames = [...]string{
	PropertyPaved:        "paved",
	PropertyMultilane:    "multilane",
	PropertyBridge:       "bridge",
	PropertyTunnel:       "tunnel",
	PropertyFootRoute:    "footroute",
	PropertyBicycleRoute: "bicycleroute",
}

// Name returns the canonical name of a property.
func (p Property) Name() string {
	if int(p) >= len(propertyNames) {
		return ""
	}
	return propertyNames[p]
}

// ParseProperty maps a tagging-rule property name to a Property.
func ParseProperty(name string) (Property, bool) {
	for i, n := range propertyNames {
		if i == 0 {
			continue
		}
		if n == name {
			return Property(i), true
		}
	}
	return PropertyNone, false
}

// PropertyList returns the names of every defined property.
func PropertyList() []string {
	out := make([]string, 0, PropertyCount-1)
	for i := 1; i < len(propertyNames); i++ {
		out = append(out, propertyNames[i])
	}
	return out
}

// Names renders a properties bitmask as a comma-separated list.
func (ps Properties) Names() string {
	s := ""
	for p := Property(1); p < PropertyCount; p++ {
		if ps&p.Bit() != 0 {
			if s != "" {
				s += ","
			}
			s += p.Name()
		}
	}
	return s
}
