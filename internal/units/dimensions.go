package units

// Speed is a way's speed limit, in km/h.
type Speed uint8

// Weight is a way's maximum weight, in steps of 0.2 tonnes.
type Weight uint8

// Height is a way's maximum height, in steps of 0.1 metres.
type Height uint8

// Width is a way's maximum width, in steps of 0.1 metres.
type Width uint8

// Length is a way's maximum length, in steps of 0.1 metres.
type Length uint8

// KPHToSpeed converts km/h to a Speed.
func KPHToSpeed(kph int) Speed { return Speed(kph) }

// SpeedToKPH converts a Speed back to km/h.
func SpeedToKPH(s Speed) int { return int(s) }

// TonnesToWeight converts tonnes to a Weight.
func TonnesToWeight(tonnes float64) Weight { return Weight(tonnes * 5) }

// WeightToTonnes converts a Weight back to tonnes.
func WeightToTonnes(w Weight) float64 { return float64(w) / 5.0 }

// MetresToHeight converts metres to a Height.
func MetresToHeight(m float64) Height { return Height(m * 10) }

// HeightToMetres converts a Height back to metres.
func HeightToMetres(h Height) float64 { return float64(h) / 10.0 }

// MetresToWidth converts metres to a Width.
func MetresToWidth(m float64) Width { return Width(m * 10) }

// WidthToMetres converts a Width back to metres.
func WidthToMetres(w Width) float64 { return float64(w) / 10.0 }

// MetresToLength converts metres to a Length.
func MetresToLength(m float64) Length { return Length(m * 10) }

// LengthToMetres converts a Length back to metres.
func LengthToMetres(l Length) float64 { return float64(l) / 10.0 }
