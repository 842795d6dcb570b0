package ambient

// Reading is a single light measurement.
//
// Visible is the raw uint16 difference FullSpectrum - Infrared. When the
// infrared channel exceeds the full-spectrum one the subtraction wraps
// around; stock drivers compute the channel difference exactly this way, so
// the wrap is preserved here rather than clamped. Callers that need a
// guarded value should check FullSpectrum >= Infrared first.
type Reading struct {
	Infrared     uint16
	FullSpectrum uint16
	Visible      uint16
	Lux          float64
}

// SplitLuminosity splits a combined channel word into its infrared (high 16
// bits) and full-spectrum (low 16 bits) components.
func SplitLuminosity(combined uint32) (ir, full uint16) {
	return uint16(combined >> 16), uint16(combined & 0xFFFF)
}
