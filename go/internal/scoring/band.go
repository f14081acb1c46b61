package scoring

// Band is the accepted cadence window [Target-Tolerance, Target+Tolerance], in strokes per minute.
type Band struct {
	Target    int `json:"target_cadence"`
	Tolerance int `json:"cadence_tolerance"`
}

// Contains reports whether cadence lies inside the band, bounds included.
func (b Band) Contains(cadence int) bool {
	return cadence >= b.Target-b.Tolerance && cadence <= b.Target+b.Tolerance
}

// InBand reports whether cadence is within tolerance of target.
func InBand(cadence, target, tolerance int) bool {
	return Band{Target: target, Tolerance: tolerance}.Contains(cadence)
}
