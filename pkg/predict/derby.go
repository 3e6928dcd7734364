package predict

// DerbyRegistry records rivalry pairings and their intensity on a 0..10
// scale. Pairs are symmetric: registering (a, b) also answers (b, a).
type DerbyRegistry struct {
	intensities map[[2]int64]float64
}

func NewDerbyRegistry() *DerbyRegistry {
	return &DerbyRegistry{intensities: make(map[[2]int64]float64)}
}

func pairKey(a, b int64) [2]int64 {
	if a > b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

// Register stores a rivalry. Intensity is clamped to 0..10; registering
// the same pair again overwrites the previous intensity.
func (d *DerbyRegistry) Register(teamA, teamB int64, intensity float64) {
	if teamA == teamB {
		return
	}
	if intensity < 0 {
		intensity = 0
	}
	if intensity > 10 {
		intensity = 10
	}
	d.intensities[pairKey(teamA, teamB)] = intensity
}

// IsDerby reports whether the fixture is a registered rivalry.
func (d *DerbyRegistry) IsDerby(teamA, teamB int64) bool {
	_, ok := d.intensities[pairKey(teamA, teamB)]
	return ok
}

// Intensity returns the rivalry intensity, 0 for unregistered pairs.
func (d *DerbyRegistry) Intensity(teamA, teamB int64) float64 {
	return d.intensities[pairKey(teamA, teamB)]
}
