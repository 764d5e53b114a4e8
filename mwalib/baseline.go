package mwalib

// Baseline is a pair of antenna indices with Antenna1 <= Antenna2.
type Baseline struct {
	Antenna1 int
	Antenna2 int
}

// NumBaselines returns the number of baselines, autocorrelations included,
// for n antennas.
func NumBaselines(n int) int {
	return n * (n + 1) / 2
}

func buildBaselines(n int) []Baseline {
	out := make([]Baseline, 0, NumBaselines(n))
	for a1 := 0; a1 < n; a1++ {
		for a2 := a1; a2 < n; a2++ {
			out = append(out, Baseline{Antenna1: a1, Antenna2: a2})
		}
	}
	return out
}
