package convert

import (
	"fmt"
	"slices"
)

// conjugatedPol maps each output product to its source product when a
// baseline is stored with its antennas swapped: V(a,b)pq = conj(V(b,a)qp).
var conjugatedPol = [Pols]int{0, 2, 1, 3}

// LegacyMap relates canonical baselines to the baselines written by the
// legacy correlator, which enumerates pairs of correlator slots rather than
// antenna indices.
type LegacyMap struct {
	source []int  // legacy baseline index per canonical baseline
	conj   []bool // legacy pair is (a2, a1)
}

// NewLegacyMap builds the mapping for antennas whose correlator slots are
// slots[antenna]. slots must be a permutation of 0..len(slots)-1.
func NewLegacyMap(slots []int) (*LegacyMap, error) {
	n := len(slots)
	sorted := slices.Clone(slots)
	slices.Sort(sorted)
	for i, s := range sorted {
		if s != i {
			return nil, fmt.Errorf("correlator slots %v are not a permutation of 0..%d", slots, n-1)
		}
	}

	m := &LegacyMap{
		source: make([]int, 0, n*(n+1)/2),
		conj:   make([]bool, 0, n*(n+1)/2),
	}
	for a1 := 0; a1 < n; a1++ {
		for a2 := a1; a2 < n; a2++ {
			s1, s2 := slots[a1], slots[a2]
			swapped := s1 > s2
			if swapped {
				s1, s2 = s2, s1
			}
			m.source = append(m.source, triangle(n, s1, s2))
			m.conj = append(m.conj, swapped)
		}
	}
	return m, nil
}

// SlotsFromInputs ranks antennas by the correlator input number of their X
// RF input, which is the order the legacy correlator assigns slots in.
// Ties keep antenna order.
func SlotsFromInputs(inputs []int) []int {
	order := make([]int, len(inputs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return inputs[a] - inputs[b] })
	slots := make([]int, len(inputs))
	for rank, ant := range order {
		slots[ant] = rank
	}
	return slots
}

// triangle returns the index of pair (i, j), i <= j, in upper-triangle
// order over n items.
func triangle(n, i, j int) int {
	return i*n - i*(i-1)/2 + (j - i)
}

// Baselines returns the number of baselines covered by the map.
func (m *LegacyMap) Baselines() int { return len(m.source) }

// Source returns the legacy baseline holding canonical baseline b and
// whether it is stored conjugated.
func (m *LegacyMap) Source(b int) (int, bool) { return m.source[b], m.conj[b] }

// FromLegacy converts a legacy block, stored [fine][legacy baseline][pol]
// [re, im], into order. The baseline reordering and conjugation happen in
// the same pass as the transpose.
func FromLegacy(src, dst []float32, order Order, d Dims, m *LegacyMap) error {
	if err := d.check(src, dst); err != nil {
		return err
	}
	if m.Baselines() != d.Baselines {
		return fmt.Errorf("%w: map covers %d baselines, block has %d", ErrLength, m.Baselines(), d.Baselines)
	}
	for b := 0; b < d.Baselines; b++ {
		lb, conj := m.source[b], m.conj[b]
		for f := 0; f < d.FineChans; f++ {
			s := d.offset(FrequencyMajor, lb, f)
			t := d.offset(order, b, f)
			if !conj {
				copy(dst[t:t+Pols*2], src[s:s+Pols*2])
				continue
			}
			for p, sp := range conjugatedPol {
				dst[t+p*2] = src[s+sp*2]
				dst[t+p*2+1] = -src[s+sp*2+1]
			}
		}
	}
	return nil
}

// ToLegacy lays a baseline-major block out as the legacy correlator does.
// It is the inverse of FromLegacy with BaselineMajor.
func ToLegacy(src, dst []float32, d Dims, m *LegacyMap) error {
	if err := d.check(src, dst); err != nil {
		return err
	}
	if m.Baselines() != d.Baselines {
		return fmt.Errorf("%w: map covers %d baselines, block has %d", ErrLength, m.Baselines(), d.Baselines)
	}
	for b := 0; b < d.Baselines; b++ {
		lb, conj := m.source[b], m.conj[b]
		for f := 0; f < d.FineChans; f++ {
			s := d.offset(BaselineMajor, b, f)
			t := d.offset(FrequencyMajor, lb, f)
			if !conj {
				copy(dst[t:t+Pols*2], src[s:s+Pols*2])
				continue
			}
			for p, sp := range conjugatedPol {
				dst[t+sp*2] = src[s+p*2]
				dst[t+sp*2+1] = -src[s+p*2+1]
			}
		}
	}
	return nil
}
