package gpubox

import "slices"

// legacySplit is the highest receiver channel the legacy correlator emits
// in ascending order. Channels above it come out reversed.
const legacySplit = 128

// ChannelOrder returns receivers in the order correlator v numbers its
// coarse channels.
func ChannelOrder(v Version, receivers []int) []int {
	if v == MWAX {
		return slices.Sorted(slices.Values(receivers))
	}
	var low, high []int
	for _, r := range receivers {
		if r <= legacySplit {
			low = append(low, r)
		} else {
			high = append(high, r)
		}
	}
	slices.Sort(low)
	slices.Sort(high)
	slices.Reverse(high)
	return append(low, high...)
}

// ChannelID returns the channel number v writes in file names for
// receiver channel rec, or false when rec is not in receivers.
func ChannelID(v Version, receivers []int, rec int) (int, bool) {
	pos := slices.Index(ChannelOrder(v, receivers), rec)
	if pos < 0 {
		return 0, false
	}
	if v == MWAX {
		return rec, true
	}
	return pos + 1, true
}
