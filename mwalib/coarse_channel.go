package mwalib

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/robert-malhotra/go-mwalib/internal/gpubox"
)

// CoarseChannel is one coarse frequency channel.
type CoarseChannel struct {
	Index           int // position in the table it belongs to
	CorrelatorIndex int // position in correlator output order
	ReceiverChannel int
	ChannelID       int // file name id: receiver channel (MWAX) or gpubox number (legacy)
	WidthHz         int
	StartHz         int
	CentreHz        int
	EndHz           int
}

func (c CoarseChannel) String() string {
	return fmt.Sprintf("rec %d (id %d) %.3f MHz", c.ReceiverChannel, c.ChannelID, float64(c.CentreHz)/1e6)
}

// ExpectedCoarseChannels returns the channels a complete observation from
// correlator v would hold, ascending by receiver channel.
func (m *MetafitsContext) ExpectedCoarseChannels(v CorrelatorVersion) []CoarseChannel {
	order := gpubox.ChannelOrder(v, m.channelPlan)
	out := make([]CoarseChannel, 0, len(order))
	for _, rec := range slices.Sorted(slices.Values(m.channelPlan)) {
		ci := slices.Index(order, rec)
		id := rec
		if v != MWAX {
			id = ci + 1
		}
		c := CoarseChannel{
			Index:           len(out),
			CorrelatorIndex: ci,
			ReceiverChannel: rec,
			ChannelID:       id,
			WidthHz:         m.CoarseChanWidthHz,
			CentreHz:        rec * m.CoarseChanWidthHz,
		}
		c.StartHz = c.CentreHz - c.WidthHz/2
		c.EndHz = c.CentreHz + c.WidthHz/2
		out = append(out, c)
	}
	return out
}

// parseIntList parses metafits lists such as "109,110,111". Quotes and
// CONTINUE markers left in the value are ignored.
func parseIntList(s string) ([]int, error) {
	s = strings.NewReplacer("'", "", "&", "").Replace(s)
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("list item %q: %w", f, err)
		}
		out = append(out, v)
	}
	return out, nil
}
