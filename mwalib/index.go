package mwalib

import (
	"fmt"
	"slices"

	"github.com/robert-malhotra/go-mwalib/internal/gpubox"
)

// location is where one (timestep, coarse channel) block is stored. file
// is -1 when the pair has no data.
type location struct {
	file int32
	hdu  int32
}

// index maps (timestep, coarse channel) to a data file HDU. Cells are
// stored row-major by timestep. It is immutable once built.
type index struct {
	timesteps []TimeStep
	channels  []CoarseChannel
	cells     []location
	missing   int
}

// buildIndex sorts the distinct timesteps and channels of entries and
// records where each pair is stored. channelOf resolves an entry's file
// channel id to its position in expected.
func buildIndex(entries []gpubox.Entry, expected []CoarseChannel, channelOf map[int]int, m *MetafitsMetadata) (*index, error) {
	times := make([]int64, 0, len(entries))
	chans := make([]int, 0, len(expected))
	for _, e := range entries {
		times = append(times, e.UnixTimeMs)
		chans = append(chans, channelOf[e.Channel])
	}
	slices.Sort(times)
	times = slices.Compact(times)
	slices.Sort(chans)
	chans = slices.Compact(chans)
	if len(times) == 0 || len(chans) == 0 {
		return nil, fmt.Errorf("%w: %d timesteps, %d coarse channels", ErrEmptyObservation, len(times), len(chans))
	}

	idx := &index{
		timesteps: make([]TimeStep, len(times)),
		channels:  make([]CoarseChannel, len(chans)),
		cells:     make([]location, len(times)*len(chans)),
	}
	for i, ms := range times {
		idx.timesteps[i] = TimeStep{
			UnixTimeMs: ms,
			GPSTimeMs:  m.ScheduledStartGPSMs + (ms - m.ScheduledStartUnixMs),
		}
	}
	for i, pos := range chans {
		c := expected[pos]
		c.Index = i
		idx.channels[i] = c
	}
	for i := range idx.cells {
		idx.cells[i] = location{file: -1, hdu: -1}
	}

	for _, e := range entries {
		t, _ := slices.BinarySearch(times, e.UnixTimeMs)
		c, _ := slices.BinarySearch(chans, channelOf[e.Channel])
		cell := &idx.cells[t*len(chans)+c]
		if cell.file >= 0 {
			return nil, fmt.Errorf("%w: timestep %d (unix ms %d) of coarse channel %d is held by two HDUs",
				ErrDuplicateFile, t, e.UnixTimeMs, idx.channels[c].ReceiverChannel)
		}
		*cell = location{file: int32(e.File), hdu: int32(e.HDU)}
	}
	for _, cell := range idx.cells {
		if cell.file < 0 {
			idx.missing++
		}
	}
	return idx, nil
}

func (idx *index) lookup(t, c int) location {
	return idx.cells[t*len(idx.channels)+c]
}

func (idx *index) present(t, c int) bool {
	if t < 0 || t >= len(idx.timesteps) || c < 0 || c >= len(idx.channels) {
		return false
	}
	return idx.lookup(t, c).file >= 0
}

// Pair names one timestep and coarse channel by table index.
type Pair struct {
	TimeStep      int
	CoarseChannel int
}

func (idx *index) missingPairs() []Pair {
	out := make([]Pair, 0, idx.missing)
	for t := range idx.timesteps {
		for c := range idx.channels {
			if !idx.present(t, c) {
				out = append(out, Pair{TimeStep: t, CoarseChannel: c})
			}
		}
	}
	return out
}
