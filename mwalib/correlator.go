package mwalib

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/robert-malhotra/go-mwalib/internal/convert"
	"github.com/robert-malhotra/go-mwalib/internal/gpubox"
	"github.com/robert-malhotra/go-mwalib/internal/logging"
)

// CorrelatorMetadata holds the correlator-level values of an observation.
type CorrelatorMetadata struct {
	Version        CorrelatorVersion
	StartUnixMs    int64 // first timestep
	EndUnixMs      int64 // last timestep plus one integration
	StartGPSMs     int64
	EndGPSMs       int64
	DurationMs     int64
	IntegrationMs  int64
	NumTimeSteps   int
	NumCoarseChans int
	NumBatches     int
	NumDataFiles   int
	NumMissing     int // (timestep, coarse channel) pairs without data
	BufferLen      int // float32 values per Read
	DataFiles      []string
}

// CorrelatorContext joins a metafits file with the correlator data files
// of one observation. Reads of different pairs may run concurrently.
type CorrelatorContext struct {
	metafits *MetafitsContext
	inv      *gpubox.Inventory
	idx      *index
	dims     convert.Dims
	legacy   *convert.LegacyMap // nil for MWAX
	opts     *options
	logger   *slog.Logger
	meta     CorrelatorMetadata
	closed   atomic.Bool
}

// OpenCorrelator opens metafits and the data files in files, which may be
// given in any order. On error every opened file is closed again.
func OpenCorrelator(metafits string, files []string, opts ...Option) (*CorrelatorContext, error) {
	o := applyOptions(opts)
	m, err := OpenMetafits(metafits, opts...)
	if err != nil {
		return nil, err
	}
	logger := logging.Default(o.logger).With("component", "correlator", "obsid", m.ObsID)

	inv, err := gpubox.Build(files, gpubox.Config{
		ObsID:         m.ObsID,
		IntegrationMs: m.IntegrationTimeMs,
		Mmap:          o.mmap,
		Verify:        o.verify,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("data files opened",
		slog.String("version", inv.Version.String()),
		slog.Int("files", len(inv.Files)),
		slog.Int("batches", inv.Batches))

	c, err := newCorrelator(m, inv, o, logger)
	if err != nil {
		inv.Close()
		return nil, err
	}
	return c, nil
}

func newCorrelator(m *MetafitsContext, inv *gpubox.Inventory, o *options, logger *slog.Logger) (*CorrelatorContext, error) {
	c := &CorrelatorContext{
		metafits: m,
		inv:      inv,
		dims:     convert.Dims{Baselines: m.NumBaselines, FineChans: m.FineChansPerCoarse},
		opts:     o,
		logger:   logger,
	}

	if len(inv.Entries) == 0 {
		return nil, fmt.Errorf("%w: %d data files hold no timestep HDUs", ErrEmptyObservation, len(inv.Files))
	}
	want := c.diskShape(inv.Version)
	if !slices.Equal(inv.Shape, want) {
		return nil, fmt.Errorf("%w: %s HDU 1 has NAXIS %v, metafits implies %v (%d baselines, %d fine channels)",
			ErrInconsistentHduSize, inv.Files[0].Name.Path, inv.Shape, want, c.dims.Baselines, c.dims.FineChans)
	}

	expected := m.ExpectedCoarseChannels(inv.Version)
	channelOf := make(map[int]int, len(expected))
	for i, ch := range expected {
		channelOf[ch.ChannelID] = i
	}
	for _, df := range inv.Files {
		if _, ok := channelOf[df.Name.Channel]; !ok {
			return nil, fmt.Errorf("%w: %s has channel %d, metafits lists receiver channels %v",
				ErrUnknownCoarseChannel, df.Name.Path, df.Name.Channel, m.channelPlan)
		}
	}

	idx, err := buildIndex(inv.Entries, expected, channelOf, &m.MetafitsMetadata)
	if err != nil {
		return nil, err
	}
	if idx.missing > 0 {
		if o.strictCoverage {
			return nil, fmt.Errorf("%w: %d of %d pairs missing, first %v",
				ErrIncompleteCoverage, idx.missing, len(idx.cells), idx.missingPairs()[0])
		}
		logger.Warn("incomplete coverage", slog.Int("missing_pairs", idx.missing))
	}
	c.idx = idx

	if inv.Version != MWAX {
		lm, err := convert.NewLegacyMap(m.antennaSlots())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMetadata, err)
		}
		c.legacy = lm
	}

	first, last := idx.timesteps[0], idx.timesteps[len(idx.timesteps)-1]
	c.meta = CorrelatorMetadata{
		Version:        inv.Version,
		StartUnixMs:    first.UnixTimeMs,
		EndUnixMs:      last.UnixTimeMs + m.IntegrationTimeMs,
		StartGPSMs:     first.GPSTimeMs,
		EndGPSMs:       last.GPSTimeMs + m.IntegrationTimeMs,
		IntegrationMs:  m.IntegrationTimeMs,
		NumTimeSteps:   len(idx.timesteps),
		NumCoarseChans: len(idx.channels),
		NumBatches:     inv.Batches,
		NumDataFiles:   len(inv.Files),
		NumMissing:     idx.missing,
		BufferLen:      c.dims.Len(),
	}
	c.meta.DurationMs = c.meta.EndUnixMs - c.meta.StartUnixMs
	for _, df := range inv.Files {
		c.meta.DataFiles = append(c.meta.DataFiles, df.Name.Path)
	}

	logger.Info("index built",
		slog.Int("timesteps", c.meta.NumTimeSteps),
		slog.Int("coarse_channels", c.meta.NumCoarseChans),
		slog.Int64("duration_ms", c.meta.DurationMs))
	return c, nil
}

// diskShape returns NAXIS1, NAXIS2 of a timestep HDU written by v.
func (c *CorrelatorContext) diskShape(v CorrelatorVersion) []int {
	if v == MWAX {
		return []int{c.dims.FineChans * convert.Pols * 2, c.dims.Baselines}
	}
	return []int{c.dims.Baselines * convert.Pols * 2, c.dims.FineChans}
}

// Metafits returns the metafits the context was opened with.
func (c *CorrelatorContext) Metafits() *MetafitsContext { return c.metafits }

// Version returns the correlator generation of the data files.
func (c *CorrelatorContext) Version() CorrelatorVersion { return c.meta.Version }

// Metadata returns a copy of the correlator-level values.
func (c *CorrelatorContext) Metadata() CorrelatorMetadata {
	md := c.meta
	md.DataFiles = slices.Clone(c.meta.DataFiles)
	return md
}

// NumTimeSteps returns the number of timesteps with data in any channel.
func (c *CorrelatorContext) NumTimeSteps() int { return len(c.idx.timesteps) }

// NumCoarseChannels returns the number of coarse channels with data.
func (c *CorrelatorContext) NumCoarseChannels() int { return len(c.idx.channels) }

// TimeStep returns timestep i. Timesteps ascend in time.
func (c *CorrelatorContext) TimeStep(i int) (TimeStep, error) {
	if i < 0 || i >= len(c.idx.timesteps) {
		return TimeStep{}, fmt.Errorf("%w: timestep %d (have %d)", ErrIndexOutOfRange, i, len(c.idx.timesteps))
	}
	return c.idx.timesteps[i], nil
}

// CoarseChannel returns coarse channel i. Channels ascend by receiver
// channel.
func (c *CorrelatorContext) CoarseChannel(i int) (CoarseChannel, error) {
	if i < 0 || i >= len(c.idx.channels) {
		return CoarseChannel{}, fmt.Errorf("%w: coarse channel %d (have %d)", ErrIndexOutOfRange, i, len(c.idx.channels))
	}
	return c.idx.channels[i], nil
}

// TimeSteps returns a copy of the timestep table.
func (c *CorrelatorContext) TimeSteps() []TimeStep { return slices.Clone(c.idx.timesteps) }

// CoarseChannels returns a copy of the coarse channel table.
func (c *CorrelatorContext) CoarseChannels() []CoarseChannel { return slices.Clone(c.idx.channels) }

// IsPresent reports whether timestep t of coarse channel ch has data.
// Out of range indices report false.
func (c *CorrelatorContext) IsPresent(t, ch int) bool {
	return c.idx.present(t, ch)
}

// MissingPairs lists the pairs without data, by timestep then channel.
func (c *CorrelatorContext) MissingPairs() []Pair {
	return c.idx.missingPairs()
}

// BufferLen returns the number of float32 values Read fills.
func (c *CorrelatorContext) BufferLen() int { return c.dims.Len() }

// Close closes the data files. Reads after Close fail with ErrClosed. Close
// must not run concurrently with Read.
func (c *CorrelatorContext) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.logger.Info("correlator closed")
	return c.inv.Close()
}

func (c *CorrelatorContext) String() string {
	var b strings.Builder
	md := c.meta
	fmt.Fprintf(&b, "CorrelatorContext (\n")
	fmt.Fprintf(&b, "    correlator version:    %s\n", md.Version)
	fmt.Fprintf(&b, "    obsid:                 %d\n", c.metafits.ObsID)
	fmt.Fprintf(&b, "    start (unix):          %.3f\n", float64(md.StartUnixMs)/1000)
	fmt.Fprintf(&b, "    end (unix):            %.3f\n", float64(md.EndUnixMs)/1000)
	fmt.Fprintf(&b, "    start (GPS):           %.3f\n", float64(md.StartGPSMs)/1000)
	fmt.Fprintf(&b, "    duration:              %.3f s\n", float64(md.DurationMs)/1000)
	fmt.Fprintf(&b, "    integration time:      %.3f s\n", float64(md.IntegrationMs)/1000)
	fmt.Fprintf(&b, "    timesteps:             %d\n", md.NumTimeSteps)
	fmt.Fprintf(&b, "    coarse channels:       %d\n", md.NumCoarseChans)
	for _, ch := range c.idx.channels {
		fmt.Fprintf(&b, "        %s\n", ch)
	}
	fmt.Fprintf(&b, "    missing pairs:         %d\n", md.NumMissing)
	fmt.Fprintf(&b, "    batches:               %d\n", md.NumBatches)
	fmt.Fprintf(&b, "    data files:            %d\n", md.NumDataFiles)
	fmt.Fprintf(&b, "    floats per read:       %d\n", md.BufferLen)
	b.WriteString(")")
	return b.String()
}
