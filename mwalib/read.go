package mwalib

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/go-mwalib/internal/convert"
	"github.com/robert-malhotra/go-mwalib/internal/fits"
)

// Order is the in-memory layout Read produces.
type Order = convert.Order

const (
	// BaselineMajor is [baseline][fine channel][pol][re, im].
	BaselineMajor = convert.BaselineMajor
	// FrequencyMajor is [fine channel][baseline][pol][re, im].
	FrequencyMajor = convert.FrequencyMajor
)

// scratch holds one raw data unit and its decoded samples.
type scratch struct {
	raw     []byte
	samples []float32
}

var scratchPool sync.Pool

func (c *CorrelatorContext) getScratch(rawLen int) *scratch {
	s, _ := scratchPool.Get().(*scratch)
	if s == nil {
		s = &scratch{}
	}
	if cap(s.raw) < rawLen {
		s.raw = make([]byte, rawLen)
	}
	if cap(s.samples) < c.dims.Len() {
		s.samples = make([]float32, c.dims.Len())
	}
	s.raw = s.raw[:rawLen]
	s.samples = s.samples[:c.dims.Len()]
	return s
}

// Read fills out with the visibilities of timestep t and coarse channel ch
// in the given order. len(out) must equal BufferLen. out is left untouched
// when Read fails.
func (c *CorrelatorContext) Read(t, ch int, order Order, out []float32) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if t < 0 || t >= len(c.idx.timesteps) {
		return fmt.Errorf("%w: timestep %d (have %d)", ErrIndexOutOfRange, t, len(c.idx.timesteps))
	}
	if ch < 0 || ch >= len(c.idx.channels) {
		return fmt.Errorf("%w: coarse channel %d (have %d)", ErrIndexOutOfRange, ch, len(c.idx.channels))
	}
	if len(out) != c.dims.Len() {
		return fmt.Errorf("%w: buffer holds %d values, want %d", ErrBufferSizeMismatch, len(out), c.dims.Len())
	}
	loc := c.idx.lookup(t, ch)
	if loc.file < 0 {
		return fmt.Errorf("%w: timestep %d, coarse channel %d (receiver %d)",
			ErrDataNotAvailable, t, ch, c.idx.channels[ch].ReceiverChannel)
	}
	if order != BaselineMajor && order != FrequencyMajor {
		return fmt.Errorf("%w: %v", ErrUnknownOrder, order)
	}

	df := c.inv.Files[loc.file]
	hdu, err := df.File.HDU(int(loc.hdu))
	if err != nil {
		return fmt.Errorf("%s: %w", df.Name.Path, err)
	}

	s := c.getScratch(int(hdu.DataSize()))
	defer scratchPool.Put(s)
	if err := hdu.ReadFloat32(s.samples, s.raw); err != nil {
		if errors.Is(err, fits.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("%s HDU %d: %w", df.Name.Path, loc.hdu, err)
	}

	if c.legacy == nil {
		return convert.FromMWAX(s.samples, out, order, c.dims)
	}
	return convert.FromLegacy(s.samples, out, order, c.dims, c.legacy)
}

// ReadByBaseline returns timestep t of coarse channel ch in BaselineMajor
// order.
func (c *CorrelatorContext) ReadByBaseline(t, ch int) ([]float32, error) {
	return c.readAlloc(t, ch, BaselineMajor)
}

// ReadByFrequency returns timestep t of coarse channel ch in
// FrequencyMajor order.
func (c *CorrelatorContext) ReadByFrequency(t, ch int) ([]float32, error) {
	return c.readAlloc(t, ch, FrequencyMajor)
}

func (c *CorrelatorContext) readAlloc(t, ch int, order Order) ([]float32, error) {
	out := make([]float32, c.dims.Len())
	if err := c.Read(t, ch, order, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadRequest is one read of a batch. Err is set by ReadBatch.
type ReadRequest struct {
	TimeStep      int
	CoarseChannel int
	Order         Order
	Out           []float32
	Err           error
}

// ReadBatch runs reqs on up to WithReadWorkers goroutines. Each request
// records its own error and a failed request does not stop the others.
// Requests not started before ctx is done get ctx.Err(). The first error
// in request order is returned.
func (c *CorrelatorContext) ReadBatch(ctx context.Context, reqs []ReadRequest) error {
	var g errgroup.Group
	g.SetLimit(c.opts.readWorkers)

	for i := range reqs {
		r := &reqs[i]
		if err := ctx.Err(); err != nil {
			r.Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				r.Err = err
				return nil
			}
			r.Err = c.Read(r.TimeStep, r.CoarseChannel, r.Order, r.Out)
			return nil
		})
	}
	g.Wait()

	for i := range reqs {
		if reqs[i].Err != nil {
			return fmt.Errorf("request %d (timestep %d, coarse channel %d): %w",
				i, reqs[i].TimeStep, reqs[i].CoarseChannel, reqs[i].Err)
		}
	}
	return nil
}
