package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"github.com/robert-malhotra/go-mwalib/mwalib"
)

func parseOrder(s string) (mwalib.Order, error) {
	switch strings.ToLower(s) {
	case "baseline":
		return mwalib.BaselineMajor, nil
	case "frequency":
		return mwalib.FrequencyMajor, nil
	}
	return 0, fmt.Errorf("unknown order %q (want baseline or frequency)", s)
}

// extractOptions are the flags of extract.
type extractOptions struct {
	order     string
	out       string
	timesteps string
	channels  string
	workers   int
	mmap      bool
	verify    bool
}

func (a *app) extractCmd() *cobra.Command {
	var opts extractOptions
	cmd := &cobra.Command{
		Use:   "extract <metafits> <data files or globs>...",
		Short: "Write visibilities as little-endian float32",
		Long: `Extract reads every present (timestep, coarse channel) pair in the
selected ranges and writes the blocks back to back, timestep by timestep and
channel by channel. Pairs without data are skipped. An output path ending in
.zst is zstd compressed.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExtract(cmd, args, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.order, "order", "baseline", "block layout: baseline or frequency")
	f.StringVarP(&opts.out, "out", "o", "", "output file; stdout when empty")
	f.StringVar(&opts.timesteps, "timesteps", "", "timestep index range a:b")
	f.StringVar(&opts.channels, "channels", "", "coarse channel index range a:b")
	f.IntVar(&opts.workers, "workers", 0, "concurrent reads; 0 uses every CPU")
	f.BoolVar(&opts.mmap, "mmap", false, "memory-map data files")
	f.BoolVar(&opts.verify, "verify", false, "check the DATASUM of every timestep HDU")
	return cmd
}

func (a *app) runExtract(cmd *cobra.Command, args []string, opts extractOptions) (err error) {
	order, err := parseOrder(opts.order)
	if err != nil {
		return err
	}
	files, err := expandPaths(args[1:])
	if err != nil {
		return err
	}
	openOpts := []mwalib.Option{
		mwalib.WithLogger(a.logger),
		mwalib.WithMmap(opts.mmap),
		mwalib.WithReadWorkers(opts.workers),
	}
	if opts.verify {
		openOpts = append(openOpts, mwalib.WithVerifyChecksums())
	}
	c, err := mwalib.OpenCorrelator(args[0], files, openOpts...)
	if err != nil {
		return err
	}
	defer c.Close()

	t0, t1, err := parseRange(opts.timesteps, c.NumTimeSteps())
	if err != nil {
		return fmt.Errorf("--timesteps: %w", err)
	}
	c0, c1, err := parseRange(opts.channels, c.NumCoarseChannels())
	if err != nil {
		return fmt.Errorf("--channels: %w", err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.out != "" {
		f, cerr := os.Create(opts.out)
		if cerr != nil {
			return cerr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	bw := bufio.NewWriter(w)
	var sink io.Writer = bw
	if strings.HasSuffix(opts.out, ".zst") {
		enc, zerr := zstd.NewWriter(bw)
		if zerr != nil {
			return zerr
		}
		defer func() {
			if cerr := enc.Close(); err == nil {
				err = cerr
			}
			if ferr := bw.Flush(); err == nil {
				err = ferr
			}
		}()
		sink = enc
	} else {
		defer func() {
			if ferr := bw.Flush(); err == nil {
				err = ferr
			}
		}()
	}

	n := c.BufferLen()
	bytes := make([]byte, 4*n)
	written := 0
	for t := t0; t < t1; t++ {
		reqs := make([]mwalib.ReadRequest, 0, c1-c0)
		for ch := c0; ch < c1; ch++ {
			if !c.IsPresent(t, ch) {
				a.logger.Warn("skipping pair without data", slog.Int("timestep", t), slog.Int("coarse_channel", ch))
				continue
			}
			reqs = append(reqs, mwalib.ReadRequest{
				TimeStep:      t,
				CoarseChannel: ch,
				Order:         order,
				Out:           make([]float32, n),
			})
		}
		if err := c.ReadBatch(cmd.Context(), reqs); err != nil {
			return err
		}
		for _, r := range reqs {
			for i, v := range r.Out {
				binary.LittleEndian.PutUint32(bytes[4*i:], math.Float32bits(v))
			}
			if _, err := sink.Write(bytes); err != nil {
				return err
			}
			written++
		}
	}
	a.logger.Info("extract done",
		slog.Int("blocks", written),
		slog.Int("floats_per_block", n),
		slog.String("order", order.String()))
	return nil
}
