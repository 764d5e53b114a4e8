package mwalib

import (
	"bytes"
	"errors"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/robert-malhotra/go-mwalib/internal/fits"
	"github.com/robert-malhotra/go-mwalib/internal/gpubox"
	"github.com/robert-malhotra/go-mwalib/internal/simulate"
)

const (
	startUnixMs = 1417468096000
	startGPSMs  = 1101503312000
)

func openCorrelator(t *testing.T, cfg simulate.Config, opts ...Option) *CorrelatorContext {
	t.Helper()
	obs := writeObservation(t, cfg)
	c, err := OpenCorrelator(obs.Metafits, obs.DataFiles, opts...)
	if err != nil {
		t.Fatalf("OpenCorrelator() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpenCorrelator(t *testing.T) {
	tests := []struct {
		name    string
		version CorrelatorVersion
		mmap    bool
	}{
		{"mwax", MWAX, false},
		{"mwax mmap", MWAX, true},
		{"legacy", Legacy, false},
		{"legacy mmap", Legacy, true},
		{"old legacy", OldLegacy, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := openCorrelator(t, simulate.Config{Version: tt.version, TimeSteps: 3}, WithMmap(tt.mmap))

			if c.Version() != tt.version {
				t.Errorf("Version() = %s, want %s", c.Version(), tt.version)
			}
			md := c.Metadata()
			if md.NumTimeSteps != 3 || md.NumCoarseChans != 2 || md.NumMissing != 0 || md.NumDataFiles != 2 {
				t.Errorf("Metadata() = %+v", md)
			}
			if md.StartUnixMs != startUnixMs || md.EndUnixMs != startUnixMs+1500 || md.DurationMs != 1500 {
				t.Errorf("span = %d..%d (%d ms)", md.StartUnixMs, md.EndUnixMs, md.DurationMs)
			}
			if md.StartGPSMs != startGPSMs || md.EndGPSMs != startGPSMs+1500 {
				t.Errorf("GPS span = %d..%d", md.StartGPSMs, md.EndGPSMs)
			}
			if md.BufferLen != c.BufferLen() || c.BufferLen() != 6*2*4*2 {
				t.Errorf("BufferLen = %d, %d", md.BufferLen, c.BufferLen())
			}

			for i, ts := range c.TimeSteps() {
				want := TimeStep{UnixTimeMs: startUnixMs + int64(i)*500, GPSTimeMs: startGPSMs + int64(i)*500}
				if ts != want {
					t.Errorf("timestep %d = %+v, want %+v", i, ts, want)
				}
			}
			for i, rec := range []int{109, 110} {
				ch, err := c.CoarseChannel(i)
				if err != nil || ch.ReceiverChannel != rec || ch.Index != i {
					t.Errorf("CoarseChannel(%d) = %+v, %v", i, ch, err)
				}
			}
			for ts := 0; ts < 3; ts++ {
				for ch := 0; ch < 2; ch++ {
					if !c.IsPresent(ts, ch) {
						t.Errorf("IsPresent(%d, %d) = false", ts, ch)
					}
				}
			}
			if c.Metafits().ObsID != simulate.DefaultObsID {
				t.Errorf("Metafits().ObsID = %d", c.Metafits().ObsID)
			}
		})
	}
}

func TestOpenCorrelatorFileOrder(t *testing.T) {
	obs := writeObservation(t, simulate.Config{
		Version:    Legacy,
		Channels:   []int{131, 109, 110, 140},
		TimeSteps:  5,
		BatchSteps: 2,
	})
	var want []TimeStep
	var wantChans []int
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 4; i++ {
		files := slices.Clone(obs.DataFiles)
		rng.Shuffle(len(files), func(a, b int) { files[a], files[b] = files[b], files[a] })

		c, err := OpenCorrelator(obs.Metafits, files)
		if err != nil {
			t.Fatalf("OpenCorrelator() error = %v", err)
		}
		var chans []int
		for _, ch := range c.CoarseChannels() {
			chans = append(chans, ch.ReceiverChannel)
		}
		steps := c.TimeSteps()
		if c.Metadata().NumBatches != 3 {
			t.Errorf("NumBatches = %d, want 3", c.Metadata().NumBatches)
		}
		c.Close()

		if !slices.IsSortedFunc(steps, func(a, b TimeStep) int { return int(a.UnixTimeMs - b.UnixTimeMs) }) || len(steps) != 5 {
			t.Errorf("timesteps = %v, want 5 ascending", steps)
		}
		for j := 1; j < len(steps); j++ {
			if steps[j] == steps[j-1] {
				t.Errorf("duplicate timestep %v", steps[j])
			}
		}
		if !slices.Equal(chans, []int{109, 110, 131, 140}) {
			t.Errorf("channels = %v, want ascending receivers", chans)
		}
		if i == 0 {
			want, wantChans = steps, chans
		} else if !slices.Equal(steps, want) || !slices.Equal(chans, wantChans) {
			t.Errorf("shuffle %d built different tables", i)
		}
	}
}

func TestPartialCoverage(t *testing.T) {
	cfg := simulate.Config{TimeSteps: 2, Coverage: map[int]int{110: 1}}
	c := openCorrelator(t, cfg)

	if c.NumTimeSteps() != 2 || c.NumCoarseChannels() != 2 {
		t.Fatalf("tables = %d timesteps, %d channels", c.NumTimeSteps(), c.NumCoarseChannels())
	}
	if c.IsPresent(1, 1) {
		t.Error("IsPresent(T1, B) = true")
	}
	if !c.IsPresent(0, 1) || !c.IsPresent(1, 0) {
		t.Error("present pairs reported absent")
	}
	if got := c.MissingPairs(); !slices.Equal(got, []Pair{{TimeStep: 1, CoarseChannel: 1}}) {
		t.Errorf("MissingPairs() = %v", got)
	}

	out := make([]float32, c.BufferLen())
	for i := range out {
		out[i] = 42
	}
	if err := c.Read(1, 1, BaselineMajor, out); !errors.Is(err, ErrDataNotAvailable) {
		t.Errorf("Read(T1, B) error = %v, want ErrDataNotAvailable", err)
	}
	for i, v := range out {
		if v != 42 {
			t.Fatalf("out[%d] = %v after failed read", i, v)
		}
	}
	if err := c.Read(0, 1, BaselineMajor, out); err != nil {
		t.Errorf("Read(T0, B) error = %v", err)
	}

	obs := writeObservation(t, cfg)
	_, err := OpenCorrelator(obs.Metafits, obs.DataFiles, WithStrictCoverage())
	if !errors.Is(err, ErrIncompleteCoverage) {
		t.Errorf("strict OpenCorrelator() error = %v, want ErrIncompleteCoverage", err)
	}
}

func TestIsPresentOutOfRange(t *testing.T) {
	c := openCorrelator(t, simulate.Config{})
	for _, p := range [][2]int{{-1, 0}, {0, -1}, {2, 0}, {0, 2}} {
		if c.IsPresent(p[0], p[1]) {
			t.Errorf("IsPresent(%d, %d) = true", p[0], p[1])
		}
	}
	if _, err := c.TimeStep(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("TimeStep(2) error = %v", err)
	}
	if _, err := c.CoarseChannel(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("CoarseChannel(-1) error = %v", err)
	}
}

// writeEmptyDataFile writes an MWAX data file with no timestep HDUs.
func writeEmptyDataFile(t *testing.T, dir string) string {
	t.Helper()
	name := gpubox.FileName{Version: MWAX, ObsID: simulate.DefaultObsID, DateTime: "20141201210816", Channel: 109}
	path := filepath.Join(dir, name.Name())
	w, err := fits.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	h := fits.NewHeader()
	h.Set("TIME", startUnixMs/1000, "")
	h.Set("CORR_VER", 2, "")
	if err := w.WritePrimary(h); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenCorrelatorErrors(t *testing.T) {
	tests := []struct {
		name  string
		files func(t *testing.T) (string, []string)
		want  error
	}{
		{
			"no files",
			func(t *testing.T) (string, []string) {
				return writeObservation(t, simulate.Config{}).Metafits, nil
			},
			ErrNoDataFiles,
		},
		{
			"obsid mismatch",
			func(t *testing.T) (string, []string) {
				a := writeObservation(t, simulate.Config{})
				b := writeObservation(t, simulate.Config{ObsID: 1101503320})
				return a.Metafits, append(a.DataFiles, b.DataFiles...)
			},
			ErrObsidMismatch,
		},
		{
			"mixed versions",
			func(t *testing.T) (string, []string) {
				a := writeObservation(t, simulate.Config{Version: MWAX})
				b := writeObservation(t, simulate.Config{Version: Legacy})
				return a.Metafits, append(a.DataFiles[:1], b.DataFiles...)
			},
			ErrMixedCorrelatorVersions,
		},
		{
			"hdu size",
			func(t *testing.T) (string, []string) {
				a := writeObservation(t, simulate.Config{Antennas: 3})
				b := writeObservation(t, simulate.Config{Antennas: 4})
				return a.Metafits, b.DataFiles
			},
			ErrInconsistentHduSize,
		},
		{
			"fine channel count",
			func(t *testing.T) (string, []string) {
				a := writeObservation(t, simulate.Config{FineChans: 2})
				b := writeObservation(t, simulate.Config{FineChans: 4})
				return a.Metafits, b.DataFiles
			},
			ErrInconsistentHduSize,
		},
		{
			"duplicate file",
			func(t *testing.T) (string, []string) {
				a := writeObservation(t, simulate.Config{})
				return a.Metafits, append(a.DataFiles, a.DataFiles[0])
			},
			ErrDuplicateFile,
		},
		{
			"channel outside plan",
			func(t *testing.T) (string, []string) {
				a := writeObservation(t, simulate.Config{Channels: []int{109, 110}})
				b := writeObservation(t, simulate.Config{Channels: []int{111}})
				return a.Metafits, append(a.DataFiles, b.DataFiles...)
			},
			ErrUnknownCoarseChannel,
		},
		{
			"unrecognised name",
			func(t *testing.T) (string, []string) {
				a := writeObservation(t, simulate.Config{})
				return a.Metafits, []string{filepath.Join(filepath.Dir(a.Metafits), "1101503312_flags.fits")}
			},
			ErrUnrecognisedFileFormat,
		},
		{
			"no timesteps",
			func(t *testing.T) (string, []string) {
				a := writeObservation(t, simulate.Config{DataChannels: []int{}})
				return a.Metafits, []string{writeEmptyDataFile(t, t.TempDir())}
			},
			ErrEmptyObservation,
		},
		{
			"bad metafits",
			func(t *testing.T) (string, []string) {
				a := writeObservation(t, simulate.Config{EditMetafits: func(h *fits.Header) { h.Delete("INTTIME") }})
				return a.Metafits, a.DataFiles
			},
			ErrMetadata,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metafits, files := tt.files(t)
			c, err := OpenCorrelator(metafits, files)
			if !errors.Is(err, tt.want) {
				t.Fatalf("OpenCorrelator() error = %v, want %v", err, tt.want)
			}
			if c != nil {
				t.Error("OpenCorrelator() returned a context with an error")
			}
		})
	}
}

func TestCorrelatorClose(t *testing.T) {
	c := openCorrelator(t, simulate.Config{})
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	out := make([]float32, c.BufferLen())
	if err := c.Read(0, 0, BaselineMajor, out); !errors.Is(err, ErrClosed) {
		t.Errorf("Read after Close error = %v, want ErrClosed", err)
	}
}

func TestCorrelatorLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := openCorrelator(t, simulate.Config{Coverage: map[int]int{110: 1}}, WithLogger(logger))
	c.Close()

	out := buf.String()
	for _, want := range []string{
		"metafits opened", "data files opened", "data file opened", "incomplete coverage",
		"index built", "correlator closed", "component=correlator", "obsid=1101503312",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output lacks %q", want)
		}
	}
}

func TestCorrelatorString(t *testing.T) {
	c := openCorrelator(t, simulate.Config{Version: Legacy})
	s := c.String()
	for _, want := range []string{"Legacy", "timesteps:             2", "rec 109 (id 1)", "rec 110 (id 2)"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() lacks %q:\n%s", want, s)
		}
	}
}

// openFDs counts the descriptors open in this process.
func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("cannot list open descriptors: %v", err)
	}
	return len(entries)
}

func TestOpenCorrelatorReleasesFiles(t *testing.T) {
	tests := []struct {
		name string
		cfg  simulate.Config
		data simulate.Config
		opts []Option
		want error
	}{
		{"hdu size", simulate.Config{Antennas: 3}, simulate.Config{Antennas: 4, Channels: []int{109, 110, 111}}, nil, ErrInconsistentHduSize},
		{"channel outside plan", simulate.Config{Channels: []int{109, 110}}, simulate.Config{Channels: []int{109, 110, 111}}, nil, ErrUnknownCoarseChannel},
		{"strict coverage", simulate.Config{}, simulate.Config{Coverage: map[int]int{110: 1}}, []Option{WithStrictCoverage()}, ErrIncompleteCoverage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := writeObservation(t, tt.cfg)
			b := writeObservation(t, tt.data)

			// Opens and closes once so lazily created runtime descriptors
			// are already counted.
			if c, err := OpenCorrelator(a.Metafits, a.DataFiles); err == nil {
				c.Close()
			}
			before := openFDs(t)
			c, err := OpenCorrelator(a.Metafits, b.DataFiles, tt.opts...)
			if !errors.Is(err, tt.want) {
				if c != nil {
					c.Close()
				}
				t.Fatalf("OpenCorrelator() error = %v, want %v", err, tt.want)
			}
			if after := openFDs(t); after != before {
				t.Errorf("%d descriptors open before OpenCorrelator, %d after it failed", before, after)
			}
		})
	}
}

func TestOpenCorrelatorVerifyChecksums(t *testing.T) {
	obs := writeObservation(t, simulate.Config{})
	c, err := OpenCorrelator(obs.Metafits, obs.DataFiles, WithVerifyChecksums())
	if err != nil {
		t.Fatalf("OpenCorrelator() of intact files error = %v", err)
	}
	c.Close()

	// Flip one byte in the last data unit of the second file.
	f, err := fits.Open(obs.DataFiles[1])
	if err != nil {
		t.Fatal(err)
	}
	last, err := f.HDU(f.NumHDUs() - 1)
	if err != nil {
		t.Fatal(err)
	}
	dataStart := f.Size() - (last.DataSize()+2879)/2880*2880
	f.Close()
	raw, err := os.ReadFile(obs.DataFiles[1])
	if err != nil {
		t.Fatal(err)
	}
	raw[dataStart] ^= 0x01
	if err := os.WriteFile(obs.DataFiles[1], raw, 0o644); err != nil {
		t.Fatal(err)
	}

	c, err = OpenCorrelator(obs.Metafits, obs.DataFiles)
	if err != nil {
		t.Fatalf("OpenCorrelator() without verification error = %v", err)
	}
	c.Close()
	if _, err := OpenCorrelator(obs.Metafits, obs.DataFiles, WithVerifyChecksums()); !errors.Is(err, ErrChecksum) {
		t.Errorf("OpenCorrelator() error = %v, want ErrChecksum", err)
	}
}
