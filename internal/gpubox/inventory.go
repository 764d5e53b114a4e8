package gpubox

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/robert-malhotra/go-mwalib/internal/fits"
	"github.com/robert-malhotra/go-mwalib/internal/logging"
	"github.com/robert-malhotra/go-mwalib/internal/mmap"
)

// DataFile is one opened correlator data file.
type DataFile struct {
	Name        FileName
	File        *fits.File
	StartUnixMs int64
	Timesteps   int // HDUs after the primary
}

// Entry locates the visibilities of one coarse channel at one timestep.
type Entry struct {
	Channel    int // as in FileName.Channel
	Batch      int
	File       int // index into Inventory.Files
	Offset     int // timestep offset within the file
	HDU        int
	UnixTimeMs int64
}

// Inventory is the validated set of data files of one observation. It owns
// the open files until Close.
type Inventory struct {
	Version Version
	Files   []*DataFile
	Entries []Entry
	Shape   []int // NAXIS of every timestep HDU
	Bitpix  int
	Batches int

	integrationMs int64
	verify        bool
}

// Config controls Build.
type Config struct {
	ObsID         int
	IntegrationMs int64
	Mmap          bool
	Verify        bool // check the DATASUM of every timestep HDU
	Logger        *slog.Logger
}

// Build classifies, opens and validates the data files in paths. Either
// every file is open in the returned Inventory or none is.
func Build(paths []string, cfg Config) (*Inventory, error) {
	logger := logging.Default(cfg.Logger)
	if len(paths) == 0 {
		return nil, ErrNoDataFiles
	}

	names := make([]FileName, len(paths))
	for i, p := range paths {
		n, err := ParseFileName(p)
		if err != nil {
			return nil, err
		}
		if i > 0 && n.Version != names[0].Version {
			return nil, fmt.Errorf("%w: %s is %s but %s is %s",
				ErrMixedCorrelatorVersions, names[0].Path, names[0].Version, p, n.Version)
		}
		if n.ObsID != cfg.ObsID {
			return nil, fmt.Errorf("%w: %s has obsid %d, expected %d", ErrObsidMismatch, p, n.ObsID, cfg.ObsID)
		}
		names[i] = n
	}
	if err := checkDuplicates(names); err != nil {
		return nil, err
	}
	batches, err := checkBatches(names)
	if err != nil {
		return nil, err
	}

	inv := &Inventory{
		Version:       names[0].Version,
		Batches:       batches,
		integrationMs: cfg.IntegrationMs,
		verify:        cfg.Verify,
	}
	for _, n := range names {
		df, err := openDataFile(n, cfg)
		if err != nil {
			inv.Close()
			return nil, err
		}
		inv.Files = append(inv.Files, df)
		if err := inv.addEntries(len(inv.Files) - 1); err != nil {
			inv.Close()
			return nil, err
		}
		logger.Debug("data file opened", "path", n.Path, "channel", n.Channel, "batch", n.Batch, "timesteps", df.Timesteps)
	}
	return inv, nil
}

func checkDuplicates(names []FileName) error {
	seen := make(map[[2]int]string, len(names))
	for _, n := range names {
		key := [2]int{n.Channel, n.Batch}
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s and %s both hold channel %d batch %d",
				ErrDuplicateFile, prev, n.Path, n.Channel, n.Batch)
		}
		seen[key] = n.Path
	}
	return nil
}

// checkBatches requires batch numbers 0..max without holes and returns the
// batch count.
func checkBatches(names []FileName) (int, error) {
	batches := make([]int, len(names))
	for i, n := range names {
		batches[i] = n.Batch
	}
	slices.Sort(batches)
	batches = slices.Compact(batches)
	for i, b := range batches {
		if b != i {
			return 0, fmt.Errorf("%w: batch %d is missing (have %v)", ErrMissingBatch, i, batches)
		}
	}
	return len(batches), nil
}

// openFITS is a variable so tests can observe every file Build opens.
var openFITS = openFile

func openFile(path string, useMmap bool) (*fits.File, error) {
	if !useMmap {
		return fits.Open(path)
	}
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	f, err := fits.NewFile(path, m, m.Len(), m)
	if err != nil {
		m.Close()
		return nil, err
	}
	return f, nil
}

func openDataFile(n FileName, cfg Config) (*DataFile, error) {
	f, err := openFITS(n.Path, cfg.Mmap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognisedFileFormat, err)
	}
	df, err := readDataFile(n, f, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	return df, nil
}

func readDataFile(n FileName, f *fits.File, cfg Config) (*DataFile, error) {
	hdr := f.Primary().Header
	v, err := DetectVersion(n, hdr)
	if err != nil {
		return nil, err
	}
	if v != n.Version {
		return nil, fmt.Errorf("%w: %s header marks %s but its name is %s", ErrMixedCorrelatorVersions, n.Path, v, n.Version)
	}

	if hdr.Has("OBSID") {
		id, err := hdr.Int("OBSID")
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnrecognisedFileFormat, n.Path, err)
		}
		if int(id) != cfg.ObsID {
			return nil, fmt.Errorf("%w: %s has OBSID %d, expected %d", ErrObsidMismatch, n.Path, id, cfg.ObsID)
		}
	}

	sec, err := hdr.Int("TIME")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnrecognisedFileFormat, n.Path, err)
	}
	var ms int64
	if hdr.Has("MILLITIM") {
		if ms, err = hdr.Int("MILLITIM"); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnrecognisedFileFormat, n.Path, err)
		}
	}

	return &DataFile{
		Name:        n,
		File:        f,
		StartUnixMs: sec*1000 + ms,
		Timesteps:   f.NumHDUs() - 1,
	}, nil
}

// addEntries appends one entry per timestep HDU of file i, checking every
// HDU against the shape of the first one seen.
func (inv *Inventory) addEntries(i int) error {
	df := inv.Files[i]
	for h := 1; h < df.File.NumHDUs(); h++ {
		hdu, err := df.File.HDU(h)
		if err != nil {
			return err
		}
		if !hdu.IsImage() {
			return fmt.Errorf("%w: %s HDU %d is a %s, not an image", ErrUnrecognisedFileFormat, df.Name.Path, h, hdu.Kind())
		}
		shape := hdu.Shape()
		if inv.Shape == nil {
			inv.Shape, inv.Bitpix = shape, hdu.Bitpix()
		} else if !slices.Equal(shape, inv.Shape) || hdu.Bitpix() != inv.Bitpix {
			return fmt.Errorf("%w: %s HDU %d has NAXIS %v BITPIX %d, expected NAXIS %v BITPIX %d",
				ErrInconsistentHduSize, df.Name.Path, h, shape, hdu.Bitpix(), inv.Shape, inv.Bitpix)
		}
		if inv.verify {
			if err := hdu.VerifyDataSum(); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrChecksum, df.Name.Path, err)
			}
		}

		offset := h - 1
		inv.Entries = append(inv.Entries, Entry{
			Channel:    df.Name.Channel,
			Batch:      df.Name.Batch,
			File:       i,
			Offset:     offset,
			HDU:        h,
			UnixTimeMs: df.StartUnixMs + int64(offset)*inv.integrationMs,
		})
	}
	return nil
}

// Close closes every data file.
func (inv *Inventory) Close() error {
	var errs []error
	for _, df := range inv.Files {
		if err := df.File.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
