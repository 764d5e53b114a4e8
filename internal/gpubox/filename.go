package gpubox

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

var (
	mwaxName      = regexp.MustCompile(`^(\d{10})_(\d{14})_ch(\d{3})_(\d{3})\.fits$`)
	legacyName    = regexp.MustCompile(`^(\d{10})_(\d{14})_gpubox(\d{2})_(\d{2})\.fits$`)
	oldLegacyName = regexp.MustCompile(`^(\d{10})_(\d{14})_gpubox(\d{2})\.fits$`)
)

// FileName holds the fields encoded in a data file's base name.
type FileName struct {
	Path     string
	Version  Version
	ObsID    int
	DateTime string // YYYYMMDDhhmmss
	// Channel is the receiver channel number for MWAX and the 1-based
	// gpubox number for the legacy correlators.
	Channel int
	Batch   int
}

// ParseFileName matches the base name of path against the MWAX, Legacy and
// OldLegacy grammars.
func ParseFileName(path string) (FileName, error) {
	base := filepath.Base(path)
	for _, g := range []struct {
		re      *regexp.Regexp
		version Version
	}{
		{mwaxName, MWAX},
		{legacyName, Legacy},
		{oldLegacyName, OldLegacy},
	} {
		m := g.re.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		n := FileName{Path: path, Version: g.version, DateTime: m[2]}
		// The patterns only admit digits, so Atoi cannot fail.
		n.ObsID, _ = strconv.Atoi(m[1])
		n.Channel, _ = strconv.Atoi(m[3])
		if len(m) > 4 {
			n.Batch, _ = strconv.Atoi(m[4])
		}
		return n, nil
	}
	return FileName{}, fmt.Errorf("%w: %s does not match any correlator file name", ErrUnrecognisedFileFormat, path)
}

// Name renders the canonical base name for the given fields.
func (n FileName) Name() string {
	switch n.Version {
	case MWAX:
		return fmt.Sprintf("%010d_%s_ch%03d_%03d.fits", n.ObsID, n.DateTime, n.Channel, n.Batch)
	case Legacy:
		return fmt.Sprintf("%010d_%s_gpubox%02d_%02d.fits", n.ObsID, n.DateTime, n.Channel, n.Batch)
	default:
		return fmt.Sprintf("%010d_%s_gpubox%02d.fits", n.ObsID, n.DateTime, n.Channel)
	}
}
