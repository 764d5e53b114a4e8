package mwalib

import "github.com/robert-malhotra/go-mwalib/internal/gpubox"

// CorrelatorVersion is the correlator generation that wrote the data files.
type CorrelatorVersion = gpubox.Version

// Correlator versions.
const (
	MWAX      = gpubox.MWAX
	Legacy    = gpubox.Legacy
	OldLegacy = gpubox.OldLegacy
)

// ParseCorrelatorVersion parses "MWAX", "Legacy" or "OldLegacy",
// ignoring case.
func ParseCorrelatorVersion(s string) (CorrelatorVersion, error) {
	return gpubox.ParseVersion(s)
}
