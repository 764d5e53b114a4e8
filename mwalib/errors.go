// Package mwalib reads MWA metafits files and raw correlator visibilities.
package mwalib

import (
	"errors"

	"github.com/robert-malhotra/go-mwalib/internal/gpubox"
)

// Common errors
var (
	ErrMetadata             = errors.New("invalid metafits")
	ErrUnknownCoarseChannel = errors.New("coarse channel is not in the metafits channel plan")
	ErrEmptyObservation     = errors.New("observation has no timesteps or coarse channels")
	ErrIncompleteCoverage   = errors.New("some timestep and coarse channel pairs have no data")
	ErrDataNotAvailable     = errors.New("no data for timestep and coarse channel")
	ErrBufferSizeMismatch   = errors.New("buffer length does not match visibility block")
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrClosed               = errors.New("context is closed")
	ErrUnknownOrder         = errors.New("unknown visibility order")
)

// Data file errors, shared with the inventory.
var (
	ErrNoDataFiles             = gpubox.ErrNoDataFiles
	ErrUnrecognisedFileFormat  = gpubox.ErrUnrecognisedFileFormat
	ErrMixedCorrelatorVersions = gpubox.ErrMixedCorrelatorVersions
	ErrObsidMismatch           = gpubox.ErrObsidMismatch
	ErrInconsistentHduSize     = gpubox.ErrInconsistentHduSize
	ErrDuplicateFile           = gpubox.ErrDuplicateFile
	ErrMissingBatch            = gpubox.ErrMissingBatch
	ErrChecksum                = gpubox.ErrChecksum
)
