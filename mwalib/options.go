package mwalib

import (
	"log/slog"
	"runtime"
)

// Option configures OpenMetafits and OpenCorrelator.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	mmap           bool
	readWorkers    int
	strictCoverage bool
	verify         bool
}

func defaultOptions() *options {
	return &options{
		readWorkers: runtime.NumCPU(),
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger for lifecycle events. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMmap reads data files through read-only memory maps instead of file
// reads.
func WithMmap(enabled bool) Option {
	return func(o *options) {
		o.mmap = enabled
	}
}

// WithReadWorkers limits how many reads ReadBatch runs at once. Values
// below 1 are ignored.
func WithReadWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readWorkers = n
		}
	}
}

// WithStrictCoverage makes OpenCorrelator fail with ErrIncompleteCoverage
// when any timestep lacks data for any coarse channel.
func WithStrictCoverage() Option {
	return func(o *options) {
		o.strictCoverage = true
	}
}

// WithVerifyChecksums makes OpenCorrelator check the DATASUM card of every
// timestep HDU and fail with ErrChecksum on a mismatch. Verification reads
// every data unit once.
func WithVerifyChecksums() Option {
	return func(o *options) {
		o.verify = true
	}
}
