// Package fits provides a pure Go reader and writer for the subset of the
// FITS format used by MWA metafits and correlator data files.
//
// A FITS file is a sequence of header and data units (HDUs). Each header is
// a run of 80-character ASCII cards terminated by an END card and padded to
// a 2880-byte block; each data unit follows its header and is padded to the
// same block size. All binary values are big-endian.
//
// # Supported Units
//
//   - Primary HDU with or without an image array
//   - IMAGE extensions with BITPIX 8, 16, 32, 64, -32 and -64 (BSCALE and
//     BZERO applied on read)
//   - BINTABLE extensions with fixed-width columns (L, X, B, I, J, K, A, E,
//     D, C, M); variable-length array descriptors are rejected
//
// Long string values spread over CONTINUE cards are joined on read and
// split on write.
//
// # Reading
//
// [Open] walks every header once and records where each data unit lives.
// Data is only read on request:
//
//	f, err := fits.Open("1101503312.metafits")
//	defer f.Close()
//	primary, err := f.HDU(0)
//	obsid, err := primary.Header.Int("GPSTIME")
//
// [NewFile] accepts any io.ReaderAt, which lets callers supply memory-mapped
// or in-memory sources. Reads through a File are safe for concurrent use
// because they only use ReadAt.
//
// # Writing
//
// [Create] returns a [Writer] that appends units in order:
//
//	w, err := fits.Create(path)
//	err = w.WritePrimary(hdr)
//	err = w.WriteImage(hdr, []int{naxis1, naxis2}, samples)
//	err = w.Close()
package fits
