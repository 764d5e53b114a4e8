package fits

import "errors"

// Common errors
var (
	ErrNotFITS      = errors.New("not a FITS file")
	ErrKeyNotFound  = errors.New("header key not found")
	ErrBadValue     = errors.New("header value has wrong type")
	ErrNotImage     = errors.New("HDU is not an image")
	ErrNotTable     = errors.New("HDU is not a binary table")
	ErrUnsupported  = errors.New("unsupported feature")
	ErrTruncated    = errors.New("file is truncated")
	ErrSizeMismatch = errors.New("buffer size does not match data unit")
	ErrNoSuchColumn = errors.New("no such column")
	ErrChecksum     = errors.New("DATASUM does not match data")
	ErrClosed       = errors.New("file is closed")
	ErrNoSuchHDU    = errors.New("no such HDU")
)
