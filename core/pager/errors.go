package pager

import "errors"

// Error kinds from spec.md §7. The first three are fatal: once observed they
// are latched on the pager and returned by every subsequent public call.
var (
	ErrIO               = errors.New("pager: i/o error")
	ErrChecksumMismatch = errors.New("pager: page checksum mismatch")
	ErrFormatMismatch   = errors.New("pager: header format version mismatch")

	ErrVersionTooOld   = errors.New("pager: requested version predates earliest retained snapshot")
	ErrSnapshotExpired = errors.New("pager: snapshot retention withdrawn (transaction_too_old)")
	ErrShuttingDown    = errors.New("pager: shutdown in progress")
	ErrCorruptFile     = errors.New("pager: both header copies failed checksum validation")

	ErrInvalidPageID = errors.New("pager: invalid logical page id")
	ErrCommitInFlight = errors.New("pager: a commit is already in flight")
)
