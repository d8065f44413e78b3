package pager

// LogicalPageID is a 64-bit handle managed by the pager. Value 0 is
// reserved for "invalid" (spec.md §3).
type LogicalPageID uint64

// InvalidLogicalPageID marks an absent or pending-free page reference.
const InvalidLogicalPageID LogicalPageID = 0

// HeaderLPID and HeaderBackupLPID are the two reserved pages holding the
// pager header and its pre-commit backup copy.
const (
	HeaderLPID       LogicalPageID = 0
	HeaderBackupLPID LogicalPageID = 1
	FirstUserLPID    LogicalPageID = 2
)

// Version is a monotonically increasing commit counter, starting at 1 for
// the first commit of a fresh store.
type Version int64

// InvalidVersion is a sentinel for "no version yet committed".
const InvalidVersion Version = -1

// FormatVersion is the on-disk header format this implementation writes
// and the only one it will open (spec.md §7 kind 3, format mismatch).
const FormatVersion uint16 = 1

func (v LogicalPageID) String() string {
	if v == InvalidLogicalPageID {
		return "LPID(invalid)"
	}
	return "LPID(" + itoa(uint64(v)) + ")"
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
