package format

// SaveStatus says whether an entry's content was stored by the run that
// wrote it. It is fixed when the entry is built.
type SaveStatus uint8

const (
	// StatusSaved means the content was stored in full.
	StatusSaved SaveStatus = iota
	// StatusNotSaved means the object is unchanged since the reference
	// archive and its content lives there.
	StatusNotSaved
	// StatusDelta means a binary delta against the reference was stored.
	StatusDelta
	// StatusInodeOnly means only the metadata changed and was stored.
	StatusInodeOnly
	// StatusAbsent means the content was deliberately left out.
	StatusAbsent
)

// Statuses lists every valid SaveStatus.
var Statuses = []SaveStatus{StatusSaved, StatusNotSaved, StatusDelta, StatusInodeOnly, StatusAbsent}

func (s SaveStatus) Valid() bool {
	return s <= StatusAbsent
}

// HasData reports whether an entry with this status carries a payload.
func (s SaveStatus) HasData() bool {
	return s == StatusSaved || s == StatusDelta
}

func (s SaveStatus) String() string {
	switch s {
	case StatusSaved:
		return "saved"
	case StatusNotSaved:
		return "not-saved"
	case StatusDelta:
		return "delta"
	case StatusInodeOnly:
		return "inode-only"
	case StatusAbsent:
		return "absent"
	default:
		return "unknown"
	}
}
