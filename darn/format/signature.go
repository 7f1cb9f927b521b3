package format

import (
	"github.com/pkg/errors"
)

// A signature byte packs an entry kind letter ('a'..'z') into the low five
// bits and a status code into the high three. Saved entries therefore carry
// their plain lowercase letter and not-saved ones the uppercase letter.
const (
	letterMask  = 0x1f
	statusShift = 5

	codeNotSaved  = 2
	codeSaved     = 3
	codeAbsent    = 4
	codeDelta     = 6
	codeInodeOnly = 7
)

var statusCodes = map[SaveStatus]byte{
	StatusSaved:     codeSaved,
	StatusNotSaved:  codeNotSaved,
	StatusDelta:     codeDelta,
	StatusInodeOnly: codeInodeOnly,
	StatusAbsent:    codeAbsent,
}

// MakeSignature encodes kind and status into a single byte. kind must be a
// lowercase ASCII letter.
func MakeSignature(kind byte, status SaveStatus) (byte, error) {
	if kind < 'a' || kind > 'z' {
		return 0, errors.Errorf("invalid entry kind %q", kind)
	}
	code, ok := statusCodes[status]
	if !ok {
		return 0, errors.Errorf("invalid save status %d", status)
	}
	return code<<statusShift | (kind - 'a' + 1), nil
}

// ParseSignature is the inverse of MakeSignature. It does not check whether
// the kind letter is registered; that is the catalogue's job.
func ParseSignature(sig byte) (kind byte, status SaveStatus, err error) {
	idx := sig & letterMask
	if idx == 0 || idx > 26 {
		return 0, 0, errors.Wrapf(ErrUnknownSignature, "0x%02x", sig)
	}
	switch sig >> statusShift {
	case codeSaved:
		status = StatusSaved
	case codeNotSaved:
		status = StatusNotSaved
	case codeDelta:
		status = StatusDelta
	case codeInodeOnly:
		status = StatusInodeOnly
	case codeAbsent:
		status = StatusAbsent
	default:
		return 0, 0, errors.Wrapf(ErrUnknownSignature, "0x%02x", sig)
	}
	return 'a' + idx - 1, status, nil
}
