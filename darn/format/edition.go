package format

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Edition identifies the on-disk layout version of an archive.
type Edition struct {
	Major uint16
	Fix   uint8
}

// Editions at which the layout changed.
var (
	// Edition1 is the original layout: no header flags, 16-bit owner ids and
	// whole-second timestamps.
	Edition1 = Edition{Major: 1}
	// EditionFlags adds the header flags byte.
	EditionFlags = Edition{Major: 2}
	// EditionInitialOffset adds the cleartext prefix length to the header and
	// widens owner ids to bignums.
	EditionInitialOffset = Edition{Major: 3}
	// EditionSymAlgo records the symmetric cipher in the header and adds the
	// last-change timestamp to entries.
	EditionSymAlgo = Edition{Major: 4}
	// EditionCryptedKey adds the asymmetrically protected key to the header
	// and the filesystem device id to devices.
	EditionCryptedKey = Edition{Major: 5}
	// EditionSubsecond stores timestamps with a unit.
	EditionSubsecond = Edition{Major: 6}

	EditionCurrent = EditionSubsecond
)

// Compare returns -1, 0 or +1 as e is older than, equal to or newer than o.
func (e Edition) Compare(o Edition) int {
	switch {
	case e.Major < o.Major:
		return -1
	case e.Major > o.Major:
		return 1
	case e.Fix < o.Fix:
		return -1
	case e.Fix > o.Fix:
		return 1
	}
	return 0
}

// AtLeast reports whether e is o or newer.
func (e Edition) AtLeast(o Edition) bool {
	return e.Compare(o) >= 0
}

// Supported reports whether this package can interpret every field of e.
func (e Edition) Supported() bool {
	return e.Major != 0 && e.Compare(EditionCurrent) <= 0
}

func (e Edition) String() string {
	if e.Fix == 0 {
		return fmt.Sprintf("%02d", e.Major)
	}
	return fmt.Sprintf("%02d.%d", e.Major, e.Fix)
}

func (e Edition) Write(w io.Writer) error {
	var buf [3]byte
	binary.BigEndian.PutUint16(buf[:2], e.Major)
	buf[2] = e.Fix
	_, err := w.Write(buf[:])
	return errors.Wrap(err, "failed to write edition")
}

func ReadEdition(r io.Reader) (Edition, error) {
	var buf [3]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Edition{}, err
	}
	return Edition{Major: binary.BigEndian.Uint16(buf[:2]), Fix: buf[2]}, nil
}
