package catalog

import (
	"io"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/indrora/darn/darn/bignum"
	"github.com/indrora/darn/darn/format"
	"github.com/indrora/darn/darn/ioutil"
)

// Datetime unit bytes.
const (
	unitSeconds = 's'
	unitMicro   = 'u'
	unitNano    = 'n'
)

var ErrBadTimeUnit = errors.New("unknown datetime unit")

// Datetime is a point in time since the Unix epoch. Times before the epoch
// are not representable and clamp to zero.
type Datetime struct {
	Sec  uint64
	Nsec uint32
}

func FromTime(t time.Time) Datetime {
	if t.Before(time.Unix(0, 0)) {
		return Datetime{}
	}
	return Datetime{Sec: uint64(t.Unix()), Nsec: uint32(t.Nanosecond())}
}

func (d Datetime) Time() time.Time {
	return time.Unix(int64(d.Sec), int64(d.Nsec)).UTC()
}

func (d Datetime) IsZero() bool {
	return d == Datetime{}
}

func (d Datetime) Before(o Datetime) bool {
	if d.Sec != o.Sec {
		return d.Sec < o.Sec
	}
	return d.Nsec < o.Nsec
}

// EqualWithHourshift reports whether d and o are the same instant, or differ
// by a whole number of hours no greater than hourshift. The latter absorbs
// daylight-saving and timezone shifts on filesystems storing local time.
func (d Datetime) EqualWithHourshift(o Datetime, hourshift int) bool {
	if d == o {
		return true
	}
	if hourshift <= 0 || d.Nsec != o.Nsec {
		return false
	}
	diff := d.Sec - o.Sec
	if o.Sec > d.Sec {
		diff = o.Sec - d.Sec
	}
	return diff%3600 == 0 && diff/3600 <= uint64(hourshift)
}

func (d Datetime) String() string {
	return d.Time().Format(time.RFC3339Nano)
}

var (
	bigMillion = big.NewInt(1e6)
	bigBillion = big.NewInt(1e9)
)

// write encodes d in the layout of ed. Editions before sub-second support
// lose the fractional part.
func (d Datetime) write(w io.Writer, ed format.Edition) error {
	sec := new(big.Int).SetUint64(d.Sec)
	if !ed.AtLeast(format.EditionSubsecond) {
		return bignum.FromBig(sec).Write(w)
	}

	unit := byte(unitSeconds)
	count := sec
	switch {
	case d.Nsec == 0:
	case d.Nsec%1000 == 0:
		unit = unitMicro
		count = sec.Mul(sec, bigMillion)
		count.Add(count, big.NewInt(int64(d.Nsec/1000)))
	default:
		unit = unitNano
		count = sec.Mul(sec, bigBillion)
		count.Add(count, big.NewInt(int64(d.Nsec)))
	}
	if err := ioutil.WriteByte(w, unit); err != nil {
		return err
	}
	return bignum.FromBig(count).Write(w)
}

func readDatetime(r io.Reader, ed format.Edition) (Datetime, error) {
	unit := byte(unitSeconds)
	if ed.AtLeast(format.EditionSubsecond) {
		var err error
		if unit, err = ioutil.ReadByte(r); err != nil {
			return Datetime{}, err
		}
	}
	n, err := ioutil.ReadBignum(r)
	if err != nil {
		return Datetime{}, err
	}

	var per *big.Int
	switch unit {
	case unitSeconds:
	case unitMicro:
		per = bigMillion
	case unitNano:
		per = bigBillion
	default:
		return Datetime{}, errors.Wrapf(ErrBadTimeUnit, "%q", unit)
	}

	sec, frac := n.Big(), new(big.Int)
	if per != nil {
		sec, frac = new(big.Int).QuoRem(sec, per, frac)
	}
	if !sec.IsUint64() {
		return Datetime{}, errors.Errorf("timestamp %s out of range", n)
	}
	d := Datetime{Sec: sec.Uint64(), Nsec: uint32(frac.Uint64())}
	if unit == unitMicro {
		d.Nsec *= 1000
	}
	return d, nil
}
