package format

/*

An archive starts with a cleartext preamble: the magic bytes followed by the
header. Everything after Header.InitialOffset may be encrypted.

*/

const (
	MagicString = "DARN"
)

var (
	MagicBytes = []byte{'D', 'A', 'R', 'N', 0}
)

// HeaderFlags is the bitmask stored in the archive header.
type HeaderFlags uint8

const (
	// Obsolete; preserved when read, never set by this package.
	FlagSavedEARoot HeaderFlags = 0x80
	FlagSavedEAUser HeaderFlags = 0x40
	// The archive is encrypted (legacy scrambling included).
	FlagScrambled HeaderFlags = 0x20
	// Escape marks are interleaved with entries for sequential reading.
	FlagSequenceMark HeaderFlags = 0x10
	// The header records the length of the cleartext prefix. Derived from
	// Header.InitialOffset at write time.
	FlagInitialOffset HeaderFlags = 0x08
	// The header carries a symmetric key protected by an asymmetric one.
	// Derived from Header.CryptedKey at write time.
	FlagHasCryptedKey HeaderFlags = 0x04
	// Reserved for a future extension. Never written, ignored when read.
	FlagHasExtendedSize HeaderFlags = 0x01
)

// CompressionAlgo is the one-byte code of a compression algorithm.
type CompressionAlgo byte

const (
	CompressionNone   CompressionAlgo = 'n'
	CompressionGzip   CompressionAlgo = 'z'
	CompressionBzip2  CompressionAlgo = 'y'
	CompressionZstd   CompressionAlgo = 'd'
	CompressionS2     CompressionAlgo = 's'
	CompressionBrotli CompressionAlgo = 'r'
)

func (c CompressionAlgo) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionBzip2:
		return "bzip2"
	case CompressionZstd:
		return "zstd"
	case CompressionS2:
		return "s2"
	case CompressionBrotli:
		return "brotli"
	default:
		return "unknown"
	}
}

// ParseCompression maps a name as printed by String back to its code.
func ParseCompression(name string) (CompressionAlgo, bool) {
	for _, c := range []CompressionAlgo{CompressionNone, CompressionGzip, CompressionBzip2, CompressionZstd, CompressionS2, CompressionBrotli} {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

// CryptoAlgo is the one-byte code of a symmetric cipher.
type CryptoAlgo byte

const (
	CryptoNone       CryptoAlgo = 'n'
	CryptoScrambling CryptoAlgo = 's'
	CryptoBlowfish   CryptoAlgo = 'b'
	CryptoAES256     CryptoAlgo = 'a'
	CryptoTwofish256 CryptoAlgo = 't'
)

func (c CryptoAlgo) String() string {
	switch c {
	case CryptoNone:
		return "none"
	case CryptoScrambling:
		return "scrambling"
	case CryptoBlowfish:
		return "blowfish"
	case CryptoAES256:
		return "aes256"
	case CryptoTwofish256:
		return "twofish256"
	default:
		return "unknown"
	}
}

func ParseCrypto(name string) (CryptoAlgo, bool) {
	for _, c := range []CryptoAlgo{CryptoNone, CryptoScrambling, CryptoBlowfish, CryptoAES256, CryptoTwofish256} {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

func (c CryptoAlgo) Valid() bool {
	return c.String() != "unknown"
}
