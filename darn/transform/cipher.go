package transform

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/twofish"

	"github.com/indrora/darn/darn/format"
)

// KDFIterations is the PBKDF2 work factor used by DeriveKey.
const KDFIterations = 100000

var ErrUnknownCipher = errors.New("unknown cipher")

// KeySize returns the key length used with algo.
func KeySize(algo format.CryptoAlgo) int {
	switch algo {
	case format.CryptoAES256, format.CryptoTwofish256, format.CryptoBlowfish, format.CryptoScrambling:
		return 32
	default:
		return 0
	}
}

// IVSize returns the length of the cleartext IV that starts the encrypted
// region of an archive using algo.
func IVSize(algo format.CryptoAlgo) int {
	switch algo {
	case format.CryptoAES256:
		return aes.BlockSize
	case format.CryptoTwofish256:
		return twofish.BlockSize
	case format.CryptoBlowfish:
		return blowfish.BlockSize
	default:
		return 0
	}
}

// NewIV returns a random IV for algo.
func NewIV(algo format.CryptoAlgo) ([]byte, error) {
	iv := make([]byte, IVSize(algo))
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, errors.Wrap(err, "failed to generate IV")
	}
	return iv, nil
}

// NewKey returns a random key for algo.
func NewKey(algo format.CryptoAlgo) ([]byte, error) {
	key := make([]byte, KeySize(algo))
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, errors.Wrap(err, "failed to generate key")
	}
	return key, nil
}

// DeriveKey stretches a passphrase into a key for algo. Scrambling uses the
// passphrase as is.
func DeriveKey(algo format.CryptoAlgo, passphrase, salt []byte) []byte {
	if algo == format.CryptoScrambling {
		return append([]byte{}, passphrase...)
	}
	return pbkdf2.Key(passphrase, salt, KDFIterations, KeySize(algo), sha256.New)
}

func newBlock(algo format.CryptoAlgo, key []byte) (cipher.Block, error) {
	switch algo {
	case format.CryptoAES256:
		return aes.NewCipher(key)
	case format.CryptoTwofish256:
		return twofish.NewCipher(key)
	case format.CryptoBlowfish:
		return blowfish.NewCipher(key)
	default:
		return nil, errors.Wrapf(ErrUnknownCipher, "%q", byte(algo))
	}
}

func newStream(algo format.CryptoAlgo, key, iv []byte) (cipher.Stream, error) {
	if algo == format.CryptoScrambling {
		if len(key) == 0 {
			return nil, errors.New("scrambling needs a non-empty key")
		}
		return &scrambler{key: key}, nil
	}
	block, err := newBlock(algo, key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to set up cipher")
	}
	if len(iv) != block.BlockSize() {
		return nil, errors.Errorf("IV of %d bytes, want %d", len(iv), block.BlockSize())
	}
	return cipher.NewCTR(block, iv), nil
}

// NewCipherWriter encrypts everything written through it into w.
func NewCipherWriter(algo format.CryptoAlgo, key, iv []byte, w io.Writer) (io.Writer, error) {
	stream, err := newStream(algo, key, iv)
	if err != nil {
		return nil, err
	}
	return cipher.StreamWriter{S: stream, W: w}, nil
}

// NewCipherReader decrypts r.
func NewCipherReader(algo format.CryptoAlgo, key, iv []byte, r io.Reader) (io.Reader, error) {
	stream, err := newStream(algo, key, iv)
	if err != nil {
		return nil, err
	}
	return cipher.StreamReader{S: stream, R: r}, nil
}

// scrambler is the legacy XOR-with-passphrase "encryption". It offers no
// real protection and exists to read and write old-style archives.
type scrambler struct {
	key []byte
	pos int
}

func (s *scrambler) XORKeyStream(dst, src []byte) {
	for i, b := range src {
		dst[i] = b ^ s.key[s.pos]
		s.pos = (s.pos + 1) % len(s.key)
	}
}
