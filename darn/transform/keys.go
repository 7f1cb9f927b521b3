package transform

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/box"
)

var ErrSealedKey = errors.New("cannot open crypted key")

// KeyPair protects archive keys: the public half seals a symmetric key into
// the header, the private half opens it again.
type KeyPair struct {
	Public  *[32]byte
	Private *[32]byte
}

func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate key pair")
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// SealKey encrypts key so only the holder of recipient's private key can
// recover it.
func SealKey(key []byte, recipient *[32]byte) ([]byte, error) {
	sealed, err := box.SealAnonymous(nil, key, recipient, rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to seal key")
	}
	return sealed, nil
}

// OpenKey recovers a key sealed by SealKey.
func OpenKey(sealed []byte, kp *KeyPair) ([]byte, error) {
	if kp == nil || kp.Public == nil || kp.Private == nil {
		return nil, errors.Wrap(ErrSealedKey, "no key pair")
	}
	key, ok := box.OpenAnonymous(nil, sealed, kp.Public, kp.Private)
	if !ok {
		return nil, ErrSealedKey
	}
	return key, nil
}

// EncodeKey renders a 32-byte key as hex.
func EncodeKey(k *[32]byte) string {
	return hex.EncodeToString(k[:])
}

// ParseKey is the inverse of EncodeKey. Surrounding whitespace is ignored.
func ParseKey(s string) (*[32]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode key")
	}
	if len(raw) != 32 {
		return nil, errors.Errorf("key is %d bytes, want 32", len(raw))
	}
	var k [32]byte
	copy(k[:], raw)
	return &k, nil
}
