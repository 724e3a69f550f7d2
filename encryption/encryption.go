// Package encryption seals and opens the payloads carried by wrapper
// transactions.
//
// Payloads are encrypted with HPKE (RFC 9180) in base mode using
// DHKEM(X25519, HKDF-SHA256), HKDF-SHA256 and ChaCha20-Poly1305. A
// Ciphertext is the encapsulated key plus the sealed payload.
package encryption

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/hpke"
	"github.com/cloudflare/circl/kem"
	"golang.org/x/crypto/chacha20poly1305"
)

// info binds every sealed payload to this use.
var info = []byte("cloak/wrapper-payload/v1")

var (
	suite  = hpke.NewSuite(hpke.KEM_X25519_HKDF_SHA256, hpke.KDF_HKDF_SHA256, hpke.AEAD_ChaCha20Poly1305)
	scheme = hpke.KEM_X25519_HKDF_SHA256.Scheme()
)

var (
	ErrInvalidCiphertext = errors.New("encryption: invalid ciphertext")
	ErrInvalidKey        = errors.New("encryption: invalid key")
	ErrDecryptionFailed  = errors.New("encryption: decryption failed")
)

// Ciphertext is an encrypted wrapper payload.
type Ciphertext struct {
	// Encapsulated KEM key.
	Enc []byte `cramberry:"1"`
	// AEAD-sealed payload, including the authentication tag.
	Sealed []byte `cramberry:"2"`
}

// Validate reports whether ct is well formed: the encapsulated key has
// the KEM's size and parses as a point, and the sealed part is long
// enough to hold an authentication tag. It does not need any key.
func Validate(ct Ciphertext) bool {
	if len(ct.Enc) != scheme.CiphertextSize() {
		return false
	}
	if _, err := scheme.UnmarshalBinaryPublicKey(ct.Enc); err != nil {
		return false
	}
	return len(ct.Sealed) >= chacha20poly1305.Overhead
}

// Encrypt seals plaintext to the encryption public key pub.
func Encrypt(pub []byte, plaintext []byte) (Ciphertext, error) {
	pk, err := scheme.UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return Ciphertext{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	sender, err := suite.NewSender(pk, info)
	if err != nil {
		return Ciphertext{}, fmt.Errorf("encryption: new sender: %w", err)
	}
	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return Ciphertext{}, fmt.Errorf("encryption: sender setup: %w", err)
	}
	sealed, err := sealer.Seal(plaintext, nil)
	if err != nil {
		return Ciphertext{}, fmt.Errorf("encryption: seal: %w", err)
	}
	return Ciphertext{Enc: enc, Sealed: sealed}, nil
}

// Decrypter opens wrapper payloads with the block's decryption key.
type Decrypter interface {
	Decrypt(ct Ciphertext) ([]byte, error)
}

// PrivateKey is a decryption key pair.
type PrivateKey struct {
	sk kem.PrivateKey
	pk kem.PublicKey
}

var _ Decrypter = (*PrivateKey)(nil)

// GenerateKey returns a fresh random key pair.
func GenerateKey() (*PrivateKey, error) {
	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("encryption: generate key: %w", err)
	}
	return &PrivateKey{sk: sk, pk: pk}, nil
}

// DeriveKey deterministically derives a key pair from seed.
func DeriveKey(seed []byte) *PrivateKey {
	s := sha256.Sum256(seed)
	pk, sk := scheme.DeriveKeyPair(s[:scheme.SeedSize()])
	return &PrivateKey{sk: sk, pk: pk}
}

// ParsePrivateKey decodes a private key produced by Bytes.
func ParsePrivateKey(b []byte) (*PrivateKey, error) {
	sk, err := scheme.UnmarshalBinaryPrivateKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &PrivateKey{sk: sk, pk: sk.Public()}, nil
}

// Bytes returns the binary encoding of the private key.
func (k *PrivateKey) Bytes() []byte {
	b, err := k.sk.MarshalBinary()
	if err != nil {
		panic(fmt.Sprintf("encryption: marshal private key: %v", err))
	}
	return b
}

// PublicKey returns the binary encoding of the public key, suitable
// for Encrypt.
func (k *PrivateKey) PublicKey() []byte {
	b, err := k.pk.MarshalBinary()
	if err != nil {
		panic(fmt.Sprintf("encryption: marshal public key: %v", err))
	}
	return b
}

// Decrypt opens ct. Any failure, including a malformed ciphertext,
// returns an error wrapping ErrDecryptionFailed.
func (k *PrivateKey) Decrypt(ct Ciphertext) ([]byte, error) {
	if !Validate(ct) {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, ErrInvalidCiphertext)
	}
	receiver, err := suite.NewReceiver(k.sk, info)
	if err != nil {
		return nil, fmt.Errorf("%w: new receiver: %v", ErrDecryptionFailed, err)
	}
	opener, err := receiver.Setup(ct.Enc)
	if err != nil {
		return nil, fmt.Errorf("%w: receiver setup: %v", ErrDecryptionFailed, err)
	}
	pt, err := opener.Open(ct.Sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return pt, nil
}

// NoKey is a Decrypter for nodes without a decryption key. Every
// payload fails to open.
type NoKey struct{}

func (NoKey) Decrypt(Ciphertext) ([]byte, error) {
	return nil, fmt.Errorf("%w: no decryption key", ErrDecryptionFailed)
}
