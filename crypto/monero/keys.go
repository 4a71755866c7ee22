// Package monero provides the ed25519 scalar and point types needed to
// describe a Monero view/spend key pair and to derive the address of the
// jointly-funded output: MoneroPrivateViewKey, MoneroPrivateSpendKey, and
// MoneroPublicKey, plus the key-summation used to combine Alice's and Bob's
// spend-key shares into the shared output's spend key.
package monero

import (
	"crypto/rand"
	"fmt"

	"filippo.io/edwards25519"
)

// PrivateViewKey is an ed25519 scalar used to scan the chain for outputs
// belonging to a Monero address; it does not by itself permit spending.
type PrivateViewKey struct {
	scalar *edwards25519.Scalar
}

// PrivateSpendKey is an ed25519 scalar that permits spending a Monero
// output. In this protocol it is never complete on its own until Alice's
// and Bob's shares are summed (SumPrivateSpendKeys) after a successful
// swap.
type PrivateSpendKey struct {
	scalar *edwards25519.Scalar
}

// PublicKey is an ed25519 point: a Monero public spend key, public view
// key, or a sum of either.
type PublicKey struct {
	point *edwards25519.Point
}

// NewPrivateViewKeyFromScalar wraps an existing ed25519 scalar as a view key.
func NewPrivateViewKeyFromScalar(s *edwards25519.Scalar) *PrivateViewKey {
	return &PrivateViewKey{scalar: s}
}

// NewPrivateSpendKeyFromScalar wraps an existing ed25519 scalar as a spend key.
func NewPrivateSpendKeyFromScalar(s *edwards25519.Scalar) *PrivateSpendKey {
	return &PrivateSpendKey{scalar: s}
}

// NewPrivateViewKeyFromBytes parses a canonically-encoded ed25519 scalar as
// a view key. Unlike Bitcoin or Monero spend keys, private view keys are
// exchanged in the clear during the handshake (Message0's v_b, Message1's
// v_a): knowing only a view key lets a party watch the shared output, not
// spend it.
func NewPrivateViewKeyFromBytes(b []byte) (*PrivateViewKey, error) {
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(b)
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 private view key: %w", err)
	}
	return &PrivateViewKey{scalar: s}, nil
}

// GeneratePrivateSpendKey generates a new random spend-key scalar.
func GeneratePrivateSpendKey() (*PrivateSpendKey, error) {
	s, err := randomScalar()
	if err != nil {
		return nil, err
	}
	return &PrivateSpendKey{scalar: s}, nil
}

// GeneratePrivateViewKey generates a new random view-key scalar,
// independent of any spend key: in this protocol the view-key share is
// always chosen freshly and disclosed in the clear, never derived from the
// spend-key share the way PrivateSpendKey.View's recovery fallback does.
func GeneratePrivateViewKey() (*PrivateViewKey, error) {
	s, err := randomScalar()
	if err != nil {
		return nil, err
	}
	return &PrivateViewKey{scalar: s}, nil
}

// Scalar returns the underlying ed25519 scalar.
func (k *PrivateSpendKey) Scalar() *edwards25519.Scalar {
	return k.scalar
}

// Scalar returns the underlying ed25519 scalar.
func (k *PrivateViewKey) Scalar() *edwards25519.Scalar {
	return k.scalar
}

// Public returns the public key K = k*B for this spend key, where B is the
// ed25519 base point.
func (k *PrivateSpendKey) Public() *PublicKey {
	p := new(edwards25519.Point).ScalarBaseMult(k.scalar)
	return &PublicKey{point: p}
}

// Public returns the public key K = k*B for this view key.
func (k *PrivateViewKey) Public() *PublicKey {
	p := new(edwards25519.Point).ScalarBaseMult(k.scalar)
	return &PublicKey{point: p}
}

// Bytes returns the canonical 32-byte little-endian scalar encoding.
func (k *PrivateSpendKey) Bytes() []byte {
	return k.scalar.Bytes()
}

// Bytes returns the canonical 32-byte little-endian scalar encoding.
func (k *PrivateViewKey) Bytes() []byte {
	return k.scalar.Bytes()
}

// NewPublicKeyFromBytes parses a canonically-encoded ed25519 point.
func NewPublicKeyFromBytes(b []byte) (*PublicKey, error) {
	p, err := new(edwards25519.Point).SetBytes(b)
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 public key: %w", err)
	}
	return &PublicKey{point: p}, nil
}

// Point returns the underlying ed25519 point.
func (k *PublicKey) Point() *edwards25519.Point {
	return k.point
}

// Bytes returns the canonical 32-byte compressed encoding.
func (k *PublicKey) Bytes() []byte {
	return k.point.Bytes()
}

// String returns the hex-encoded compressed public key.
func (k *PublicKey) String() string {
	return fmt.Sprintf("%x", k.Bytes())
}

// SumPublicKeys returns a+b, for combining Alice's and Bob's spend-key (or
// view-key) public shares into the shared output's key.
func SumPublicKeys(a, b *PublicKey) *PublicKey {
	sum := new(edwards25519.Point).Add(a.point, b.point)
	return &PublicKey{point: sum}
}

// SumPrivateSpendKeys returns a+b mod l, used once both adaptor signatures
// have been decrypted and both parties' spend-key shares are known,
// yielding the complete spend key for the jointly-funded output.
func SumPrivateSpendKeys(a, b *PrivateSpendKey) *PrivateSpendKey {
	sum := new(edwards25519.Scalar).Add(a.scalar, b.scalar)
	return &PrivateSpendKey{scalar: sum}
}

// randomScalar returns a uniformly random scalar mod l, the ed25519 group
// order.
func randomScalar() (*edwards25519.Scalar, error) {
	var buf [64]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	s, err := new(edwards25519.Scalar).SetUniformBytes(buf[:])
	if err != nil {
		return nil, err
	}
	return s, nil
}
