// Package secp256k1 wraps btcec's secp256k1 scalar/point arithmetic and
// ECDSA into the small owned-key types the swap protocol passes around:
// BitcoinSecret and BitcoinPublic. Keeping them as named types, rather than
// passing *btcec.PrivateKey directly, matches the ownership discipline of
// §9: a state's secrets live uniquely on that state's struct.
package secp256k1

import (
	"crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// BitcoinSecret is a secp256k1 scalar, with its verification point cached
// at construction time.
type BitcoinSecret struct {
	key *btcec.PrivateKey
	pub *BitcoinPublic
}

// BitcoinPublic is a secp256k1 point.
type BitcoinPublic struct {
	key *btcec.PublicKey
}

// NewBitcoinSecret constructs a BitcoinSecret from a 32-byte big-endian
// scalar. It returns an error if the scalar is zero or >= the curve order.
func NewBitcoinSecret(b []byte) (*BitcoinSecret, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("secp256k1 scalar must be 32 bytes, got %d", len(b))
	}

	var scalar btcec.ModNScalar
	overflow := scalar.SetByteSlice(b)
	if overflow || scalar.IsZero() {
		return nil, fmt.Errorf("invalid secp256k1 scalar")
	}

	key := btcec.PrivKeyFromBytes(b)
	return &BitcoinSecret{
		key: key,
		pub: &BitcoinPublic{key: key.PubKey()},
	}, nil
}

// GenerateBitcoinSecret generates a new random secret key.
func GenerateBitcoinSecret() (*BitcoinSecret, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &BitcoinSecret{
		key: key,
		pub: &BitcoinPublic{key: key.PubKey()},
	}, nil
}

// Public returns the cached verification point K = k*G.
func (s *BitcoinSecret) Public() *BitcoinPublic {
	return s.pub
}

// Bytes returns the 32-byte big-endian scalar encoding.
func (s *BitcoinSecret) Bytes() [32]byte {
	var b [32]byte
	s.key.Key.PutBytesUnchecked(b[:])
	return b
}

// Scalar returns the underlying modular scalar, for use by the adaptor
// signature and DLEQ packages.
func (s *BitcoinSecret) Scalar() *btcec.ModNScalar {
	return &s.key.Key
}

// ToECDSA returns the equivalent standard-library ecdsa.PrivateKey.
func (s *BitcoinSecret) ToECDSA() *ecdsa.PrivateKey {
	return s.key.ToECDSA()
}

// Sign produces a deterministic (RFC 6979) ECDSA signature over digest,
// satisfying ecdsa_sign(sk, digest) -> Signature.
func (s *BitcoinSecret) Sign(digest []byte) (*Signature, error) {
	sig := btcecdsa.Sign(s.key, digest)
	return parseDERSignature(sig.Serialize())
}

// NewBitcoinPublicFromBytes parses a compressed or uncompressed secp256k1
// public key.
func NewBitcoinPublicFromBytes(b []byte) (*BitcoinPublic, error) {
	key, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("invalid secp256k1 public key: %w", err)
	}
	return &BitcoinPublic{key: key}, nil
}

// Point returns the underlying curve point.
func (p *BitcoinPublic) Point() *btcec.PublicKey {
	return p.key
}

// CompressedBytes returns the 33-byte compressed SEC1 encoding.
func (p *BitcoinPublic) CompressedBytes() []byte {
	return p.key.SerializeCompressed()
}

// String returns the hex-encoded compressed public key.
func (p *BitcoinPublic) String() string {
	return fmt.Sprintf("%x", p.CompressedBytes())
}

// Verify checks an ECDSA signature over digest under this public key,
// satisfying ecdsa_verify(pk, digest, sig) -> {ok, invalid}. btcec's
// Verify accepts both the low-S and high-S forms; btcec's Serialize is what
// normalizes S to the low form Bitcoin's standardness policy requires.
func (p *BitcoinPublic) Verify(digest []byte, sig *Signature) bool {
	return sig.libSig().Verify(digest, p.key)
}

// Signature is an ECDSA (r, s) pair. Unlike btcec's own Signature type, r
// and s are kept directly accessible: the adaptor-signature package needs
// to recompute and compare them, not just verify a serialized blob.
type Signature struct {
	r, s *btcec.ModNScalar
}

// NewSignature builds a Signature from raw r, s scalars, for callers (the
// adaptor-signature package) that compute r and s directly rather than
// going through btcec's Sign.
func NewSignature(r, s *btcec.ModNScalar) *Signature {
	return &Signature{r: r, s: s}
}

// NewSignatureFromDER parses a DER-encoded ECDSA signature.
func NewSignatureFromDER(b []byte) (*Signature, error) {
	return parseDERSignature(b)
}

// asn1Signature is the ASN.1 SEQUENCE{ r INTEGER, s INTEGER } that DER-encodes
// an ECDSA signature. Parsing it by hand, rather than trusting a specific
// accessor shape on a third-party Signature type, keeps this package's only
// dependency on the wire format the format itself.
type asn1Signature struct {
	R, S *big.Int
}

func parseDERSignature(b []byte) (*Signature, error) {
	var sig asn1Signature
	rest, err := asn1.Unmarshal(b, &sig)
	if err != nil {
		return nil, fmt.Errorf("invalid DER signature: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("invalid DER signature: %d trailing bytes", len(rest))
	}
	if sig.R == nil || sig.S == nil || sig.R.Sign() <= 0 || sig.S.Sign() <= 0 {
		return nil, fmt.Errorf("invalid DER signature: r and s must be positive")
	}

	var r, s btcec.ModNScalar
	r.SetByteSlice(sig.R.Bytes())
	s.SetByteSlice(sig.S.Bytes())
	return &Signature{r: &r, s: &s}, nil
}

// R returns the signature's r scalar.
func (s *Signature) R() *btcec.ModNScalar {
	return s.r
}

// S returns the signature's s scalar.
func (s *Signature) S() *btcec.ModNScalar {
	return s.s
}

// libSig converts to btcec's own Signature type for serialization/verify.
func (s *Signature) libSig() *btcecdsa.Signature {
	return btcecdsa.NewSignature(s.r, s.s)
}

// Serialize returns the low-S DER encoding used in Bitcoin witnesses.
func (s *Signature) Serialize() []byte {
	return s.libSig().Serialize()
}
