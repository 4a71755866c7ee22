package monero

import (
	"fmt"
	"math/big"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/sha3"

	"github.com/athanorlabs/xmr-btc-swap/common"
)

// Address is a base58check-encoded Monero public address string.
type Address string

// String implements fmt.Stringer.
func (a Address) String() string {
	return string(a)
}

// addressPrefix returns the network byte prepended to a standard Monero
// address before base58 encoding, one per common.Environment.
func addressPrefix(env common.Environment) byte {
	switch env {
	case common.Mainnet:
		return 18
	case common.Stagenet:
		return 24
	default:
		// Development runs against a local regtest monerod, which uses the
		// testnet address prefix.
		return 53
	}
}

// PublicKeyPair is a Monero public address's two halves: the public spend
// key, which (once summed with a counterparty's share) identifies who may
// spend an output, and the public view key, which identifies who may scan
// for it.
type PublicKeyPair struct {
	spend *PublicKey
	view  *PublicKey
}

// NewPublicKeyPair pairs a public spend key with a public view key.
func NewPublicKeyPair(spend, view *PublicKey) *PublicKeyPair {
	return &PublicKeyPair{spend: spend, view: view}
}

// SpendKey returns the public spend key half of the pair.
func (kp *PublicKeyPair) SpendKey() *PublicKey {
	return kp.spend
}

// ViewKey returns the public view key half of the pair.
func (kp *PublicKeyPair) ViewKey() *PublicKey {
	return kp.view
}

// Address derives the base58check-encoded standard address for this key
// pair on the given network.
func (kp *PublicKeyPair) Address(env common.Environment) Address {
	raw := make([]byte, 0, 1+32+32+4)
	raw = append(raw, addressPrefix(env))
	raw = append(raw, kp.spend.Bytes()...)
	raw = append(raw, kp.view.Bytes()...)

	checksum := keccak256(raw)
	raw = append(raw, checksum[:4]...)

	return Address(base58EncodeMonero(raw))
}

// PrivateKeyPair is a Monero private spend/view key pair, either a single
// party's share before a swap completes, or the complete, spendable key
// pair once both parties' shares have been summed.
type PrivateKeyPair struct {
	spend *PrivateSpendKey
	view  *PrivateViewKey
}

// NewPrivateKeyPair pairs a private spend key with a private view key.
func NewPrivateKeyPair(spend *PrivateSpendKey, view *PrivateViewKey) *PrivateKeyPair {
	return &PrivateKeyPair{spend: spend, view: view}
}

// SpendKey returns the private spend key half of the pair.
func (kp *PrivateKeyPair) SpendKey() *PrivateSpendKey {
	return kp.spend
}

// ViewKey returns the private view key half of the pair.
func (kp *PrivateKeyPair) ViewKey() *PrivateViewKey {
	return kp.view
}

// PublicKeyPair returns the public keys corresponding to this key pair.
func (kp *PrivateKeyPair) PublicKeyPair() *PublicKeyPair {
	return NewPublicKeyPair(kp.spend.Public(), kp.view.Public())
}

// Address derives the base58check-encoded standard address for this key
// pair's public half on the given network.
func (kp *PrivateKeyPair) Address(env common.Environment) Address {
	return kp.PublicKeyPair().Address(env)
}

// View derives this spend key's deterministic view-key counterpart, the
// same derivation monero-wallet-rpc uses for generate_from_keys when only
// a spend key is supplied: v = reduce(keccak256(s)).
func (k *PrivateSpendKey) View() (*PrivateViewKey, error) {
	h := keccak256(k.Bytes())

	var wide [64]byte
	copy(wide[:32], h[:])

	s, err := new(edwards25519.Scalar).SetUniformBytes(wide[:])
	if err != nil {
		return nil, fmt.Errorf("deriving view key: %w", err)
	}
	return &PrivateViewKey{scalar: s}, nil
}

// AsPrivateKeyPair derives the full key pair (this spend key plus its
// deterministic view key) for a spend key recovered from a disclosed
// adaptor-signature secret.
func (k *PrivateSpendKey) AsPrivateKeyPair() (*PrivateKeyPair, error) {
	v, err := k.View()
	if err != nil {
		return nil, err
	}
	return NewPrivateKeyPair(k, v), nil
}

// SumPrivateViewKeys returns a+b mod l, combining Alice's and Bob's private
// view-key shares into the shared output's complete view key.
func SumPrivateViewKeys(a, b *PrivateViewKey) *PrivateViewKey {
	sum := new(edwards25519.Scalar).Add(a.scalar, b.scalar)
	return &PrivateViewKey{scalar: sum}
}

// SumSpendAndViewKeys combines Alice's and Bob's public key pairs into the
// public key pair of the output they jointly fund: its spend key is
// S_a+S_b and its view key is V_a+V_b.
func SumSpendAndViewKeys(a, b *PublicKeyPair) *PublicKeyPair {
	return NewPublicKeyPair(
		SumPublicKeys(a.spend, b.spend),
		SumPublicKeys(a.view, b.view),
	)
}

// keccak256 hashes b with Keccak-256, the variant Monero uses throughout
// (not the later-finalized SHA3-256 that golang.org/x/crypto/sha3's Sum256
// implements).
func keccak256(b []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

const monerobase58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// fullBlockSize and fullBlockEncodedSize are respectively the byte and
// character length of a full Monero base58 block; blockEncodedSizes maps
// a final partial block's byte length to its encoded character length.
const (
	fullBlockSize        = 8
	fullBlockEncodedSize = 11
)

var blockEncodedSizes = map[int]int{0: 0, 1: 2, 2: 3, 3: 5, 4: 6, 5: 7, 6: 9, 7: 10, 8: 11}

// base58EncodeMonero implements Monero's variant of base58: input is split
// into 8-byte blocks, each encoded independently (rather than treating the
// whole input as one big integer, as Bitcoin's base58check does), so that
// leading-zero blocks don't collapse and every block's encoded width is
// fixed by its input length.
func base58EncodeMonero(data []byte) string {
	var out []byte
	for len(data) > 0 {
		n := fullBlockSize
		if len(data) < n {
			n = len(data)
		}
		out = append(out, encodeBlock(data[:n])...)
		data = data[n:]
	}
	return string(out)
}

func encodeBlock(block []byte) []byte {
	encodedSize := blockEncodedSizes[len(block)]

	num := new(big.Int).SetBytes(block)
	base := big.NewInt(58)
	rem := new(big.Int)

	digits := make([]byte, encodedSize)
	for i := encodedSize - 1; i >= 0; i-- {
		num.DivMod(num, base, rem)
		digits[i] = monerobase58Alphabet[rem.Int64()]
	}
	return digits
}
