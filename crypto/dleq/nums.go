package dleq

import (
	"crypto/sha256"
	"encoding/binary"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
)

// secpNUMSGenerator and edNUMSGenerator are "nothing up my sleeve" second
// generators, used as the Pedersen blinding base for the per-bit
// commitments below. Each is derived by hashing a domain-separated counter
// until the digest happens to decode as a valid curve point; neither curve
// has a convenient general hash-to-curve function available in the pack,
// so this is the standard rejection-sampling construction.
var (
	secpNUMSGenerator = deriveSecpNUMS("xmr-btc-swap/dleq/secp256k1-H")
	edNUMSGenerator   = deriveEdNUMS("xmr-btc-swap/dleq/ed25519-H")
)

func deriveSecpNUMS(domain string) *secp256k1.BitcoinPublic {
	for counter := uint32(0); ; counter++ {
		digest := hashCounter(domain, counter)
		candidate := append([]byte{0x02}, digest...)
		if p, err := secp256k1.NewBitcoinPublicFromBytes(candidate); err == nil {
			return p
		}
	}
}

func deriveEdNUMS(domain string) *edwards25519.Point {
	for counter := uint32(0); ; counter++ {
		digest := hashCounter(domain, counter)
		if p, err := new(edwards25519.Point).SetBytes(digest); err == nil {
			return p
		}
	}
}

func hashCounter(domain string, counter uint32) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], counter)
	h.Write(b[:])
	return h.Sum(nil)
}

// secpPointSub returns a-b on secp256k1.
func secpPointSub(a, b *secp256k1.BitcoinPublic) *secp256k1.BitcoinPublic {
	negOne := new(btcec.ModNScalar).SetInt(1).Negate()
	return secp256k1.Add(a, secp256k1.ScalarMult(negOne, b))
}
