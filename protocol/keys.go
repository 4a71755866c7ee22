// Package protocol holds the key-generation and persistence helpers shared
// by both swap roles (protocol/alice, protocol/bob), so that neither role
// package depends on the other. Grounded on mewmix-atomic-swap's top-level
// protocol package (pcommon in its call sites: GenerateKeysAndProof,
// WriteKeysToFile, ClaimMonero), generalised for a two-secp256k1-key-per-
// party protocol: one ephemeral keypair for the Bitcoin 2-of-2 lock output,
// and one cross-curve scalar (the Monero spend-key share) whose secp256k1
// representative is the adaptor signature's encryption point.
package protocol

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/crypto/dleq"
	"github.com/athanorlabs/xmr-btc-swap/crypto/monero"
	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
)

// KeysAndProof bundles one party's full ephemeral key material for a single
// swap session.
type KeysAndProof struct {
	// MultisigKey is this party's half of the Bitcoin 2-of-2 lock/cancel/
	// redeem witness script (A for Alice, B for Bob).
	MultisigKey *secp256k1.BitcoinSecret

	// Secret is the cross-curve scalar (s_a or s_b): its ed25519
	// representative is this party's Monero spend-key share, its secp256k1
	// representative is the point the counterparty's adaptor signatures
	// encrypt to.
	Secret *dleq.CrossCurveScalar

	// Proof demonstrates Secret's secp256k1 and ed25519 representatives
	// share the same discrete log.
	Proof *dleq.Proof

	// ViewKey is this party's Monero view-key share (v_a or v_b),
	// generated independently of Secret and disclosed in the clear during
	// the handshake.
	ViewKey *monero.PrivateViewKey
}

// SpendKey returns the Monero private spend-key share derived from Secret.
func (k *KeysAndProof) SpendKey() *monero.PrivateSpendKey {
	return monero.NewPrivateSpendKeyFromScalar(k.Secret.Ed25519Scalar())
}

// PrivateKeyPair returns this party's Monero (spend, view) key pair.
func (k *KeysAndProof) PrivateKeyPair() *monero.PrivateKeyPair {
	return monero.NewPrivateKeyPair(k.SpendKey(), k.ViewKey)
}

// PublicKeyPair returns the public counterpart of PrivateKeyPair, the form
// sent over the wire and used in SumSpendAndViewKeys.
func (k *KeysAndProof) PublicKeyPair() *monero.PublicKeyPair {
	return monero.NewPublicKeyPair(k.SpendKey().Public(), k.ViewKey.Public())
}

// GenerateKeysAndProof generates a fresh multisig keypair, a fresh
// cross-curve scalar, a fresh view key, and a DLEQ proof binding the
// scalar's two curve representations. transcript should already contain
// the swap id, so a proof generated for one swap can never be replayed
// against another.
func GenerateKeysAndProof(transcript []byte) (*KeysAndProof, error) {
	multisigKey, err := secp256k1.GenerateBitcoinSecret()
	if err != nil {
		return nil, fmt.Errorf("protocol: generating multisig key: %w", err)
	}

	secret, err := dleq.GenerateCrossCurveScalar()
	if err != nil {
		return nil, fmt.Errorf("protocol: generating cross-curve scalar: %w", err)
	}

	viewKey, err := monero.GeneratePrivateViewKey()
	if err != nil {
		return nil, fmt.Errorf("protocol: generating view key: %w", err)
	}

	fullTranscript := buildTranscript(transcript, secret.Secp256k1Public().CompressedBytes(), secret.Ed25519Public().Bytes())
	proof, err := dleq.Prove(secret, fullTranscript)
	if err != nil {
		return nil, fmt.Errorf("protocol: proving cross-curve scalar: %w", err)
	}

	return &KeysAndProof{
		MultisigKey: multisigKey,
		Secret:      secret,
		Proof:       proof,
		ViewKey:     viewKey,
	}, nil
}

// VerifyDLEQ checks that proof attests secpPub and edPub share a discrete
// log, under the same transcript convention GenerateKeysAndProof uses.
func VerifyDLEQ(transcript []byte, secpPub *secp256k1.BitcoinPublic, edPub *monero.PublicKey, proof *dleq.Proof) error {
	fullTranscript := buildTranscript(transcript, secpPub.CompressedBytes(), edPub.Bytes())

	result, err := dleq.Verify(secpPub, edPub.Point(), proof, fullTranscript)
	if err != nil {
		return fmt.Errorf("protocol: dleq proof invalid: %w", err)
	}
	if result.Secp256k1Public.String() != secpPub.String() {
		return fmt.Errorf("protocol: dleq proof does not attest the claimed secp256k1 public key")
	}
	return nil
}

// RecoverCrossCurveScalar rebuilds a CrossCurveScalar from the secp256k1
// scalar adaptor.Recover extracts from a counterparty's published
// transaction. Since a CrossCurveScalar's secp256k1 and ed25519
// representatives are the same sub-2^252 integer (see crypto/dleq), the
// recovered value is a valid reconstruction of the counterparty's Monero
// spend-key share.
func RecoverCrossCurveScalar(y *btcec.ModNScalar) (*dleq.CrossCurveScalar, error) {
	var bigEndian [32]byte
	y.PutBytesUnchecked(bigEndian[:])
	return dleq.NewCrossCurveScalar(common.Reverse(bigEndian[:]))
}

// buildTranscript binds a DLEQ proof to the swap it was generated for and
// to both of the public points it attests, so a proof cannot be replayed
// against a different swap or a different pair of keys.
func buildTranscript(swapTranscript, secpPubBytes, edPubBytes []byte) []byte {
	t := append([]byte{}, swapTranscript...)
	t = append(t, secpPubBytes...)
	t = append(t, edPubBytes...)
	return t
}
