package dleq

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"filippo.io/edwards25519"

	"github.com/athanorlabs/xmr-btc-swap/crypto/secp256k1"
)

// bitCommitmentSize is the serialized size of one bitCommitment: a
// compressed secp256k1 point, a compressed ed25519 point, and six 32-byte
// scalars (all reduced mod edOrder, so 32 bytes always suffices).
const bitCommitmentSize = 33 + 32 + 6*32

// Bytes serializes the proof for transmission in Message1/Message0: one
// fixed-size bitCommitment record per bit, in order, followed by a
// 2-byte length prefix and the big-endian blinding sum (which, unlike the
// per-bit scalars, can exceed 32 bytes).
func (p *Proof) Bytes() []byte {
	buf := make([]byte, 0, len(p.bits)*bitCommitmentSize+2+64)
	for _, bc := range p.bits {
		buf = append(buf, bc.cSecp.CompressedBytes()...)
		buf = append(buf, bc.cEd.Bytes()...)
		buf = appendFixed32(buf, bc.e0)
		buf = appendFixed32(buf, bc.e1)
		buf = appendFixed32(buf, bc.z0Secp)
		buf = appendFixed32(buf, bc.z1Secp)
		buf = appendFixed32(buf, bc.z0Ed)
		buf = appendFixed32(buf, bc.z1Ed)
	}

	sumBytes := p.blindingSum.Bytes()
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(sumBytes)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, sumBytes...)
	return buf
}

func appendFixed32(buf []byte, x *big.Int) []byte {
	var b [32]byte
	x.FillBytes(b[:])
	return append(buf, b[:]...)
}

// ProofFromBytes parses a proof serialized by Proof.Bytes.
func ProofFromBytes(data []byte) (*Proof, error) {
	bits := make([]bitCommitment, NumBits)
	off := 0

	for i := 0; i < NumBits; i++ {
		if len(data) < off+bitCommitmentSize {
			return nil, fmt.Errorf("dleq: truncated proof at bit %d", i)
		}

		cSecp, err := secp256k1.NewBitcoinPublicFromBytes(data[off : off+33])
		if err != nil {
			return nil, fmt.Errorf("dleq: bit %d: %w", i, err)
		}
		off += 33

		cEd, err := new(edwards25519.Point).SetBytes(data[off : off+32])
		if err != nil {
			return nil, fmt.Errorf("dleq: bit %d: invalid ed25519 point: %w", i, err)
		}
		off += 32

		scalars := make([]*big.Int, 6)
		for j := range scalars {
			scalars[j] = new(big.Int).SetBytes(data[off : off+32])
			off += 32
		}

		bits[i] = bitCommitment{
			cSecp:  cSecp,
			cEd:    cEd,
			e0:     scalars[0],
			e1:     scalars[1],
			z0Secp: scalars[2],
			z1Secp: scalars[3],
			z0Ed:   scalars[4],
			z1Ed:   scalars[5],
		}
	}

	if len(data) < off+2 {
		return nil, fmt.Errorf("dleq: truncated proof: missing blinding sum length")
	}
	sumLen := int(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	if len(data) < off+sumLen {
		return nil, fmt.Errorf("dleq: truncated proof: missing blinding sum")
	}
	blindingSum := new(big.Int).SetBytes(data[off : off+sumLen])
	off += sumLen

	if off != len(data) {
		return nil, fmt.Errorf("dleq: %d trailing bytes", len(data)-off)
	}

	return &Proof{bits: bits, blindingSum: blindingSum}, nil
}
