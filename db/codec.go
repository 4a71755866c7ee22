package db

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Tag identifies which concrete state variant a persisted blob decodes as.
// Tags are assigned per role: protocol/alice and protocol/bob each tag only
// their checkpointed states, and the same tag value names a different type
// in each role's bucket. New tags may be added, but an existing tag's
// meaning never changes.
type Tag byte

// envelope is the self-describing wrapper every persisted value is encoded
// as: a tag plus the tag-specific payload, deferred as raw CBOR until the
// caller (which knows the concrete Go type for that tag) asks for it.
type envelope struct {
	Tag     Tag             `cbor:"1,keyasint"`
	Payload cbor.RawMessage `cbor:"2,keyasint"`
}

// Encode wraps payload, marshaled as CBOR, under tag.
func Encode(tag Tag, payload interface{}) ([]byte, error) {
	raw, err := cbor.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("db: encoding payload for tag %d: %w", tag, err)
	}
	return cbor.Marshal(envelope{Tag: tag, Payload: raw})
}

// Decode returns the tag and raw payload bytes of an encoded blob, without
// knowing the payload's concrete type; the caller re-unmarshals Payload
// into the Go type that tag is documented to mean. Decode itself enforces
// the "strict decoder rejects unknown variants" contract by requiring
// known to contain tag; an unrecognised tag is always a corruption or a
// forward-compatibility break, never something safe to ignore.
func Decode(data []byte, known map[Tag]bool) (Tag, cbor.RawMessage, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return 0, nil, fmt.Errorf("db: decoding envelope: %w", err)
	}
	if !known[env.Tag] {
		return 0, nil, fmt.Errorf("db: unknown state tag %d", env.Tag)
	}
	return env.Tag, env.Payload, nil
}

// DecodePayload unmarshals raw into out, the Go type a given Tag decodes
// as.
func DecodePayload(raw cbor.RawMessage, out interface{}) error {
	return cbor.Unmarshal(raw, out)
}
