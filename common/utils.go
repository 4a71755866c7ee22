package common

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// SleepWithContext sleeps for d, or returns ctx.Err() if ctx is cancelled
// first. Every suspension point in the state machine (watchers, transport
// waits, backoff sleeps) goes through this so cancellation is always
// observed promptly.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reverse returns a reversed copy of b. It's used to convert between the
// big-endian and little-endian scalar encodings that Bitcoin and Monero
// libraries respectively expect.
func Reverse(b []byte) []byte {
	r := make([]byte, len(b))
	for i, v := range b {
		r[len(b)-1-i] = v
	}
	return r
}

// RandomID returns a random 16-byte identifier, hex-encoded. Used for
// swap-ids, which must be unguessable but need no other structure.
func RandomID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
