// Package tcp is a plain TCP, length-prefix-framed transport.Transport,
// the "plain TCP+length-prefix framing" alternative transport.Transport's
// own doc comment names alongside libp2p. Each message is a 4-byte
// big-endian length followed by that many bytes of net/message-encoded
// payload; there is no multiplexing, retry, or peer discovery here, since
// a Transport only ever serves the single counterparty connection a swap
// session was handed.
package tcp

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/athanorlabs/xmr-btc-swap/common"
	"github.com/athanorlabs/xmr-btc-swap/net/message"
	"github.com/athanorlabs/xmr-btc-swap/net/transport"
)

// maxMessageSize bounds a single framed message, generous enough for
// Message2's PSBT payload while rejecting a corrupt or hostile length
// prefix outright.
const maxMessageSize = 1 << 20

// Transport implements transport.Transport over an established net.Conn.
type Transport struct {
	conn net.Conn
}

// New wraps an already-connected net.Conn (e.g. from net.Dial or an
// Accept'd listener) as a Transport.
func New(conn net.Conn) *Transport {
	return &Transport{conn: conn}
}

// Dial connects to addr and wraps the resulting connection as a Transport.
func Dial(ctx context.Context, addr string) (*Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, common.NewError(common.KindTransport, fmt.Errorf("tcp: dialing %s: %w", addr, err))
	}
	return New(conn), nil
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// Send transmits msg as a length-prefixed frame.
func (t *Transport) Send(ctx context.Context, msg common.Message) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	} else {
		_ = t.conn.SetWriteDeadline(time.Time{})
	}

	payload, err := msg.Encode()
	if err != nil {
		return common.NewError(common.KindTransport, fmt.Errorf("tcp: encoding %s: %w", msg, err))
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(payload)))

	if _, err := t.conn.Write(lenPrefix[:]); err != nil {
		return common.NewError(common.KindTransport, fmt.Errorf("tcp: writing frame length: %w", err))
	}
	if _, err := t.conn.Write(payload); err != nil {
		return common.NewError(common.KindTransport, fmt.Errorf("tcp: writing frame body: %w", err))
	}
	return nil
}

// Receive blocks until the next framed message arrives or timeout elapses.
func (t *Transport) Receive(ctx context.Context, timeout time.Duration) (common.Message, error) {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = t.conn.SetReadDeadline(deadline)

	var lenPrefix [4]byte
	if _, err := io.ReadFull(t.conn, lenPrefix[:]); err != nil {
		return nil, common.NewError(common.KindTransport, fmt.Errorf("tcp: reading frame length: %w", err))
	}

	frameLen := binary.BigEndian.Uint32(lenPrefix[:])
	if frameLen == 0 || frameLen > maxMessageSize {
		return nil, common.NewError(common.KindTransport, fmt.Errorf("tcp: invalid frame length %d", frameLen))
	}

	body := make([]byte, frameLen)
	if _, err := io.ReadFull(t.conn, body); err != nil {
		return nil, common.NewError(common.KindTransport, fmt.Errorf("tcp: reading frame body: %w", err))
	}

	msg, err := message.DecodeMessage(body)
	if err != nil {
		return nil, common.NewError(common.KindTransport, fmt.Errorf("tcp: %w", err))
	}
	return msg, nil
}

var _ transport.Transport = (*Transport)(nil)
