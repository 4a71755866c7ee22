package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindStringKnownAndUnknown(t *testing.T) {
	require.Equal(t, "validation", KindValidation.String())
	require.Equal(t, "storage", KindStorage.String())
	require.Equal(t, "unknown", Kind(99).String())
}

func TestErrorMessageIncludesKind(t *testing.T) {
	err := Errorf(KindWallet, "insufficient balance: %d", 5)
	require.Equal(t, "wallet: insufficient balance: 5", err.Error())
}

func TestErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := NewError(KindTransport, inner)
	require.ErrorIs(t, err, inner)
	require.Equal(t, inner, errors.Unwrap(err))
}

func TestErrorIsMatchesSameKindOnly(t *testing.T) {
	a := NewError(KindProtocolAbort, fmt.Errorf("a"))
	b := NewError(KindProtocolAbort, fmt.Errorf("b"))
	c := NewError(KindValidation, fmt.Errorf("c"))

	require.True(t, a.Is(b))
	require.False(t, a.Is(c))
}

func TestIsKindWalksWrapChain(t *testing.T) {
	base := NewError(KindStorage, fmt.Errorf("cas mismatch"))
	wrapped := fmt.Errorf("writing state: %w", base)
	doubleWrapped := fmt.Errorf("persisting swap: %w", wrapped)

	require.True(t, IsKind(doubleWrapped, KindStorage))
	require.False(t, IsKind(doubleWrapped, KindWallet))
}

func TestIsKindFalseForPlainError(t *testing.T) {
	require.False(t, IsKind(fmt.Errorf("plain"), KindValidation))
	require.False(t, IsKind(nil, KindValidation))
}

func TestErrCancelledIsKindCancelled(t *testing.T) {
	require.True(t, IsKind(ErrCancelled, KindCancelled))
}

func TestErrUnexpectedMessageIsKindValidation(t *testing.T) {
	require.True(t, IsKind(ErrUnexpectedMessage, KindValidation))
}
