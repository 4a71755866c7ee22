package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranscriptsAreDistinctPerRole(t *testing.T) {
	p := &Params{SwapID: "swap-42"}
	require.NotEqual(t, p.AliceTranscript(), p.BobTranscript())
	require.Contains(t, string(p.AliceTranscript()), "swap-42")
	require.Contains(t, string(p.BobTranscript()), "swap-42")
}

func TestTranscriptsDifferAcrossSwapIDs(t *testing.T) {
	p1 := &Params{SwapID: "swap-1"}
	p2 := &Params{SwapID: "swap-2"}
	require.NotEqual(t, p1.AliceTranscript(), p2.AliceTranscript())
}
