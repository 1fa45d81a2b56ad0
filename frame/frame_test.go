package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopSecurityRoundTrips(t *testing.T) {
	var sec NoopSecurity
	src := []byte{1, 2, 3, 4}
	dst := make([]byte, MaxLen)

	n := sec.SecureFrame(dst, src, len(src))
	require.Equal(t, len(src), n)
	require.Equal(t, src, dst[:n])

	got, ok := sec.ParseFrame(dst, n)
	require.True(t, ok)
	require.Equal(t, len(src), got)
}

func TestInputPacketPayloadIsBoundedByMaxLen(t *testing.T) {
	var ip InputPacket
	require.Len(t, ip.Payload, MaxLen)
}
