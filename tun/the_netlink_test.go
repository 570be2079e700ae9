//go:build linux

package tun

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestBuildNewAddrMsgV4Layout(t *testing.T) {
	addr := []byte{198, 51, 100, 1}
	msg := buildNewAddrMsg(7, unix.AF_INET, 24, addr)

	require.EqualValues(t, len(msg), binary.LittleEndian.Uint32(msg[0:4]))
	require.EqualValues(t, unix.RTM_NEWADDR, binary.LittleEndian.Uint16(msg[4:6]))
	require.EqualValues(t, unix.AF_INET, msg[nlmsgHdrLen])
	require.EqualValues(t, 24, msg[nlmsgHdrLen+1])
	require.EqualValues(t, 7, binary.LittleEndian.Uint32(msg[nlmsgHdrLen+4:nlmsgHdrLen+8]))

	attrOff := nlmsgHdrLen + ifaddrmsgLen
	require.EqualValues(t, unix.IFA_LOCAL, binary.LittleEndian.Uint16(msg[attrOff+2:attrOff+4]))
	require.Equal(t, addr, msg[attrOff+rtaHdrLen:attrOff+rtaHdrLen+4])
}

func TestBuildSetLinkUpMsgLayout(t *testing.T) {
	msg := buildSetLinkUpMsg(3)

	require.EqualValues(t, len(msg), binary.LittleEndian.Uint32(msg[0:4]))
	require.EqualValues(t, unix.RTM_NEWLINK, binary.LittleEndian.Uint16(msg[4:6]))
	require.EqualValues(t, 3, binary.LittleEndian.Uint32(msg[nlmsgHdrLen+4:nlmsgHdrLen+8]))
	require.EqualValues(t, unix.IFF_UP|unix.IFF_RUNNING,
		binary.LittleEndian.Uint32(msg[nlmsgHdrLen+8:nlmsgHdrLen+12]))
}

func TestRtaAlignLen(t *testing.T) {
	require.Equal(t, 8, rtaAlignLen(8))
	require.Equal(t, 8, rtaAlignLen(5))
	require.Equal(t, 12, rtaAlignLen(9))
}
