//go:build linux

package worker

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tredeske/route-chain/prefix"
	"github.com/tredeske/route-chain/reply"
)

// pin only needs to succeed for whatever CPU this test process happens to
// be scheduled on; CPU 0 always exists.
func TestPinCPUZero(t *testing.T) {
	require.NoError(t, pin(0))
}

// fakeQueue stands in for a tun queue's fd: Read delivers one fixed packet
// starting at offset 0 of its own wire buffer (exactly what a tun queue
// hands the kernel, with no outer-header scratch space in front of it),
// and Write captures whatever step wrote back.
type fakeQueue struct {
	wire []byte
	out  bytes.Buffer
}

func (this *fakeQueue) Read(p []byte) (int, error) {
	if len(this.wire) == 0 {
		return 0, io.EOF
	}
	n := copy(p, this.wire)
	this.wire = nil
	return n, nil
}

func (this *fakeQueue) Write(p []byte) (int, error) {
	return this.out.Write(p)
}

// v4EchoWire builds a minimal 28-byte v4 ICMP echo request - exactly the
// bytes a tun queue would deliver - with no InnerOffset padding in front.
func v4EchoWire(saddr, daddr [4]byte, ttl byte) []byte {
	pkt := make([]byte, 28)
	pkt[0] = 0x45
	binary.BigEndian.PutUint16(pkt[2:4], 28)
	pkt[8] = ttl
	pkt[9] = 1 // ICMP
	copy(pkt[12:16], saddr[:])
	copy(pkt[16:20], daddr[:])
	pkt[20] = 8 // echo request
	return pkt
}

// step must read the packet off rw into buf at reply.InnerOffset, not at
// buf[0]; a worker that reads into buf[0] instead would hand reply.Handle
// InnerOffset bytes of zeros followed by garbage, and this test would see
// no reply written at all.
func TestStepReadsPacketAtInnerOffset(t *testing.T) {
	saddr := [4]byte{10, 0, 0, 1}
	daddr := [4]byte{192, 0, 2, 1}
	q := &fakeQueue{wire: v4EchoWire(saddr, daddr, 64)}

	buf := make([]byte, reply.MaxPacket)
	err := step(buf, q, &prefix.Table{})
	require.NoError(t, err)

	out := q.out.Bytes()
	require.Len(t, out, 28)
	require.Equal(t, daddr[:], out[12:16])
	require.Equal(t, saddr[:], out[16:20])
	require.EqualValues(t, 0, out[20]) // echo reply type
}
