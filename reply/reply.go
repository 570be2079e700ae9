// Package reply synthesises the ICMP/ICMPv6 responses that make route-chain
// look, from the probing side, like an arbitrarily long chain of routers.
//
// Every packet handed to Handle lives in a single caller-owned buffer laid
// out so that a reply can be written without ever copying the inbound
// packet's bytes:
//
//	buf[0:40]    outer IPv6 reply header (40 bytes), when synthesising v6
//	buf[20:40]   outer IPv4 reply header (20 bytes), when synthesising v4
//	buf[40:48]   outer ICMP/ICMPv6 reply header (8 bytes)
//	buf[48:]     the inbound packet, as read from the tun queue
//
// A v4 time-exceeded/unreachable reply is buf[20:76]; a v6 one is
// buf[0:96]. An echo reply never touches the outer region: it is produced
// in place at buf[48:48+n] and written from there. These offsets replace
// the original implementation's overlapping C structs.
package reply

import (
	"encoding/binary"
	"io"

	"github.com/tredeske/route-chain/cksum"
	"github.com/tredeske/route-chain/prefix"
)

const (
	// MaxPacket is the largest buffer a caller needs to allocate per
	// worker to hold the outer-header scratch space plus one full MTU
	// inbound packet.
	MaxPacket = 2048

	// InnerOffset is where callers must read the inbound packet into:
	// Handle expects it at buf[InnerOffset:InnerOffset+n], leaving the
	// bytes before it free for the outer reply header this package
	// writes in place. A caller reading a packet off a queue must do so
	// into buf[InnerOffset:], matching the original's offset read
	// (route-chain.c's read() into &pkt->ipv4_hdr).
	InnerOffset = 48

	icmpScratchOffset = 40 // 8 bytes: outer ICMP/ICMPv6 header scratch
	outerV4Offset     = 20 // 20 bytes: outer IPv4 header scratch
	outerV6Offset     = 0  // 40 bytes: outer IPv6 header scratch
)

// Handle inspects the inbound packet at buf[InnerOffset:InnerOffset+n] and,
// if it warrants a reply, writes one to w. A packet that doesn't match any
// configured prefix block, or that this system doesn't support (IP options,
// IPv6 extension headers, TCP), is silently dropped: Handle returns nil
// without writing anything.
func Handle(buf []byte, n int, blocks *prefix.Table, w io.Writer) error {
	if n < 1 || InnerOffset+n > len(buf) {
		return nil
	}
	inner := buf[InnerOffset : InnerOffset+n]
	switch inner[0] >> 4 {
	case 4:
		return handleV4(buf, inner, n, blocks, w)
	case 6:
		return handleV6(buf, inner, n, blocks, w)
	default:
		return nil
	}
}

func handleV4(buf []byte, inner []byte, n int, blocks *prefix.Table, w io.Writer) error {
	if n < 20 || inner[0]&0x0f != 5 {
		// IP options present, or header too short to trust: unsupported.
		return nil
	}
	proto := inner[9]

	isEcho := false
	if proto == protoICMP && n >= 21 {
		isEcho = inner[20] == icmpEcho
	}
	switch {
	case isEcho:
		return echoReplyV4(buf, n, w)
	case proto == protoTCP:
		// Extension point: TCP hop simulation is not implemented.
		return nil
	default:
		return ttlExceededV4(buf, inner, n, blocks, w)
	}
}

func handleV6(buf []byte, inner []byte, n int, blocks *prefix.Table, w io.Writer) error {
	if n < 40 {
		return nil
	}
	next := inner[6]
	if v6ExtensionHeaders[next] {
		return nil
	}

	isEcho := false
	if next == protoICMPv6 && n >= 41 {
		isEcho = inner[40] == icmpv6EchoRequest
	}
	switch {
	case isEcho:
		return echoReplyV6(buf, n, w)
	case next == protoTCP:
		return nil
	default:
		return ttlExceededV6(buf, inner, n, blocks, w)
	}
}

// echoReplyV4 turns an inbound v4 echo request into an echo reply in place:
// swap addresses, stamp the reply TTL, flip the ICMP type, and adjust both
// checksums incrementally rather than resumming the whole packet.
func echoReplyV4(buf []byte, n int, w io.Writer) error {
	inner := buf[InnerOffset : InnerOffset+n]

	var tmp [4]byte
	copy(tmp[:], inner[12:16])
	copy(inner[12:16], inner[16:20])
	copy(inner[16:20], tmp[:])

	oldTTL := inner[8]
	// ttl is the high byte of the word at offset 8-9 (ttl, protocol).
	ttlDelta := (int32(replyTTL) - int32(oldTTL)) << 8
	inner[8] = replyTTL
	hdrChecksum := binary.BigEndian.Uint16(inner[10:12])
	binary.BigEndian.PutUint16(inner[10:12], cksum.Incremental(hdrChecksum, ttlDelta))

	// icmp type is the high byte of the word at offset 20-21 (type, code).
	icmpDelta := (int32(icmpEchoReply) - int32(icmpEcho)) << 8
	inner[20] = icmpEchoReply
	icmpChecksum := binary.BigEndian.Uint16(inner[22:24])
	binary.BigEndian.PutUint16(inner[22:24], cksum.Incremental(icmpChecksum, icmpDelta))

	_, err := w.Write(inner)
	return err
}

// ttlExceededV4 fabricates a time-exceeded or (at the final hop)
// port-unreachable reply wrapping the first 28 bytes of the inbound packet,
// matching the outer-header-plus-original-datagram-head shape required by
// RFC 792.
func ttlExceededV4(buf []byte, inner []byte, n int, blocks *prefix.Table, w io.Writer) error {
	if n < 20 {
		return nil
	}
	dst := binary.BigEndian.Uint32(inner[16:20])
	base, ok := blocks.MatchV4(dst)
	if !ok {
		return nil
	}
	ttl := uint32(inner[8])

	outer := buf[outerV4Offset : outerV4Offset+20]
	for i := range outer {
		outer[i] = 0
	}
	outer[0] = 0x45 // version 4, IHL 5
	binary.BigEndian.PutUint16(outer[2:4], 56)
	outer[8] = replyTTL
	outer[9] = protoICMP
	copy(outer[16:20], inner[12:16]) // daddr = original saddr

	icmp := buf[icmpScratchOffset : icmpScratchOffset+8]
	for i := range icmp {
		icmp[i] = 0
	}

	if base <= dst && dst <= base+ttl {
		// reached the configured block: final hop is port-unreachable
		copy(outer[12:16], inner[16:20])
		icmp[0] = icmpDestUnreach
		icmp[1] = icmpPortUnreach
	} else {
		binary.BigEndian.PutUint32(outer[12:16], base+ttl)
		icmp[0] = icmpTimeExceeded
		icmp[1] = 0
	}

	binary.BigEndian.PutUint16(outer[10:12], cksum.Sum(outer))
	binary.BigEndian.PutUint16(icmp[2:4], cksum.Sum(buf[icmpScratchOffset:icmpScratchOffset+36]))

	_, err := w.Write(buf[outerV4Offset : outerV4Offset+56])
	return err
}

// echoReplyV6 mirrors echoReplyV4. The hop limit is not part of the
// ICMPv6 pseudo-header checksum, so only the ICMPv6 type change needs a
// checksum adjustment; swapping the two addresses leaves their contribution
// to the pseudo-header sum unchanged.
func echoReplyV6(buf []byte, n int, w io.Writer) error {
	inner := buf[InnerOffset : InnerOffset+n]

	var tmp [16]byte
	copy(tmp[:], inner[8:24])
	copy(inner[8:24], inner[24:40])
	copy(inner[24:40], tmp[:])

	inner[7] = replyTTL // hop limit

	icmpDelta := (int32(icmpv6EchoReply) - int32(icmpv6EchoRequest)) << 8
	inner[40] = icmpv6EchoReply
	icmpChecksum := binary.BigEndian.Uint16(inner[42:44])
	binary.BigEndian.PutUint16(inner[42:44], cksum.Incremental(icmpChecksum, icmpDelta))

	_, err := w.Write(inner)
	return err
}

// ttlExceededV6 mirrors ttlExceededV4 for the v6 family. Only the last
// 32-bit segment of the matched block participates in the terminal-hop
// test, matching the original's "adding to higher digits" simplification.
func ttlExceededV6(buf []byte, inner []byte, n int, blocks *prefix.Table, w io.Writer) error {
	if n < 40 {
		return nil
	}
	var dst [4]uint32
	for i := 0; i < 4; i++ {
		dst[i] = binary.BigEndian.Uint32(inner[24+i*4:])
	}
	base, ok := blocks.MatchV6(dst)
	if !ok {
		return nil
	}
	hlim := uint32(inner[7])

	outer := buf[outerV6Offset : outerV6Offset+40]
	for i := range outer {
		outer[i] = 0
	}
	outer[0] = 0x60 // version 6, traffic class/flow label zero
	binary.BigEndian.PutUint16(outer[4:6], 56)
	outer[6] = protoICMPv6
	outer[7] = replyTTL
	copy(outer[24:40], inner[8:24]) // dst = original src

	icmp := buf[icmpScratchOffset : icmpScratchOffset+8]
	for i := range icmp {
		icmp[i] = 0
	}

	if base[3] <= dst[3] && dst[3] <= base[3]+hlim {
		copy(outer[8:24], inner[24:40]) // src = original dst
		icmp[0] = icmpv6DestUnreach
		icmp[1] = icmpv6PortUnreach
	} else {
		var src [16]byte
		for i := 0; i < 4; i++ {
			v := base[i]
			if i == 3 {
				v += hlim
			}
			binary.BigEndian.PutUint32(src[i*4:], v)
		}
		copy(outer[8:24], src[:])
		icmp[0] = icmpv6TimeExceed
		icmp[1] = 0
	}

	var srcAddr, dstAddr [16]byte
	copy(srcAddr[:], outer[8:24])
	copy(dstAddr[:], outer[24:40])
	binary.BigEndian.PutUint16(icmp[2:4], 0)
	msg := buf[icmpScratchOffset : icmpScratchOffset+56]
	binary.BigEndian.PutUint16(icmp[2:4], cksum.SumICMPv6(srcAddr, dstAddr, protoICMPv6, msg))

	_, err := w.Write(buf[outerV6Offset : outerV6Offset+96])
	return err
}
