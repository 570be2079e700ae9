package reply

// see /usr/include/linux/icmp.h
const (
	icmpEcho          = 8  // Echo Request
	icmpEchoReply     = 0  // Echo Reply
	icmpDestUnreach   = 3  // Destination Unreachable
	icmpPortUnreach   = 3  // code: Port Unreachable
	icmpTimeExceeded  = 11 // Time Exceeded
)

// see /usr/include/linux/icmpv6.h
const (
	icmpv6EchoRequest = 128
	icmpv6EchoReply   = 129
	icmpv6DestUnreach = 1
	icmpv6PortUnreach = 4 // code: noroute/noport
	icmpv6TimeExceed  = 3
)

// IP protocol numbers, see /etc/protocols
const (
	protoICMP   = 1
	protoTCP    = 6
	protoICMPv6 = 58
)

// replyTTL is the hop limit/TTL stamped onto every synthesised reply,
// carried over from the original implementation (REPLY_TTL).
const replyTTL = 233

// v6ExtensionHeaders lists the IPv6 next-header values recognised as
// extension headers. A packet whose next header names one of these is
// dropped rather than misread as a transport protocol, since the chain
// isn't walked.
var v6ExtensionHeaders = map[byte]bool{
	0:   true, // Hop-by-Hop Options
	43:  true, // Routing
	44:  true, // Fragment
	50:  true, // Encapsulating Security Payload
	51:  true, // Authentication Header
	60:  true, // Destination Options
	135: true, // Mobility
	139: true, // Host Identity Protocol
	140: true, // Shim6
}
