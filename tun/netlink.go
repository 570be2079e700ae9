//go:build linux

package tun

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/tredeske/route-chain/uerr"
)

// netlink message layout constants, sized for amd64/linux.
const (
	nlmsgHdrLen  = 16 // sizeof(nlmsghdr)
	ifaddrmsgLen = 8  // sizeof(ifaddrmsg)
	ifinfomsgLen = 16 // sizeof(ifinfomsg)
	rtaHdrLen    = 4  // sizeof(rtattr)
)

// BringUp sets IFF_UP|IFF_RUNNING on the interface via a raw RTM_NEWLINK
// message, replacing the original's SIOCSIFFLAGS ioctl with the netlink
// equivalent.
func (this *Interface) BringUp() error {
	idx, err := this.Index()
	if err != nil {
		return err
	}
	fd, err := netlinkSocket()
	if err != nil {
		return uerr.Chainf(err, "opening netlink socket")
	}
	defer unix.Close(fd)

	msg := buildSetLinkUpMsg(int32(idx))
	if err := unix.Sendto(fd, msg, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		return uerr.Chainf(err, "sending RTM_NEWLINK for %q", this.Name)
	}
	return nil
}

// AddAddress assigns a local address to the interface via a raw
// RTM_NEWADDR message carrying only IFA_LOCAL, matching the original
// implementation. The acknowledgement is requested (NLM_F_ACK) but never
// read: a failure here surfaces later as dropped traffic, not a startup
// error, matching spec behavior.
func (this *Interface) AddAddress(family uint8, addr []byte, prefixLen int) error {
	idx, err := this.Index()
	if err != nil {
		return err
	}
	fd, err := netlinkSocket()
	if err != nil {
		return uerr.Chainf(err, "opening netlink socket")
	}
	defer unix.Close(fd)

	msg := buildNewAddrMsg(int32(idx), family, uint8(prefixLen), addr)
	if err := unix.Sendto(fd, msg, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		return uerr.Chainf(err, "sending RTM_NEWADDR for %q", this.Name)
	}
	return nil
}

func netlinkSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_ROUTE)
	if err != nil {
		return -1, err
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func rtaAlignLen(n int) int {
	return (n + unix.RTA_ALIGNTO - 1) &^ (unix.RTA_ALIGNTO - 1)
}

// buildNewAddrMsg constructs an RTM_NEWADDR netlink message carrying a
// single IFA_LOCAL attribute.
func buildNewAddrMsg(ifIndex int32, family uint8, prefixLen uint8, addr []byte) []byte {
	attrLen := rtaAlignLen(rtaHdrLen + len(addr))
	totalLen := nlmsgHdrLen + ifaddrmsgLen + attrLen
	buf := make([]byte, totalLen)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(totalLen))
	binary.LittleEndian.PutUint16(buf[4:6], unix.RTM_NEWADDR)
	binary.LittleEndian.PutUint16(buf[6:8], unix.NLM_F_REQUEST|unix.NLM_F_ACK|unix.NLM_F_CREATE|unix.NLM_F_EXCL)
	binary.LittleEndian.PutUint32(buf[8:12], 1)
	binary.LittleEndian.PutUint32(buf[12:16], 0)

	off := nlmsgHdrLen
	buf[off] = family
	buf[off+1] = prefixLen
	buf[off+2] = 0
	buf[off+3] = unix.RT_SCOPE_UNIVERSE
	binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(ifIndex))

	off = nlmsgHdrLen + ifaddrmsgLen
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(rtaHdrLen+len(addr)))
	binary.LittleEndian.PutUint16(buf[off+2:off+4], unix.IFA_LOCAL)
	copy(buf[off+rtaHdrLen:], addr)

	return buf
}

// buildSetLinkUpMsg constructs an RTM_NEWLINK message that sets IFF_UP.
func buildSetLinkUpMsg(ifIndex int32) []byte {
	totalLen := nlmsgHdrLen + ifinfomsgLen
	buf := make([]byte, totalLen)

	binary.LittleEndian.PutUint32(buf[0:4], uint32(totalLen))
	binary.LittleEndian.PutUint16(buf[4:6], unix.RTM_NEWLINK)
	binary.LittleEndian.PutUint16(buf[6:8], unix.NLM_F_REQUEST|unix.NLM_F_ACK)
	binary.LittleEndian.PutUint32(buf[8:12], 1)
	binary.LittleEndian.PutUint32(buf[12:16], 0)

	off := nlmsgHdrLen
	buf[off] = unix.AF_UNSPEC
	binary.LittleEndian.PutUint32(buf[off+4:off+8], uint32(ifIndex))
	binary.LittleEndian.PutUint32(buf[off+8:off+12], unix.IFF_UP|unix.IFF_RUNNING)
	binary.LittleEndian.PutUint32(buf[off+12:off+16], unix.IFF_UP|unix.IFF_RUNNING)

	return buf
}
