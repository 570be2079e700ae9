//go:build linux

// Package tun provisions the kernel tun interface route-chain attaches
// to: one multi-queue device opened once per worker, brought up, and
// given one local address per configured prefix block.
package tun

import (
	"fmt"
	"net"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tredeske/route-chain/uerr"
)

const (
	tunDevice = "/dev/net/tun"

	// sizeof(struct ifreq) on linux/amd64: a 16-byte name followed by a
	// union whose largest relevant member here is the flags field.
	ifReqSize = 40
)

// ifReq mirrors enough of linux's struct ifreq to drive TUNSETIFF: the
// interface name followed by the flags word, zero-padded to the real
// struct's size so the ioctl doesn't read past the buffer.
type ifReq struct {
	Name  [unix.IFNAMSIZ]byte
	Flags uint16
	_     [ifReqSize - unix.IFNAMSIZ - 2]byte
}

// Interface is a provisioned tun device: one *os.File per queue, all
// sharing the same kernel-assigned interface name.
type Interface struct {
	Name   string
	Queues []*os.File
}

// Create opens nQueues independent queues on one new multi-queue tun
// device. The kernel assigns the interface name on the first open; every
// subsequent open joins the same interface by requesting the same flags
// with that name, per TUNSETIFF's multi-queue convention.
func Create(nQueues int) (*Interface, error) {
	if nQueues < 1 {
		nQueues = 1
	}
	iface := &Interface{Queues: make([]*os.File, 0, nQueues)}

	for i := 0; i < nQueues; i++ {
		f, err := os.OpenFile(tunDevice, os.O_RDWR, 0)
		if err != nil {
			iface.Close()
			return nil, uerr.Chainf(err, "opening %s", tunDevice)
		}

		var req ifReq
		copy(req.Name[:], iface.Name)
		req.Flags = unix.IFF_TUN | unix.IFF_NO_PI | unix.IFF_MULTI_QUEUE

		if err := ioctl(f.Fd(), unix.TUNSETIFF, uintptr(unsafe.Pointer(&req))); err != nil {
			f.Close()
			iface.Close()
			return nil, uerr.Chainf(err, "TUNSETIFF on queue %d", i)
		}

		if iface.Name == "" {
			iface.Name = nameFromReq(req)
		}
		iface.Queues = append(iface.Queues, f)
	}
	return iface, nil
}

// Close closes every queue this interface opened. The kernel tears down
// the tun device itself once the last queue fd closes.
func (this *Interface) Close() {
	for _, f := range this.Queues {
		f.Close()
	}
}

// Index returns the kernel interface index, needed by the netlink
// messages BringUp and AddAddress send.
func (this *Interface) Index() (int, error) {
	iface, err := net.InterfaceByName(this.Name)
	if err != nil {
		return 0, uerr.Chainf(err, "looking up interface %q", this.Name)
	}
	return iface.Index, nil
}

func nameFromReq(req ifReq) string {
	n := 0
	for n < len(req.Name) && req.Name[n] != 0 {
		n++
	}
	return string(req.Name[:n])
}

func ioctl(fd uintptr, req uint, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), arg)
	if errno != 0 {
		return fmt.Errorf("ioctl %#x: %w", req, errno)
	}
	return nil
}
