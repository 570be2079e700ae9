//go:build linux

// route-chain attaches to a kernel tun interface and answers traceroutes
// into any number of configured address blocks as if each hop were a real
// router, without ever forwarding a packet anywhere.
//
// Usage:
//
//	route-chain addr[/prefixlen] [addr[/prefixlen] ...]
//
// Each argument is an IPv4 or IPv6 literal, optionally with a prefix
// length (defaulting to the family's full address width). route-chain
// answers for every one of them.
package main

import (
	"net"
	"os"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/tredeske/route-chain/prefix"
	"github.com/tredeske/route-chain/tun"
	"github.com/tredeske/route-chain/ulog"
	"github.com/tredeske/route-chain/worker"
)

func main() {
	blocks, err := prefix.Build(os.Args[1:])
	if err != nil {
		ulog.Fatalf("parsing arguments: %s", err)
	}

	nWorkers := runtime.NumCPU()
	if nWorkers < 1 {
		nWorkers = 1
	}

	iface, err := tun.Create(nWorkers)
	if err != nil {
		ulog.Fatalf("creating tun interface: %s", err)
	}
	if err = iface.BringUp(); err != nil {
		ulog.Fatalf("bringing up %q: %s", iface.Name, err)
	}

	for _, b := range blocks.Blocks {
		if err := addBlockAddress(iface, b); err != nil {
			ulog.Fatalf("adding address for block: %s", err)
		}
	}

	idx, err := iface.Index()
	if err != nil {
		ulog.Fatalf("looking up interface index: %s", err)
	}

	// Informational only - consumers MUST NOT parse this output.
	ulog.Printf("Interface: %s", iface.Name)
	ulog.Printf("Index: %d", idx)
	ulog.Printf("Threads: %d", nWorkers)

	pool := &worker.Pool{Queues: iface.Queues, Blocks: blocks}
	pool.Start()

	select {} // workers run until the kernel reclaims the process
}

func addBlockAddress(iface *tun.Interface, b prefix.Block) error {
	if b.Family == prefix.V4 {
		addr := make(net.IP, 4)
		addr[0] = byte(b.V4Base >> 24)
		addr[1] = byte(b.V4Base >> 16)
		addr[2] = byte(b.V4Base >> 8)
		addr[3] = byte(b.V4Base)
		return iface.AddAddress(unix.AF_INET, addr, b.PrefixLen)
	}

	addr := make(net.IP, 16)
	for i, seg := range b.V6Base {
		addr[i*4] = byte(seg >> 24)
		addr[i*4+1] = byte(seg >> 16)
		addr[i*4+2] = byte(seg >> 8)
		addr[i*4+3] = byte(seg)
	}
	return iface.AddAddress(unix.AF_INET6, addr, b.PrefixLen)
}
