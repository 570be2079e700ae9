//go:build linux

// Package worker runs the fixed pool of per-CPU goroutines that each own
// one tun queue exclusively: read a packet, hand it to reply.Handle, write
// back whatever reply comes out, forever. There is no shared state between
// workers and no shutdown path; the kernel reclaims everything on process
// exit.
package worker

import (
	"io"
	"os"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/tredeske/route-chain/prefix"
	"github.com/tredeske/route-chain/reply"
	"github.com/tredeske/route-chain/uerr"
	"github.com/tredeske/route-chain/ulog"
)

// Pool owns one Run goroutine per tun queue, each pinned to its own CPU.
type Pool struct {
	Queues []*os.File
	Blocks *prefix.Table
}

// Start launches one worker per queue and returns immediately; workers run
// until the process exits.
func (this *Pool) Start() {
	for i, q := range this.Queues {
		go Run(i, q, this.Blocks)
	}
}

// Run is the body of a single worker: pin to CPU cpu, then loop reading
// fixed-size packets from q and replying on the same fd. A short read (n
// <= 0) is fatal, matching the original's DIE()-on-any-read-error
// contract - a tun queue does not return 0 or a transient error in normal
// operation.
func Run(cpu int, q *os.File, blocks *prefix.Table) {
	runtime.LockOSThread()
	if err := pin(cpu); err != nil {
		ulog.Warnf("worker %d: failed to pin to cpu: %s", cpu, err)
	}

	buf := make([]byte, reply.MaxPacket)
	for {
		if err := step(buf, q, blocks); err != nil {
			ulog.Fatalf("worker %d: %s", cpu, err)
		}
	}
}

// step runs one iteration of a worker's datapath: read one packet off rw
// into buf at reply.InnerOffset - the tun queue (or, in a test, any fake
// io.ReadWriter) never delivers the outer-header scratch space that
// precedes it - then hand it to reply.Handle, which writes any reply back
// to rw in place.
func step(buf []byte, rw io.ReadWriter, blocks *prefix.Table) error {
	n, err := rw.Read(buf[reply.InnerOffset:])
	if err != nil {
		return uerr.Chainf(err, "read queue")
	}
	if n <= 0 {
		return uerr.Chainf(nil, "short read from queue: %d", n)
	}

	if err := reply.Handle(buf, n, blocks, rw); err != nil {
		return uerr.Chainf(err, "write reply")
	}
	return nil
}

// pin binds the calling OS thread to a single CPU. Must be called after
// runtime.LockOSThread so the affinity sticks to the goroutine's thread
// for its lifetime.
func pin(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
