// Package prefix holds the ordered table of configured v4/v6 address
// blocks that route-chain answers for, and the linear-scan matching logic
// that decides which block a packet's destination falls into.
//
// A block is immutable once built: the low bits of its base address below
// the prefix length are kept exactly as configured, since the reply
// synthesiser reuses the base as the address of the first synthetic hop.
package prefix

import (
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/tredeske/route-chain/uerr"
)

// Family is the address family of a configured block.
type Family int

const (
	V4 Family = iota
	V6
)

// Block is one configured prefix: a family, a base address (stored
// verbatim, including bits below PrefixLen), and a prefix length.
type Block struct {
	Family    Family
	V4Base    uint32   // host order, valid iff Family == V4
	V6Base    [4]uint32 // host order segments, valid iff Family == V6
	PrefixLen int
}

// Table is the ordered sequence of configured blocks. Lookup is a linear
// scan in configuration order; ties are broken by that order, and no
// longest-prefix-match is performed.
type Table struct {
	Blocks []Block
}

// errMalformed is returned (wrapped with the offending literal) when an
// argument cannot be parsed as addr[/prefixlen].
var errMalformed = errors.New("malformed address")

// Build parses each config entry as addr[/prefixlen]. Presence of ':'
// selects the v6 family, otherwise v4. A missing prefix length defaults to
// the family's full address width. Order is preserved.
func Build(entries []string) (*Table, error) {
	t := &Table{Blocks: make([]Block, 0, len(entries))}
	for _, entry := range entries {
		b, err := parseEntry(entry)
		if err != nil {
			return nil, uerr.Chainf(err, "parsing prefix block %q", entry)
		}
		t.Blocks = append(t.Blocks, b)
	}
	return t, nil
}

func parseEntry(entry string) (b Block, err error) {
	family := V4
	if strings.Contains(entry, ":") {
		family = V6
	}

	literal := entry
	prefixLen := 32
	if family == V6 {
		prefixLen = 128
	}
	if idx := strings.IndexByte(entry, '/'); idx >= 0 {
		literal = entry[:idx]
		prefixLen, err = strconv.Atoi(entry[idx+1:])
		if err != nil {
			return b, uerr.Chainf(errMalformed, "bad prefix length in %q", entry)
		}
	}

	ip := net.ParseIP(literal)
	if nil == ip {
		return b, uerr.Chainf(errMalformed, "unparseable address %q", literal)
	}

	b.Family = family
	b.PrefixLen = prefixLen
	if family == V4 {
		v4 := ip.To4()
		if nil == v4 {
			return b, uerr.Chainf(errMalformed, "%q is not a v4 literal", literal)
		}
		if 0 > prefixLen || 32 < prefixLen {
			return b, uerr.Chainf(errMalformed, "v4 prefix length out of range in %q", entry)
		}
		b.V4Base = bytesToUint32(v4)
	} else {
		v6 := ip.To16()
		if nil == v6 || nil != ip.To4() {
			return b, uerr.Chainf(errMalformed, "%q is not a v6 literal", literal)
		}
		if 0 > prefixLen || 128 < prefixLen {
			return b, uerr.Chainf(errMalformed, "v6 prefix length out of range in %q", entry)
		}
		for i := 0; i < 4; i++ {
			b.V6Base[i] = bytesToUint32(v6[i*4 : i*4+4])
		}
	}
	return b, nil
}

func bytesToUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// maskFromBits returns a 32-bit mask with the top bits many bits set,
// clamped to [0,32]. A bits value of 32 yields an all-ones mask (requiring
// exact equality); a bits value of 0 yields an all-zero mask (making the
// segment irrelevant to the match).
func maskFromBits(bits int) uint32 {
	if 0 >= bits {
		return 0
	} else if 32 <= bits {
		return 0xffffffff
	}
	return ^uint32(0) << uint(32-bits)
}

// MatchV4 returns the base address (host order) of the first configured
// v4 block whose masked base equals the masked destination, and whether
// any block matched.
func (t *Table) MatchV4(dst uint32) (base uint32, ok bool) {
	for _, b := range t.Blocks {
		if V4 != b.Family {
			continue
		}
		mask := maskFromBits(b.PrefixLen)
		if dst&mask == b.V4Base&mask {
			return b.V4Base, true
		}
	}
	return 0, false
}

// MatchV6 returns the base address (host order, four 32-bit segments) of
// the first configured v6 block whose masked base equals the masked
// destination, and whether any block matched. The mask only straddles one
// segment; segments entirely below the prefix boundary require exact
// equality and segments entirely above are ignored.
func (t *Table) MatchV6(dst [4]uint32) (base [4]uint32, ok bool) {
	for _, b := range t.Blocks {
		if V6 != b.Family {
			continue
		}
		matched := true
		for seg := 0; seg < 4; seg++ {
			bits := b.PrefixLen - seg*32
			mask := maskFromBits(bits)
			if dst[seg]&mask != b.V6Base[seg]&mask {
				matched = false
				break
			}
		}
		if matched {
			return b.V6Base, true
		}
	}
	return [4]uint32{}, false
}
