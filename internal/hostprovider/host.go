// Package hostprovider defines the external host-provider contract
// (spec.md §6.1) and a static in-memory implementation for tests and the
// demo command. Grounded on
// controlplane/telemetry/internal/telemetry/peers.go's Peer/PeerDiscovery
// shape (RWMutex-guarded slice, safe-read via a clone).
package hostprovider

import (
	"crypto/sha256"
	"encoding/binary"
	"net"
	"sort"
	"strings"
)

// HostID is a content hash of a host's canonicalized names and MAC
// addresses: identical content yields an identical ID across restarts,
// per spec.md §3.
type HostID [16]byte

// Host is the unit the probe scheduler tracks: a set of names that resolve
// to zero or more addresses, plus enough identity to survive host-set
// churn (renames, additions, removals) between successive provider calls.
type Host struct {
	ID             HostID
	Names          []string
	PreferredName  string
	MACs           []net.HardwareAddr
	Ignore         bool
}

// NewHostID computes the content-hash identity for a set of names and MAC
// addresses. Names and MACs are canonicalized (lowercased, sorted) so the
// same logical host always yields the same ID regardless of input order.
func NewHostID(names []string, macs []net.HardwareAddr) HostID {
	sortedNames := append([]string(nil), names...)
	for i, n := range sortedNames {
		sortedNames[i] = strings.ToLower(strings.TrimSpace(n))
	}
	sort.Strings(sortedNames)

	sortedMACs := append([]net.HardwareAddr(nil), macs...)
	sort.Slice(sortedMACs, func(i, j int) bool {
		return sortedMACs[i].String() < sortedMACs[j].String()
	})

	h := sha256.New()
	for _, n := range sortedNames {
		h.Write([]byte(n))
		h.Write([]byte{0})
	}
	for _, m := range sortedMACs {
		h.Write(m)
		h.Write([]byte{0})
	}

	var id HostID
	sum := h.Sum(nil)
	copy(id[:], sum)
	return id
}

// NewHost builds a Host, deriving its ID from names and macs.
func NewHost(names []string, macs []net.HardwareAddr) Host {
	preferred := ""
	if len(names) > 0 {
		preferred = names[0]
	}
	return Host{
		ID:            NewHostID(names, macs),
		Names:         names,
		PreferredName: preferred,
		MACs:          macs,
	}
}

// String returns the host's preferred name, or a short hex form of its ID
// if it has no name.
func (h Host) String() string {
	if h.PreferredName != "" {
		return h.PreferredName
	}
	return hex8(h.ID)
}

func hex8(id HostID) string {
	var n uint64
	n = binary.BigEndian.Uint64(id[:8])
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[n&0xF]
		n >>= 4
	}
	return string(buf)
}

// Provider returns an immutable view of the current host set. Host IDs are
// stable across unchanged content; implementations must tolerate additions,
// removals, and modifications between successive calls (spec.md §6.1).
type Provider interface {
	Hosts() []Host
}
