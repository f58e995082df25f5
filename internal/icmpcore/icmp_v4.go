package icmpcore

import "encoding/binary"

// ICMPv4Type is the type field of an ICMPv4 message (RFC 792).
type ICMPv4Type uint8

const (
	ICMPv4EchoReply    ICMPv4Type = 0
	ICMPv4Unreachable  ICMPv4Type = 3
	ICMPv4EchoRequest  ICMPv4Type = 8
)

func (t ICMPv4Type) String() string {
	switch t {
	case ICMPv4EchoReply:
		return "echo-reply"
	case ICMPv4Unreachable:
		return "destination-unreachable"
	case ICMPv4EchoRequest:
		return "echo-request"
	default:
		return "unknown"
	}
}

// ICMPv4UnreachableCode is the code field of a type-3 ICMPv4 message.
// Values are preserved verbatim even when not in this list (reported
// numerically) per spec.md §3.
type ICMPv4UnreachableCode uint8

const (
	ICMPv4NetUnreachable                   ICMPv4UnreachableCode = 0
	ICMPv4HostUnreachable                  ICMPv4UnreachableCode = 1
	ICMPv4ProtocolUnreachable               ICMPv4UnreachableCode = 2
	ICMPv4PortUnreachable                  ICMPv4UnreachableCode = 3
	ICMPv4FragmentationNeeded               ICMPv4UnreachableCode = 4
	ICMPv4SourceRouteFailed                 ICMPv4UnreachableCode = 5
	ICMPv4DestinationNetworkUnknown         ICMPv4UnreachableCode = 6
	ICMPv4DestinationHostUnknown            ICMPv4UnreachableCode = 7
	ICMPv4SourceHostIsolated                ICMPv4UnreachableCode = 8
	ICMPv4NetworkAdministrativelyProhibited ICMPv4UnreachableCode = 9
	ICMPv4HostAdministrativelyProhibited    ICMPv4UnreachableCode = 10
	ICMPv4NetworkUnreachableService         ICMPv4UnreachableCode = 11
	ICMPv4HostUnreachableService            ICMPv4UnreachableCode = 12
	ICMPv4AdministrativelyProhibited         ICMPv4UnreachableCode = 13
	ICMPv4HostPrecedenceViolation           ICMPv4UnreachableCode = 14
	ICMPv4PrecedenceCutoffInEffect          ICMPv4UnreachableCode = 15
)

// ICMPv4HeaderSize is the wire size of an ICMPv4 echo header, in bytes.
const ICMPv4HeaderSize = 8

// ICMPv4Header is a decoded view of an 8-byte ICMPv4 header. Fields are
// host-order; use EncodeICMPv4Header/DecodeICMPv4Header to move between
// this representation and wire bytes.
type ICMPv4Header struct {
	Type       ICMPv4Type
	Code       uint8
	Checksum   uint16
	Identifier uint16
	Sequence   uint16
}

// ZeroedICMPv4Header returns a header with every field at its zero value.
func ZeroedICMPv4Header() ICMPv4Header {
	return ICMPv4Header{}
}

// DecodeICMPv4Header decodes an 8-byte big-endian ICMPv4 header.
func DecodeICMPv4Header(b []byte) (ICMPv4Header, error) {
	if len(b) < ICMPv4HeaderSize {
		return ICMPv4Header{}, &BufferTooSmallError{Actual: len(b), Needed: ICMPv4HeaderSize}
	}
	return ICMPv4Header{
		Type:       ICMPv4Type(b[0]),
		Code:       b[1],
		Checksum:   binary.BigEndian.Uint16(b[2:4]),
		Identifier: binary.BigEndian.Uint16(b[4:6]),
		Sequence:   binary.BigEndian.Uint16(b[6:8]),
	}, nil
}

// Encode writes the header to the front of b in wire order. b must have at
// least ICMPv4HeaderSize bytes of capacity.
func (h ICMPv4Header) Encode(b []byte) {
	b[0] = byte(h.Type)
	b[1] = h.Code
	binary.BigEndian.PutUint16(b[2:4], h.Checksum)
	binary.BigEndian.PutUint16(b[4:6], h.Identifier)
	binary.BigEndian.PutUint16(b[6:8], h.Sequence)
}

// sumBE16 sums a byte slice as 16-bit big-endian words, padding a trailing
// odd byte with a zero low byte. Invariant (spec.md §8 property 4): the
// result is unchanged by appending a single trailing zero byte to data.
func sumBE16(data []byte) uint64 {
	var sum uint64
	n := len(data) - len(data)%2
	for i := 0; i < n; i += 2 {
		sum += uint64(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if len(data)%2 == 1 {
		sum += uint64(data[len(data)-1]) << 8
	}
	return sum
}

func foldCarry(sum uint64) uint16 {
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// ChecksumV4 computes the ICMPv4 one's-complement checksum over icmp,
// treating bytes [2:4] (the checksum field) as zero. Matches
// tools/uping/pkg/uping's onesComplement16/icmpChecksum and
// original_source/lib/src/icmp/v4.rs's checksum.
func ChecksumV4(icmp []byte) uint16 {
	var sum uint64
	if len(icmp) >= 2 {
		sum += sumBE16(icmp[:2])
	}
	if len(icmp) > 4 {
		sum += sumBE16(icmp[4:])
	}
	return foldCarry(sum)
}
