package icmpcore

import (
	"encoding/binary"
	"net"
)

// ICMPv6Type is the type field of an ICMPv6 message (RFC 4443).
type ICMPv6Type uint8

const (
	ICMPv6Unreachable ICMPv6Type = 1
	ICMPv6EchoRequest ICMPv6Type = 128
	ICMPv6EchoReply   ICMPv6Type = 129
)

func (t ICMPv6Type) String() string {
	switch t {
	case ICMPv6Unreachable:
		return "destination-unreachable"
	case ICMPv6EchoRequest:
		return "echo-request"
	case ICMPv6EchoReply:
		return "echo-reply"
	default:
		return "unknown"
	}
}

// ICMPv6UnreachableCode is the code field of a type-1 ICMPv6 message.
type ICMPv6UnreachableCode uint8

const (
	ICMPv6NoRoute                      ICMPv6UnreachableCode = 0
	ICMPv6AdministrativelyProhibited   ICMPv6UnreachableCode = 1
	ICMPv6BeyondScope                  ICMPv6UnreachableCode = 2
	ICMPv6AddressUnreachable           ICMPv6UnreachableCode = 3
	ICMPv6PortUnreachable              ICMPv6UnreachableCode = 4
	ICMPv6SourcePolicyFailed           ICMPv6UnreachableCode = 5
	ICMPv6RouteRejected                ICMPv6UnreachableCode = 6
	ICMPv6HeaderError                  ICMPv6UnreachableCode = 7
	ICMPv6HeaderTooLong                ICMPv6UnreachableCode = 8
)

// ICMPv6HeaderSize is the wire size of an ICMPv6 echo header, in bytes.
const ICMPv6HeaderSize = 8

// ICMPv6Header is a decoded view of an 8-byte ICMPv6 header, host-order.
type ICMPv6Header struct {
	Type       ICMPv6Type
	Code       uint8
	Checksum   uint16
	Identifier uint16
	Sequence   uint16
}

// ZeroedICMPv6Header returns a header with every field at its zero value.
func ZeroedICMPv6Header() ICMPv6Header {
	return ICMPv6Header{}
}

// DecodeICMPv6Header decodes an 8-byte big-endian ICMPv6 header.
func DecodeICMPv6Header(b []byte) (ICMPv6Header, error) {
	if len(b) < ICMPv6HeaderSize {
		return ICMPv6Header{}, &BufferTooSmallError{Actual: len(b), Needed: ICMPv6HeaderSize}
	}
	return ICMPv6Header{
		Type:       ICMPv6Type(b[0]),
		Code:       b[1],
		Checksum:   binary.BigEndian.Uint16(b[2:4]),
		Identifier: binary.BigEndian.Uint16(b[4:6]),
		Sequence:   binary.BigEndian.Uint16(b[6:8]),
	}, nil
}

// Encode writes the header to the front of b in wire order.
func (h ICMPv6Header) Encode(b []byte) {
	b[0] = byte(h.Type)
	b[1] = h.Code
	binary.BigEndian.PutUint16(b[2:4], h.Checksum)
	binary.BigEndian.PutUint16(b[4:6], h.Identifier)
	binary.BigEndian.PutUint16(b[6:8], h.Sequence)
}

const nextHeaderICMPv6 = 58

// ChecksumV6 computes the ICMPv6 checksum over icmp, preceded by the IPv6
// pseudo-header (source, destination, upper-layer length, next-header=58),
// with the checksum field (icmp[2:4]) treated as zero. src and dst must be
// 16-byte (To16) addresses. Matches original_source/lib/src/icmp/v6.rs.
func ChecksumV6(src, dst net.IP, icmp []byte) uint16 {
	src16 := src.To16()
	dst16 := dst.To16()

	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(icmp)))
	nhBytes := [2]byte{0, nextHeaderICMPv6}

	var sum uint64
	sum += sumBE16(src16)
	sum += sumBE16(dst16)
	sum += sumBE16(lenBytes[:])
	sum += sumBE16(nhBytes[:])
	if len(icmp) >= 2 {
		sum += sumBE16(icmp[:2])
	}
	if len(icmp) > 4 {
		sum += sumBE16(icmp[4:])
	}
	return foldCarry(sum)
}
