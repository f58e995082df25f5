//go:build linux

package icmpcore

import (
	"encoding/binary"
	"net"
	"sync/atomic"
)

// TokenSize is the width, in bytes, of the correlation token embedded as
// the first bytes of every echo request's payload. Identifier semantics for
// unprivileged ICMP sockets differ by kernel (sometimes rewritten), so
// correlation must use this embedded token rather than the ICMP identifier
// field — spec.md §9.
const TokenSize = 8

// Pinger owns one Socket per address family and emits/receives ICMPv4 and
// ICMPv6 echo traffic. It reports each response's sequence number and
// embedded token but does no correlation itself; matching responses to
// requests is left to the caller (the probe scheduler).
// Grounded on tools/uping/pkg/uping/sender.go's fillICMPEcho/nonce pattern,
// adapted from raw-socket framing to the datagram-socket + kernel-checksum
// model spec.md §4.4 requires.
type Pinger struct {
	v4  *Socket
	v6  *Socket
	seq atomic.Uint32
}

// NewPinger opens the v4 and v6 sockets backing a Pinger.
func NewPinger() (*Pinger, error) {
	v4, err := OpenSocket(FamilyV4)
	if err != nil {
		return nil, err
	}
	v6, err := OpenSocket(FamilyV6)
	if err != nil {
		v4.Close()
		return nil, err
	}
	return &Pinger{v4: v4, v6: v6}, nil
}

// Close releases both sockets.
func (p *Pinger) Close() error {
	err4 := p.v4.Close()
	err6 := p.v6.Close()
	if err4 != nil {
		return err4
	}
	return err6
}

// nextSequence returns the next sequence number from a monotonically
// wrapping 16-bit counter, shared across both families.
func (p *Pinger) nextSequence() uint16 {
	return uint16(p.seq.Add(1))
}

// Ping sends an echo request to dest carrying token as the first 8 bytes of
// the payload, followed by any extra payload bytes, and returns the
// sequence number used. The checksum field is left zero; the kernel fills
// it in for datagram ICMP sockets.
func (p *Pinger) Ping(buf *Buffer, dest net.IP, token uint64, extraPayload []byte) (uint16, error) {
	buf.Clear()
	seq := p.nextSequence()

	isV4 := dest.To4() != nil

	var tokenBytes [TokenSize]byte
	binary.BigEndian.PutUint64(tokenBytes[:], token)

	if isV4 {
		h := ICMPv4Header{Type: ICMPv4EchoRequest, Sequence: seq}
		hdr := make([]byte, ICMPv4HeaderSize)
		h.Encode(hdr)
		buf.ExtendFromSlice(hdr)
	} else {
		h := ICMPv6Header{Type: ICMPv6EchoRequest, Sequence: seq}
		hdr := make([]byte, ICMPv6HeaderSize)
		h.Encode(hdr)
		buf.ExtendFromSlice(hdr)
	}
	buf.ExtendFromSlice(tokenBytes[:])
	buf.ExtendFromSlice(extraPayload)

	sock := p.v6
	if isV4 {
		sock = p.v4
	}
	if _, err := sock.Send(buf.AsBytes(), dest); err != nil {
		return seq, err
	}
	return seq, nil
}

// RecvResult additionally carries the decoded token so the caller can
// correlate the response against its deferred-entry map without re-parsing
// the payload itself.
type RecvResult struct {
	Response
	Token uint64
}

// RecvV4 drives the v4 socket and decodes one Response, per spec.md §4.4.
func (p *Pinger) RecvV4(buf *Buffer) (*RecvResult, error) {
	return recvAndDecode(p.v4, buf, FamilyV4)
}

// RecvV6 drives the v6 socket and decodes one Response.
func (p *Pinger) RecvV6(buf *Buffer) (*RecvResult, error) {
	return recvAndDecode(p.v6, buf, FamilyV6)
}

func recvAndDecode(sock *Socket, buf *Buffer, family Family) (*RecvResult, error) {
	buf.Clear()
	resp, err := sock.Recv(buf)
	if err != nil {
		return nil, err
	}

	if resp.Outcome == OutcomeQueuedError {
		// The kernel echoes back the original outgoing ICMP header (and
		// our embedded token) in the payload of the queued error. We
		// decode just enough to recover the token; identifier, sequence,
		// and checksum are reported as zero per spec.md §4.4 point 3.
		token, _ := decodeToken(buf.AsBytes(), family)
		return &RecvResult{Response: *resp, Token: token}, nil
	}

	payload := buf.AsBytes()
	var hdrSize int
	var decodedType uint8
	if family == FamilyV4 {
		h, err := DecodeICMPv4Header(payload)
		if err != nil {
			return nil, err
		}
		hdrSize = ICMPv4HeaderSize
		decodedType = uint8(h.Type)
		resp.Sequence = h.Sequence
		resp.Identifier = h.Identifier
		resp.Checksum = h.Checksum
		resp.ExpectedChecksum = ChecksumV4(payload)
		resp.Type = decodedType
		switch h.Type {
		case ICMPv4EchoReply:
			resp.Outcome = OutcomeReply
		case ICMPv4Unreachable:
			resp.Outcome = OutcomeUnreachable
			resp.Code = h.Code
		default:
			resp.Outcome = OutcomeOther
			resp.Code = h.Code
		}
	} else {
		h, err := DecodeICMPv6Header(payload)
		if err != nil {
			return nil, err
		}
		hdrSize = ICMPv6HeaderSize
		decodedType = uint8(h.Type)
		resp.Sequence = h.Sequence
		resp.Identifier = h.Identifier
		resp.Checksum = h.Checksum
		if resp.Source != nil && resp.Dest != nil {
			resp.ExpectedChecksum = ChecksumV6(resp.Source, resp.Dest, payload)
		}
		resp.Type = decodedType
		switch h.Type {
		case ICMPv6EchoReply:
			resp.Outcome = OutcomeReply
		case ICMPv6Unreachable:
			resp.Outcome = OutcomeUnreachable
			resp.Code = h.Code
		default:
			resp.Outcome = OutcomeOther
			resp.Code = h.Code
		}
	}

	var token uint64
	if len(payload) >= hdrSize+TokenSize {
		token = binary.BigEndian.Uint64(payload[hdrSize : hdrSize+TokenSize])
	}
	return &RecvResult{Response: *resp, Token: token}, nil
}

func decodeToken(payload []byte, family Family) (uint64, error) {
	hdrSize := ICMPv4HeaderSize
	if family == FamilyV6 {
		hdrSize = ICMPv6HeaderSize
	}
	if len(payload) < hdrSize+TokenSize {
		return 0, &BufferTooSmallError{Actual: len(payload), Needed: hdrSize + TokenSize}
	}
	return binary.BigEndian.Uint64(payload[hdrSize : hdrSize+TokenSize]), nil
}
