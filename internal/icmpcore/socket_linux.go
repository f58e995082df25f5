//go:build linux

package icmpcore

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"
)

// Socket is a non-blocking, unprivileged ICMP datagram socket with the
// kernel error queue and packet-info ancillary data enabled, per spec.md
// §4.3. There is one Socket per address family; Pinger owns one of each.
//
// Grounded on tools/uping/pkg/uping/listener.go for socket setup shape and
// _examples/other_examples/...icmpbase/readfrom_linux.go for the
// unprivileged-datagram + MSG_ERRQUEUE receive path (as opposed to uping's
// raw SOCK_RAW+IP_HDRINCL path, which this spec explicitly does not use).
type Socket struct {
	family Family
	fd     int
}

// OpenSocket opens and configures a Socket for the given family, retrying
// the bind/setsockopt sequence with exponential backoff before giving up —
// matching probing.DefaultListenFuncWithRetry's treatment of listener
// bring-up as a retryable startup step rather than an instant-fatal one.
func OpenSocket(family Family) (*Socket, error) {
	var sock *Socket
	op := func() error {
		s, err := openSocketOnce(family)
		if err != nil {
			return err
		}
		sock = s
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 1 * time.Second
	bo.MaxElapsedTime = 3 * time.Second
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("icmpcore: open %s socket: %w", family, err)
	}
	return sock, nil
}

func openSocketOnce(family Family) (*Socket, error) {
	domain, proto := unix.AF_INET, unix.IPPROTO_ICMP
	if family == FamilyV6 {
		domain, proto = unix.AF_INET6, unix.IPPROTO_ICMPV6
	}

	fd, err := unix.Socket(domain, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, proto)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if family == FamilyV4 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_RECVERR, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("setsockopt IP_RECVERR: %w", err)
		}
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_PKTINFO, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("setsockopt IP_PKTINFO: %w", err)
		}
		if err := unix.Bind(fd, &unix.SockaddrInet4{}); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("bind: %w", err)
		}
	} else {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVERR, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("setsockopt IPV6_RECVERR: %w", err)
		}
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_RECVPKTINFO, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("setsockopt IPV6_RECVPKTINFO: %w", err)
		}
		if err := unix.Bind(fd, &unix.SockaddrInet6{}); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("bind: %w", err)
		}
	}

	return &Socket{family: family, fd: fd}, nil
}

// Close releases the socket's file descriptor.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

// Send transmits payload to dest, waiting for the socket to become
// writable first. The kernel fills in the ICMP checksum for datagram ICMP
// sockets, so the checksum field in payload is expected to be left zero.
func (s *Socket) Send(payload []byte, dest net.IP) (int, error) {
	if err := s.pollFor(unix.POLLOUT, -1); err != nil {
		return 0, &SendToError{Dest: dest.String(), Err: err}
	}

	var sa unix.Sockaddr
	if s.family == FamilyV4 {
		addr := &unix.SockaddrInet4{}
		ip4 := dest.To4()
		if ip4 == nil {
			return 0, &SendToError{Dest: dest.String(), Err: fmt.Errorf("not an IPv4 address")}
		}
		copy(addr.Addr[:], ip4)
		sa = addr
	} else {
		addr := &unix.SockaddrInet6{}
		ip16 := dest.To16()
		if ip16 == nil {
			return 0, &SendToError{Dest: dest.String(), Err: fmt.Errorf("not an IPv6 address")}
		}
		copy(addr.Addr[:], ip16)
		sa = addr
	}

	if err := unix.Sendto(s.fd, payload, 0, sa); err != nil {
		return 0, &SendToError{Dest: dest.String(), Err: err}
	}
	return len(payload), nil
}

// Recv waits for one of readable, error-queue, or priority readiness and
// returns a parsed Response. The ICMP payload bytes (header + echoed token)
// are appended into buf; callers decode the header themselves (see
// Pinger.RecvV4/RecvV6) since the source/destination/outcome extraction here is
// shared between the echo-reply and queued-error paths but header decoding
// differs subtly between them.
func (s *Socket) Recv(buf *Buffer) (*Response, error) {
	for {
		events, err := s.pollForRead(-1)
		if err != nil {
			return nil, err
		}

		if events&unix.POLLERR != 0 {
			resp, err := s.recvErr(buf)
			if err == errWouldBlock {
				continue
			}
			return resp, err
		}

		resp, err := s.recvOrdinary(buf)
		if err == errWouldBlock {
			continue
		}
		return resp, err
	}
}

var errWouldBlock = fmt.Errorf("icmpcore: recv would block")

func (s *Socket) recvOrdinary(buf *Buffer) (*Response, error) {
	oob := make([]byte, unix.CmsgSpace(128))
	p := buf.RemainingMut()
	n, oobn, _, from, err := unix.Recvmsg(s.fd, p, oob, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, errWouldBlock
		}
		return nil, err
	}
	buf.Advance(n)

	resp := &Response{Kind: s.family, Sampled: time.Now()}
	resp.Source = sockaddrIP(from)

	dest, err := s.parsePktinfo(oob[:oobn])
	if err != nil {
		return nil, err
	}
	resp.Dest = dest
	return resp, nil
}

func (s *Socket) recvErr(buf *Buffer) (*Response, error) {
	oob := make([]byte, unix.CmsgSpace(256))
	p := buf.RemainingMut()
	n, oobn, _, _, err := unix.Recvmsg(s.fd, p, oob, unix.MSG_ERRQUEUE)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, errWouldBlock
		}
		return nil, err
	}
	buf.Advance(n)

	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, err
	}
	if len(scms) == 0 {
		return nil, ErrRecvErrorMissingOutcome
	}

	resp := &Response{Kind: s.family, Outcome: OutcomeQueuedError, Sampled: time.Now()}
	found := false
	for _, scm := range scms {
		fam, ok := recvErrFamily(scm.Header)
		if !ok {
			continue
		}
		if fam != s.family {
			// The kernel delivered an error-queue control message for the
			// other address family on this socket — the socket's family
			// and the ancillary data it received disagree.
			return nil, ErrVersionMismatch
		}
		var extErr unix.SockExtendedErr
		if _, err := binary.Decode(scm.Data, binary.NativeEndian, &extErr); err != nil {
			return nil, err
		}
		resp.Code = extErr.Code
		found = true
	}
	if !found {
		return nil, ErrUnexpectedControlMessage
	}
	return resp, nil
}

// recvErrFamily reports which address family a RECVERR control message
// belongs to, if it is one at all.
func recvErrFamily(h unix.Cmsghdr) (Family, bool) {
	switch {
	case int(h.Level) == unix.IPPROTO_IP && int(h.Type) == unix.IP_RECVERR:
		return FamilyV4, true
	case int(h.Level) == unix.IPPROTO_IPV6 && int(h.Type) == unix.IPV6_RECVERR:
		return FamilyV6, true
	default:
		return 0, false
	}
}

func (s *Socket) parsePktinfo(oob []byte) (net.IP, error) {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, err
	}
	if len(scms) == 0 {
		return nil, ErrRecvMissingDestinationAddress
	}

	for _, scm := range scms {
		switch {
		case int(scm.Header.Level) == unix.IPPROTO_IP && int(scm.Header.Type) == unix.IP_PKTINFO:
			if s.family != FamilyV4 {
				return nil, ErrVersionMismatch
			}
			var pi unix.Inet4Pktinfo
			if _, err := binary.Decode(scm.Data, binary.NativeEndian, &pi); err != nil {
				return nil, err
			}
			return net.IPv4(pi.Spec_dst[0], pi.Spec_dst[1], pi.Spec_dst[2], pi.Spec_dst[3]), nil
		case int(scm.Header.Level) == unix.IPPROTO_IPV6 && int(scm.Header.Type) == unix.IPV6_PKTINFO:
			if s.family != FamilyV6 {
				return nil, ErrVersionMismatch
			}
			var pi unix.Inet6Pktinfo
			if _, err := binary.Decode(scm.Data, binary.NativeEndian, &pi); err != nil {
				return nil, err
			}
			return net.IP(pi.Addr[:]), nil
		}
	}
	return nil, ErrUnexpectedControlMessage
}

func sockaddrIP(sa unix.Sockaddr) net.IP {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IPv4(a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3])
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:])
	default:
		return nil
	}
}

// PollError wraps a readiness-poll failure on the socket itself (as opposed
// to a malformed or unexpected message once data is available). Per spec.md
// §7 this is the one receive-path failure that is fatal: the socket is no
// longer usable, so the pinger must stop rather than spin retrying forever.
type PollError struct {
	Err error
}

func (e *PollError) Error() string { return "icmpcore: poll: " + e.Err.Error() }
func (e *PollError) Unwrap() error { return e.Err }

func (s *Socket) pollFor(events int16, timeoutMs int) error {
	_, err := s.poll(events, timeoutMs)
	return err
}

func (s *Socket) pollForRead(timeoutMs int) (int16, error) {
	return s.poll(unix.POLLIN|unix.POLLERR|unix.POLLPRI, timeoutMs)
}

func (s *Socket) poll(events int16, timeoutMs int) (int16, error) {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: events}}
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, &PollError{Err: err}
		}
		if n == 0 {
			return 0, &PollError{Err: fmt.Errorf("poll timeout")}
		}
		return fds[0].Revents, nil
	}
}
