package icmpcore

import "errors"

// Sentinel errors for the conditions spec.md §7 classifies as "dropped;
// trace" rather than fatal. Pinger.RecvV4/RecvV6 return them to the
// caller; the probe scheduler's receive loop logs them at warn level and
// keeps receiving.
var (
	// ErrRecvMissingDestinationAddress is returned when an ordinary receive
	// completed without an IP_PKTINFO/IPV6_RECVPKTINFO ancillary message.
	ErrRecvMissingDestinationAddress = errors.New("icmpcore: receive missing destination address ancillary data")

	// ErrRecvErrorMissingOutcome is returned when an error-queue receive
	// completed without a usable IP_RECVERR/IPV6_RECVERR extended error.
	ErrRecvErrorMissingOutcome = errors.New("icmpcore: error-queue receive missing extended error outcome")

	// ErrUnexpectedControlMessage is returned when ancillary data was
	// present but didn't match any control message this package parses.
	ErrUnexpectedControlMessage = errors.New("icmpcore: unexpected control message")

	// ErrVersionMismatch is returned when a PKTINFO/RECVERR control message
	// belongs to the other address family than the socket that received it
	// (e.g. an IPV6_PKTINFO cmsg arriving on a v4 socket).
	ErrVersionMismatch = errors.New("icmpcore: IP version/protocol mismatch")
)

// SendToError wraps a failed send(2)/sendto(2) call. Per spec.md §7 this is
// non-fatal at the icmpcore layer — the scheduler decides to reschedule.
type SendToError struct {
	Dest string
	Err  error
}

func (e *SendToError) Error() string {
	return "icmpcore: send to " + e.Dest + ": " + e.Err.Error()
}

func (e *SendToError) Unwrap() error { return e.Err }
