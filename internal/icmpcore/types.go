package icmpcore

import (
	"net"
	"time"
)

// Family distinguishes the IPv4 and IPv6 ICMP variants. The design
// deliberately keeps v4 and v6 as two concrete sockets/pingers rather than
// one polymorphic implementation, per spec.md §9: operations stay
// monomorphic and each family's checksum/header routines are exercised
// directly instead of behind an interface.
type Family int

const (
	FamilyV4 Family = iota
	FamilyV6
)

func (f Family) String() string {
	if f == FamilyV6 {
		return "v6"
	}
	return "v4"
}

// Outcome classifies what a Recv produced: an ordinary echo reply/other
// ICMP message, or an asynchronous error delivered via the kernel error
// queue.
type Outcome int

const (
	// OutcomeReply means the socket had an ordinary message ready and it
	// was an echo reply.
	OutcomeReply Outcome = iota
	// OutcomeUnreachable means the socket had an ordinary message ready
	// and it was a destination-unreachable message.
	OutcomeUnreachable
	// OutcomeQueuedError means the response came from the kernel error
	// queue (MSG_ERRQUEUE / IP[V6]_RECVERR).
	OutcomeQueuedError
	// OutcomeOther means the socket had an ordinary message ready and it
	// was a decoded ICMP type other than echo reply or unreachable (e.g. a
	// v4 redirect/time-exceeded, or an unmapped v6 type). Type carries the
	// raw decoded type for callers that need it.
	OutcomeOther
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReply:
		return "echo-reply"
	case OutcomeUnreachable:
		return "destination-unreachable"
	case OutcomeQueuedError:
		return "queued-error"
	case OutcomeOther:
		return "other"
	default:
		return "unknown"
	}
}

// Response is what the socket facade hands back (and Pinger.RecvV4/RecvV6
// return inside a RecvResult) for a single received datagram or queued error, matching the Reply consumer schema in
// spec.md §6.2. Outcome's String() is the "display" half of the §6.2
// `outcome: (type, display)` pair; Type is the raw decoded ICMP type and is
// the other half — set for every ordinary (non-queued-error) receive,
// regardless of which Outcome it resolved to.
type Response struct {
	Kind       Family
	Outcome    Outcome
	Type       uint8
	Code       uint8
	Sequence   uint16
	Identifier uint16

	Source net.IP
	Dest   net.IP

	Checksum         uint16
	ExpectedChecksum uint16

	Sampled time.Time
}
