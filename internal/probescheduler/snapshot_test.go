package probescheduler

import (
	"net/netip"
	"testing"
	"time"

	"github.com/malbeclabs/doublezero/internal/hostprovider"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStore_ResultPrunesAddressError(t *testing.T) {
	t.Parallel()
	s := NewSnapshotStore()
	host := hostprovider.NewHostID([]string{"a"}, nil)
	target := netip.MustParseAddr("10.0.0.1")

	s.Error(host, PingError{Kind: ErrorKindAddress, Target: target, Message: "timeout", Sampled: time.Now()})
	p, ok := s.Snapshot(host)
	require.True(t, ok)
	require.Len(t, p.Errors, 1)
	require.Empty(t, p.Results)

	s.Result(host, PingResult{Target: target, Sampled: time.Now()})
	p, _ = s.Snapshot(host)
	require.Empty(t, p.Errors, "a fresh result must prune the address's prior error")
	require.Len(t, p.Results, 1)
}

func TestSnapshotStore_ErrorPrunesResult(t *testing.T) {
	t.Parallel()
	s := NewSnapshotStore()
	host := hostprovider.NewHostID([]string{"a"}, nil)
	target := netip.MustParseAddr("10.0.0.1")

	s.Result(host, PingResult{Target: target, Sampled: time.Now()})
	s.Error(host, PingError{Kind: ErrorKindAddress, Target: target, Message: "timeout", Sampled: time.Now()})

	p, _ := s.Snapshot(host)
	require.Empty(t, p.Results)
	require.Len(t, p.Errors, 1)
}

func TestSnapshotStore_ResultUpsertsByTarget(t *testing.T) {
	t.Parallel()
	s := NewSnapshotStore()
	host := hostprovider.NewHostID([]string{"a"}, nil)
	target := netip.MustParseAddr("10.0.0.1")

	s.Result(host, PingResult{Target: target, Sequence: 1, Sampled: time.Now()})
	s.Result(host, PingResult{Target: target, Sequence: 2, Sampled: time.Now()})

	p, _ := s.Snapshot(host)
	require.Len(t, p.Results, 1)
	require.Equal(t, uint16(2), p.Results[0].Sequence)
}

func TestSnapshotStore_ClearHostKeepsEntryButWipesState(t *testing.T) {
	t.Parallel()
	s := NewSnapshotStore()
	host := hostprovider.NewHostID([]string{"a"}, nil)
	target := netip.MustParseAddr("10.0.0.1")

	s.Result(host, PingResult{Target: target, Sampled: time.Now()})
	s.ClearHost(host)

	p, ok := s.Snapshot(host)
	require.True(t, ok)
	require.Empty(t, p.Results)
	require.Empty(t, p.Errors)
}

func TestSnapshotStore_RemoveHostDeletesEntry(t *testing.T) {
	t.Parallel()
	s := NewSnapshotStore()
	host := hostprovider.NewHostID([]string{"a"}, nil)

	s.Result(host, PingResult{Target: netip.MustParseAddr("10.0.0.1"), Sampled: time.Now()})
	s.RemoveHost(host)

	_, ok := s.Snapshot(host)
	require.False(t, ok)
}

func TestSnapshotStore_AllReturnsCopies(t *testing.T) {
	t.Parallel()
	s := NewSnapshotStore()
	host := hostprovider.NewHostID([]string{"a"}, nil)
	s.Result(host, PingResult{Target: netip.MustParseAddr("10.0.0.1"), Sampled: time.Now()})

	all := s.All()
	require.Len(t, all, 1)
	p := all[host]
	p.Results[0].Sequence = 99

	fresh, _ := s.Snapshot(host)
	require.NotEqual(t, uint16(99), fresh.Results[0].Sequence, "All() must return independent copies")
}
