package probescheduler

import (
	"bytes"
	"container/heap"
	"sync"
	"time"

	"github.com/malbeclabs/doublezero/internal/hostprovider"
)

// taskEntry is one node in the deadline-ordered heap. index is maintained
// by heap.Interface so Remove/Upsert can locate and fix up an entry in
// O(log n) without a linear scan, the same indexed-heap technique
// client/doublezerod/internal/probing/store.go uses for its reprobe queue.
type taskEntry struct {
	key      TaskKey
	deadline time.Time
	state    TaskState
	index    int
}

type taskHeap []*taskEntry

func (h taskHeap) Len() int { return len(h) }

// Less orders by (deadline, host_id, addr), per spec.md §4.6 point 2: a
// freshly-resolved host schedules every address's task at the same
// deadline = now, so equal-deadline collisions are routine and must still
// resolve deterministically rather than arbitrarily.
func (h taskHeap) Less(i, j int) bool {
	if !h[i].deadline.Equal(h[j].deadline) {
		return h[i].deadline.Before(h[j].deadline)
	}
	if h[i].key.Host != h[j].key.Host {
		return bytes.Compare(h[i].key.Host[:], h[j].key.Host[:]) < 0
	}
	return h[i].key.Addr.Less(h[j].key.Addr)
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	e := x.(*taskEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// taskStore is the dual-indexed task map described in spec.md §4.6: a
// by-key map for O(1) lookup on reply/resolution events, and a
// deadline-ordered heap for O(log n) access to the next due task. Grounded
// on client/doublezerod/internal/probing/store.go's routeStore
// (RWMutex-guarded map) generalized with a heap for deadline ordering.
type taskStore struct {
	mu      sync.Mutex
	byKey   map[TaskKey]*taskEntry
	heap    taskHeap
}

func newTaskStore() *taskStore {
	return &taskStore{
		byKey: make(map[TaskKey]*taskEntry),
	}
}

// Upsert inserts a new task or reschedules an existing one to deadline with
// the given state.
func (s *taskStore) Upsert(key TaskKey, deadline time.Time, state TaskState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.byKey[key]; ok {
		e.deadline = deadline
		e.state = state
		heap.Fix(&s.heap, e.index)
		return
	}

	e := &taskEntry{key: key, deadline: deadline, state: state}
	heap.Push(&s.heap, e)
	s.byKey[key] = e
}

// Remove deletes a task, if present. Returns whether it existed.
func (s *taskStore) Remove(key TaskKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(key)
}

func (s *taskStore) removeLocked(key TaskKey) bool {
	e, ok := s.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&s.heap, e.index)
	delete(s.byKey, key)
	return true
}

// Get returns the current state of key's task, if any.
func (s *taskStore) Get(key TaskKey) (TaskState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byKey[key]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// PeekDeadline returns the earliest pending deadline without popping it.
func (s *taskStore) PeekDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return time.Time{}, false
	}
	return s.heap[0].deadline, true
}

// PopDue removes and returns the earliest task if its deadline has arrived
// by now. It does not requeue the task — callers reschedule via Upsert as
// part of handling the state transition.
func (s *taskStore) PopDue(now time.Time) (TaskKey, TaskState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 || s.heap[0].deadline.After(now) {
		return TaskKey{}, 0, false
	}
	e := heap.Pop(&s.heap).(*taskEntry)
	delete(s.byKey, e.key)
	return e.key, e.state, true
}

// RemoveHost deletes every task belonging to host and returns their keys,
// used when a host disappears from the provider or its resolution changes
// (spec.md §4.6 points 1-2).
func (s *taskStore) RemoveHost(host hostprovider.HostID) []TaskKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []TaskKey
	for key := range s.byKey {
		if key.Host == host {
			removed = append(removed, key)
		}
	}
	for _, key := range removed {
		s.removeLocked(key)
	}
	return removed
}

// Len returns the number of live tasks, for metrics/tests.
func (s *taskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}
