package probescheduler

// Limiter bounds the number of concurrent in-flight name resolutions the
// scheduler kicks off on a tick, so a provider returning thousands of hosts
// doesn't spawn thousands of goroutines against the resolver pool in a
// single instant. Grounded on
// client/doublezerod/internal/probing/limiter.go's buffered-channel
// semaphore.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter constructs a Limiter allowing up to n concurrent holders. n<=0
// is treated as unlimited.
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		return &Limiter{}
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free, or returns immediately if the
// Limiter is unlimited.
func (l *Limiter) Acquire() {
	if l.slots == nil {
		return
	}
	l.slots <- struct{}{}
}

// Release returns a slot acquired via Acquire.
func (l *Limiter) Release() {
	if l.slots == nil {
		return
	}
	<-l.slots
}
