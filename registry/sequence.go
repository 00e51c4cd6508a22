package registry

import (
	"strconv"
	"sync"
	"time"
)

// Sequence generates decimal handles from a strictly increasing counter.
// Handles look like wall-clock timestamps in milliseconds but never repeat,
// whatever the call rate.
type Sequence struct {
	mu   sync.Mutex
	next uint64
}

// NewSequence returns a [Sequence] starting at the current Unix time in milliseconds.
func NewSequence() *Sequence {
	return NewSequenceFrom(uint64(time.Now().UnixMilli()))
}

// NewSequenceFrom returns a [Sequence] whose first handle is start.
func NewSequenceFrom(start uint64) *Sequence {
	return &Sequence{next: start}
}

// Next returns the next handle.
func (s *Sequence) Next() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := Handle(strconv.FormatUint(s.next, 10))
	s.next++
	return h
}
