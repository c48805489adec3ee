package domain

import "sync/atomic"

// ErrorKind names a countable data-quality event.
type ErrorKind string

const (
	KindMalformedRecord  ErrorKind = "malformed_record"
	KindLookupFailure    ErrorKind = "lookup_failure"
	KindAmbiguousMatch   ErrorKind = "ambiguous_match"
	KindUnverifiablePair ErrorKind = "unverifiable_pair"
)

// ErrorKinds lists every kind in report order.
var ErrorKinds = []ErrorKind{
	KindMalformedRecord,
	KindLookupFailure,
	KindAmbiguousMatch,
	KindUnverifiablePair,
}

// Summary counts error events for one stage run. Safe for concurrent use.
type Summary struct {
	counts map[ErrorKind]*atomic.Int64
}

// NewSummary creates a summary with every kind at zero.
func NewSummary() *Summary {
	s := &Summary{counts: make(map[ErrorKind]*atomic.Int64, len(ErrorKinds))}
	for _, kind := range ErrorKinds {
		s.counts[kind] = new(atomic.Int64)
	}
	return s
}

// Add records n events of kind. Unknown kinds are ignored.
func (s *Summary) Add(kind ErrorKind, n int) {
	if s == nil {
		return
	}
	if c, ok := s.counts[kind]; ok {
		c.Add(int64(n))
	}
}

// Count returns the events recorded for kind.
func (s *Summary) Count(kind ErrorKind) int64 {
	if s == nil {
		return 0
	}
	if c, ok := s.counts[kind]; ok {
		return c.Load()
	}
	return 0
}

// Total returns the number of events across all kinds.
func (s *Summary) Total() int64 {
	var total int64
	for _, kind := range ErrorKinds {
		total += s.Count(kind)
	}
	return total
}

// Snapshot copies the counters into a plain map keyed by kind name.
func (s *Summary) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(ErrorKinds))
	for _, kind := range ErrorKinds {
		out[string(kind)] = s.Count(kind)
	}
	return out
}
