package domain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryConcurrentAdd(t *testing.T) {
	s := NewSummary()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add(KindLookupFailure, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), s.Count(KindLookupFailure))
	assert.Equal(t, int64(0), s.Count(KindMalformedRecord))
	assert.Equal(t, int64(50), s.Total())
}

func TestSummarySnapshot(t *testing.T) {
	s := NewSummary()
	s.Add(KindMalformedRecord, 2)
	s.Add(KindUnverifiablePair, 3)
	s.Add(ErrorKind("bogus"), 7)

	snap := s.Snapshot()
	assert.Len(t, snap, len(ErrorKinds))
	assert.Equal(t, int64(2), snap["malformed_record"])
	assert.Equal(t, int64(3), snap["unverifiable_pair"])
	assert.Equal(t, int64(5), s.Total())
}

func TestNilSummaryIsSafe(t *testing.T) {
	var s *Summary
	s.Add(KindAmbiguousMatch, 1)
	assert.Equal(t, int64(0), s.Count(KindAmbiguousMatch))
}
