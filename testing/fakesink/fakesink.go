/*
Package fakesink provides an in-memory capture.Sink for tests, plus comparison options
for asserting on the records it collected.
*/
package fakesink

import (
	"context"
	"strings"
	"sync"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/circleci/trafficharness/capture"
)

type Sink struct {
	mu      sync.RWMutex
	records []capture.Record
	appends int
	err     error
}

func New() *Sink {
	return &Sink{}
}

// Append stores rec, or returns the error set by FailWith.
func (s *Sink) Append(_ context.Context, rec capture.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

// FailWith makes every following Append fail with err, nil restores normal behaviour.
func (s *Sink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Appends counts every call to Append, failed ones included.
func (s *Sink) Appends() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appends
}

func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.appends = 0
}

func (s *Sink) Records() []capture.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]capture.Record, len(s.records))
	copy(records, s.records)
	return records
}

func (s *Sink) LastRecord() *capture.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return nil
	}
	rec := s.records[len(s.records)-1]
	return &rec
}

func (s *Sink) FindRecords(method, path string) []capture.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found []capture.Record
	for _, r := range s.records {
		if r.Method == method && r.Path == path {
			found = append(found, r)
		}
	}
	return found
}

// IgnoreVolatile ignores the record fields that differ on every run.
var IgnoreVolatile = cmpopts.IgnoreFields(capture.Record{}, "ID", "Timestamp", "Duration")

// IgnoreHeaders drops the named headers (case-insensitively) from both sides of a comparison.
func IgnoreHeaders(names ...string) gocmp.Option {
	return cmpopts.IgnoreSliceElements(func(h capture.Header) bool {
		return matches(h.Name, names)
	})
}

// OnlyHeaders compares just the named headers.
func OnlyHeaders(names ...string) gocmp.Option {
	return cmpopts.IgnoreSliceElements(func(h capture.Header) bool {
		return !matches(h.Name, names)
	})
}

func matches(name string, names []string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
