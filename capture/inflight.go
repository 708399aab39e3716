package capture

import "bytes"

// InFlight accumulates the chunks of a response body in write order. It belongs to a
// single request and is not safe for concurrent use.
type InFlight struct {
	chunks [][]byte
	size   int
}

// Add stores a copy of p, the caller may reuse p once Add returns.
func (f *InFlight) Add(p []byte) {
	if len(p) == 0 {
		return
	}
	f.chunks = append(f.chunks, bytes.Clone(p))
	f.size += len(p)
}

// Bytes returns the concatenation of every chunk added so far.
func (f *InFlight) Bytes() []byte {
	b := make([]byte, 0, f.size)
	for _, c := range f.chunks {
		b = append(b, c...)
	}
	return b
}

func (f *InFlight) Len() int {
	return f.size
}

// Chunks is the number of non-empty writes seen.
func (f *InFlight) Chunks() int {
	return len(f.chunks)
}
