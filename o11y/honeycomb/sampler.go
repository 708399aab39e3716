package honeycomb

import (
	"fmt"
	"hash/crc32"
	"math"

	"github.com/honeycombio/dynsampler-go"
)

// sampler keeps a fixed fraction of traces per key. Every span of a trace hashes the
// same trace id, so a trace is kept or dropped whole.
type sampler struct {
	key   func(map[string]interface{}) string
	rates dynsampler.Sampler
}

func newSampler(key func(map[string]interface{}) string, rates map[string]int) *sampler {
	if key == nil {
		key = func(fields map[string]interface{}) string {
			return fmt.Sprint(fields["name"])
		}
	}
	if rates == nil {
		rates = map[string]int{}
	}
	return &sampler{
		key:   key,
		rates: &dynsampler.Static{Default: 1, Rates: rates},
	}
}

func (s *sampler) hook(fields map[string]interface{}) (bool, int) {
	if keep, _ := fields["meta.keep.span"].(bool); keep {
		return true, 1
	}
	rate := s.rates.GetSampleRate(s.key(fields))
	if keepTrace(fmt.Sprint(fields["trace.trace_id"]), rate) {
		return true, rate
	}
	return false, 0
}

// keepTrace keeps roughly one in rate trace ids.
func keepTrace(traceID string, rate int) bool {
	if rate <= 1 {
		return true
	}
	limit := math.MaxUint32 / uint32(rate) //nolint:gosec
	return crc32.ChecksumIEEE([]byte(traceID)) < limit
}
