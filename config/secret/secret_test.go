package secret

import (
	"encoding/json"
	"fmt"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestString_Redacted(t *testing.T) {
	key := String("hc-key-1234")
	assert.Check(t, cmp.Equal(key.Raw(), "hc-key-1234"))
	assert.Check(t, key.IsSet())
	assert.Check(t, !String("").IsSet())

	for _, verb := range []string{"%v", "%s", "%q", "%x", "%#v", "%+v"} {
		assert.Check(t, cmp.Equal(fmt.Sprintf(verb, key), "REDACTED"), verb)
	}

	cfg := struct {
		Dataset string
		Key     String
	}{Dataset: "traffic-harness", Key: key}
	assert.Check(t, cmp.Equal(fmt.Sprintf("%+v", cfg), "{Dataset:traffic-harness Key:REDACTED}"))

	b, err := json.Marshal(cfg)
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(string(b), `{"Dataset":"traffic-harness","Key":"REDACTED"}`))
}
