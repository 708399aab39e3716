package capture

import (
	"encoding/json"
	"net/http"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestHeadersFrom(t *testing.T) {
	hs := HeadersFrom(http.Header{
		"X-Custom-Header": {"abc"},
		"Accept":          {"text/html", "application/json"},
		"Authorization":   {"Bearer token"},
	})
	assert.Check(t, cmp.DeepEqual(hs, Headers{
		{Name: "Accept", Value: "text/html, application/json"},
		{Name: "Authorization", Value: "Bearer token"},
		{Name: "X-Custom-Header", Value: "abc"},
	}))

	v, ok := hs.Get("x-custom-header")
	assert.Check(t, ok)
	assert.Check(t, cmp.Equal(v, "abc"))

	_, ok = hs.Get("Cookie")
	assert.Check(t, !ok)
}

func TestHeaders_JSONKeepsOrder(t *testing.T) {
	hs := Headers{
		{Name: "Zebra", Value: "1"},
		{Name: "Apple", Value: "2"},
		{Name: "Mango", Value: `quote " and \ slash`},
	}
	b, err := json.Marshal(hs)
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(string(b), `{"Zebra":"1","Apple":"2","Mango":"quote \" and \\ slash"}`))

	var got Headers
	assert.Assert(t, json.Unmarshal(b, &got))
	assert.Check(t, cmp.DeepEqual(got, hs))
}

func TestHeaders_JSONEmptyAndNull(t *testing.T) {
	b, err := json.Marshal(Headers{})
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(string(b), `{}`))

	var got Headers
	assert.Assert(t, json.Unmarshal([]byte(`null`), &got))
	assert.Check(t, got == nil)

	assert.Check(t, cmp.ErrorContains(json.Unmarshal([]byte(`["a"]`), &got), "expected an object"))
	assert.Check(t, json.Unmarshal([]byte(`{"a":1}`), &got) != nil)
}
