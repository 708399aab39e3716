package payload

import (
	"encoding/json"
	"regexp"
	"sync"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

var alnum = regexp.MustCompile(`^[A-Za-z0-9]*$`)

func TestKind(t *testing.T) {
	tests := []struct {
		contentType string
		want        Kind
	}{
		{contentType: "application/json", want: JSON},
		{contentType: "application/json; charset=utf-8", want: JSON},
		{contentType: "application/problem+json", want: JSON},
		{contentType: "text/plain", want: Text},
		{contentType: "text/html; charset=utf-8", want: Text},
		{contentType: "application/octet-stream", want: Binary},
		{contentType: "image/png", want: Binary},
		{contentType: "", want: Binary},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Check(t, cmp.Equal(KindOf(tt.contentType), tt.want))
		})
	}

	for _, k := range All() {
		assert.Check(t, cmp.Equal(KindOf(k.ContentType()), k))
		parsed, ok := ParseKind(k.String())
		assert.Check(t, ok)
		assert.Check(t, cmp.Equal(parsed, k))
	}
	_, ok := ParseKind("xml")
	assert.Check(t, !ok)
}

func TestGenerator_Deterministic(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 20; i++ {
		assert.Check(t, cmp.Equal(a.String(12), b.String(12)))
		assert.Check(t, cmp.DeepEqual(a.Body(JSON), b.Body(JSON)))
		assert.Check(t, cmp.DeepEqual(a.Headers(Text), b.Headers(Text)))
		assert.Check(t, cmp.Equal(a.Path(), b.Path()))
	}
}

func TestGenerator_String(t *testing.T) {
	g := New(1)
	for _, n := range []int{0, 1, 15, 100} {
		s := g.String(n)
		assert.Check(t, cmp.Len(s, n))
		assert.Check(t, alnum.MatchString(s), s)
	}
}

func depth(v interface{}) int {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return 0
	}
	d := 0
	for _, child := range obj {
		if cd := depth(child); cd > d {
			d = cd
		}
	}
	return d + 1
}

func checkObject(t *testing.T, v interface{}, remaining int) {
	t.Helper()
	switch v := v.(type) {
	case string:
		// below the last level both plain values and exhausted objects are strings
		if remaining == 0 {
			assert.Check(t, len(v) == 10 || len(v) == 15, v)
		} else {
			assert.Check(t, cmp.Len(v, 15))
		}
		assert.Check(t, alnum.MatchString(v))
	case map[string]interface{}:
		assert.Check(t, remaining > 0)
		assert.Check(t, len(v) >= 1 && len(v) <= 5, "keys: %d", len(v))
		for k, child := range v {
			assert.Check(t, cmp.Len(k, 5))
			checkObject(t, child, remaining-1)
		}
	default:
		t.Fatalf("unexpected %T", v)
	}
}

func TestGenerator_Object(t *testing.T) {
	g := New(7)
	for i := 0; i < 50; i++ {
		obj := g.Object(3)
		assert.Check(t, depth(obj) <= 3)
		checkObject(t, obj, 3)
	}
	assert.Check(t, cmp.Len(g.Object(0).(string), 10))
}

func TestGenerator_Body(t *testing.T) {
	g := New(3)
	for i := 0; i < 50; i++ {
		b := g.Body(JSON)
		var v map[string]interface{}
		assert.Assert(t, json.Unmarshal(b, &v), string(b))
		d := depth(v)
		assert.Check(t, d >= 1 && d <= 3, "depth %d", d)

		text := g.Body(Text)
		assert.Check(t, len(text) < MaxSize)
		assert.Check(t, alnum.Match(text))

		bin := g.Body(Binary)
		assert.Check(t, len(bin) < MaxSize)
	}
}

func TestGenerator_Headers(t *testing.T) {
	g := New(11)
	var auth, cookie, custom int
	const n = 1000
	for i := 0; i < n; i++ {
		h := g.Headers(JSON)
		assert.Check(t, cmp.Equal(h["Content-Type"], "application/json"))
		if v, ok := h["Authorization"]; ok {
			auth++
			assert.Check(t, regexp.MustCompile(`^Bearer [A-Za-z0-9]{32}$`).MatchString(v), v)
		}
		if v, ok := h["Cookie"]; ok {
			cookie++
			assert.Check(t, regexp.MustCompile(`^sessionId=[A-Za-z0-9]{24}; userId=\d{1,3}$`).MatchString(v), v)
		}
		if v, ok := h["X-Custom-Header"]; ok {
			custom++
			assert.Check(t, cmp.Len(v, 20))
		}
	}
	// loose bounds around p=.5, .5 and .7
	assert.Check(t, auth > 400 && auth < 600, auth)
	assert.Check(t, cookie > 400 && cookie < 600, cookie)
	assert.Check(t, custom > 600 && custom < 800, custom)
}

func TestGenerator_Path(t *testing.T) {
	g := New(5)
	for i := 0; i < 20; i++ {
		assert.Check(t, regexp.MustCompile(`^[0-9a-z]{6}$`).MatchString(g.Path()))
	}
}

func TestGenerator_Concurrent(t *testing.T) {
	g := NewRandom()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = g.Body(JSON)
				_ = g.Headers(Binary)
				_ = g.Intn(5)
			}
		}()
	}
	wg.Wait()
}
