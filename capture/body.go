package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

type BodyKind string

const (
	BodyNone   BodyKind = "none"
	BodyJSON   BodyKind = "json"
	BodyForm   BodyKind = "form"
	BodyText   BodyKind = "text"
	BodyBinary BodyKind = "binary"
)

// DefaultMaxBodySize bounds how much of a request body is captured.
const DefaultMaxBodySize = 50 << 20

// Body is a captured request body. Raw holds the decoded bytes (after any
// Content-Encoding was removed); Kind decides how they are written to a Record.
type Body struct {
	Kind BodyKind
	Raw  []byte
	// Truncated is set when the body was larger than the capture limit, Raw then holds
	// only the leading bytes and the Kind is binary.
	Truncated bool
}

// Value returns the body as a Go value: the decoded JSON value, a form as a map of
// field to string (or []string for repeated fields), text as a string, binary as []byte
// and nil for no body.
func (b Body) Value() (interface{}, error) {
	switch b.Kind {
	case BodyNone, "":
		return nil, nil
	case BodyJSON:
		var v interface{}
		if err := json.Unmarshal(b.Raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case BodyForm:
		vals, err := url.ParseQuery(string(b.Raw))
		if err != nil {
			return nil, err
		}
		return formObject(vals), nil
	case BodyText:
		return string(b.Raw), nil
	case BodyBinary:
		return b.Raw, nil
	}
	return nil, fmt.Errorf("unknown body kind %q", b.Kind)
}

func formObject(vals url.Values) map[string]interface{} {
	m := make(map[string]interface{}, len(vals))
	for k, vs := range vals {
		if len(vs) == 1 {
			m[k] = vs[0]
		} else {
			m[k] = vs
		}
	}
	return m
}

func (b Body) marshalValue() (json.RawMessage, error) {
	if b.Kind == BodyJSON {
		return json.RawMessage(b.Raw), nil
	}
	v, err := b.Value()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func unmarshalBody(kind BodyKind, raw json.RawMessage) (Body, error) {
	b := Body{Kind: kind}
	switch kind {
	case BodyNone, "":
		b.Kind = BodyNone
	case BodyJSON:
		buf := &bytes.Buffer{}
		if err := json.Compact(buf, raw); err != nil {
			return Body{}, err
		}
		b.Raw = buf.Bytes()
	case BodyForm:
		var m map[string]interface{}
		if err := json.Unmarshal(raw, &m); err != nil {
			return Body{}, err
		}
		vals := url.Values{}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch v := m[k].(type) {
			case string:
				vals.Add(k, v)
			case []interface{}:
				for _, e := range v {
					vals.Add(k, fmt.Sprint(e))
				}
			default:
				return Body{}, fmt.Errorf("form field %q has unexpected type %T", k, v)
			}
		}
		b.Raw = []byte(vals.Encode())
	case BodyText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Body{}, err
		}
		b.Raw = []byte(s)
	case BodyBinary:
		if err := json.Unmarshal(raw, &b.Raw); err != nil {
			return Body{}, err
		}
	default:
		return Body{}, fmt.Errorf("unknown body kind %q", kind)
	}
	return b, nil
}

// readBody reads up to limit bytes of the request body and replaces req.Body so that the
// handler still sees the complete stream.
func readBody(req *http.Request, limit int64) (raw []byte, truncated bool, err error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, false, nil
	}
	orig := req.Body
	raw, err = io.ReadAll(io.LimitReader(orig, limit+1))
	if int64(len(raw)) > limit {
		truncated = true
	}
	req.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(raw), orig), orig}
	if truncated {
		raw = raw[:limit]
	}
	return raw, truncated, err
}

// ParseBody classifies a request body by its media type, after removing any
// Content-Encoding. Anything that cannot be faithfully represented as JSON, form or
// text is kept as binary.
func ParseBody(contentType, contentEncoding string, raw []byte, truncated bool, limit int64) Body {
	if len(raw) == 0 {
		return Body{Kind: BodyNone}
	}
	if truncated {
		return Body{Kind: BodyBinary, Raw: raw, Truncated: true}
	}
	decoded, err := decode(contentEncoding, raw, limit)
	if err != nil {
		return Body{Kind: BodyBinary, Raw: raw}
	}

	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	switch {
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		// json.Valid accepts invalid UTF-8 inside strings, which would be written raw
		if utf8.Valid(decoded) && json.Valid(decoded) {
			return Body{Kind: BodyJSON, Raw: decoded}
		}
	case mt == "application/x-www-form-urlencoded":
		if v, err := url.ParseQuery(string(decoded)); err == nil && validForm(v) {
			return Body{Kind: BodyForm, Raw: decoded}
		}
	case strings.HasPrefix(mt, "text/"):
		if utf8.Valid(decoded) {
			return Body{Kind: BodyText, Raw: decoded}
		}
	}
	return Body{Kind: BodyBinary, Raw: decoded}
}

// validForm reports whether every decoded key and value is UTF-8, so the form
// survives being written as a JSON object unchanged.
func validForm(v url.Values) bool {
	for k, vals := range v {
		if !utf8.ValidString(k) {
			return false
		}
		for _, s := range vals {
			if !utf8.ValidString(s) {
				return false
			}
		}
	}
	return true
}

var errUnknownEncoding = errors.New("unknown content encoding")

func decode(encoding string, raw []byte, limit int64) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		return readLimited(r, limit)
	case "deflate":
		// servers disagree on whether deflate is zlib wrapped, accept both
		if r, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			if out, err := readLimited(r, limit); err == nil {
				return out, nil
			}
		}
		return readLimited(flate.NewReader(bytes.NewReader(raw)), limit)
	case "zstd":
		d, err := zstd.NewReader(bytes.NewReader(raw), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer d.Close()
		return readLimited(d, limit)
	}
	return nil, errUnknownEncoding
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("decoded body larger than %d bytes", limit)
	}
	return out, nil
}
