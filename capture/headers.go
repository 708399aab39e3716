package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

type Header struct {
	Name  string
	Value string
}

// Headers is an ordered list of header name/value pairs. It is written to JSON as an
// object whose keys keep the list order.
type Headers []Header

// HeadersFrom flattens h sorted by name, joining repeated values with ", ".
func HeadersFrom(h http.Header) Headers {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	hs := make(Headers, 0, len(names))
	for _, name := range names {
		hs = append(hs, Header{Name: name, Value: strings.Join(h[name], ", ")})
	}
	return hs
}

// Get looks a header up ignoring case.
func (h Headers) Get(name string) (string, bool) {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value, true
		}
	}
	return "", false
}

func (h Headers) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, hdr := range h {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(hdr.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(hdr.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (h *Headers) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*h = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("headers: expected an object, got %v", tok)
	}

	hs := Headers{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("headers: expected a name, got %v", tok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("headers: value of %q: %w", name, err)
		}
		hs = append(hs, Header{Name: name, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*h = hs
	return nil
}
