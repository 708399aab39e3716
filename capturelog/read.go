package capturelog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/circleci/trafficharness/capture"
	"github.com/circleci/trafficharness/closer"
)

// ParseError is a complete line that is not a valid record.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("capture log line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Scan calls fn for every record in r, in order. Blank lines are skipped, as is a final
// line with no terminating newline. Scanning stops at the first error from fn.
func Scan(r io.Reader, fn func(capture.Record) error) error {
	br := bufio.NewReader(r)
	for n := 1; ; n++ {
		line, err := br.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// whatever is left is an append still being written
			return nil
		}
		if err != nil {
			return err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec capture.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return &ParseError{Line: n, Err: err}
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func ReadAll(r io.Reader) ([]capture.Record, error) {
	var records []capture.Record
	err := Scan(r, func(rec capture.Record) error {
		records = append(records, rec)
		return nil
	})
	return records, err
}

func ReadFile(path string) (_ []capture.Record, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer closer.ErrorHandler(f, &err)
	return ReadAll(f)
}
