//go:build tools

// Package tools pins the lint, import formatting and test runner versions used on the
// harness, installed with go install from this module.
package tools

import (
	_ "github.com/golangci/golangci-lint/v2/cmd/golangci-lint"
	_ "github.com/rinchsan/gosimports/cmd/gosimports"
	_ "gotest.tools/gotestsum"
)
