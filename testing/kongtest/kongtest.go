// Package kongtest drives kong command lines from tests without exiting the test binary.
package kongtest

import (
	"bytes"
	"testing"

	"github.com/alecthomas/kong"
	"gotest.tools/v3/assert"
)

func newApp(t *testing.T, cli interface{}, out *bytes.Buffer, exitCode *int) *kong.Kong {
	t.Helper()
	app, err := kong.New(cli,
		kong.Name("test-app"),
		kong.Writers(out, out),
		kong.Exit(func(code int) { *exitCode = code }),
	)
	assert.Assert(t, err)
	return app
}

// Help renders the help kong prints for args followed by --help, failing t unless kong
// asked to exit cleanly.
func Help(t *testing.T, cli interface{}, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	code := -1
	app := newApp(t, cli, &out, &code)

	_, err := app.Parse(append(args, "--help"))
	assert.Check(t, err)
	assert.Check(t, code == 0, "kong exit code %d", code)
	return out.String()
}

// Parse parses args into cli, applying defaults and environment variables, and
// returns the selected command path such as "send".
func Parse(t *testing.T, cli interface{}, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	code := -1
	app := newApp(t, cli, &out, &code)

	kctx, err := app.Parse(args)
	assert.Assert(t, err, out.String())
	return kctx.Command()
}
