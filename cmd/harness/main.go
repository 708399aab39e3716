package main

import (
	"errors"
	"log" //nolint:depguard // non-o11y log is allowed for a top-level fatal

	"github.com/alecthomas/kong"

	"github.com/circleci/trafficharness/termination"
)

// Version and Date are set at build time.
var (
	Version = "dev"
	Date    = "unknown"
)

type cli struct {
	O11y O11yFlags `embed:""`

	Serve   serveCmd   `cmd:"" help:"Run the listener fleet, capturing every exchange to the log"`
	Send    sendCmd    `cmd:"" help:"Send a batch of randomized requests and print the outcome of each"`
	Console consoleCmd `cmd:"" help:"Serve the operator console for sending batches from a browser"`
	Gauges  gaugesCmd  `cmd:"" help:"Print the current gauges of a running serve or console process"`
}

func main() {
	err := run()
	if err != nil && !errors.Is(err, termination.ErrTerminated) {
		log.Fatal("Unexpected Error: ", err)
	}
	log.Println("exited 0")
}

func run() error {
	c := cli{}
	kctx := kong.Parse(&c,
		kong.Name("harness"),
		kong.Description("Synthetic HTTP traffic harness"),
		kong.UsageOnError(),
	)
	return kctx.Run(&c.O11y)
}
