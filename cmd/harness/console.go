package main

import (
	"time"

	"github.com/circleci/trafficharness/console"
	"github.com/circleci/trafficharness/httpserver/healthcheck"
	"github.com/circleci/trafficharness/o11y"
	"github.com/circleci/trafficharness/system"
)

type consoleCmd struct {
	Target target `embed:""`

	Addr      string `env:"CONSOLE_ADDR" default:":3100" help:"The address for the console to listen on"`
	AdminAddr string `env:"ADMIN_ADDR" default:":8002" help:"The address for the admin api to listen on"`

	ShutdownDelay time.Duration `env:"SHUTDOWN_DELAY" default:"0s" help:"Delay shutdown by this amount" hidden:""`
}

func (c *consoleCmd) Run(f *O11yFlags) (err error) {
	g, err := c.Target.generator(0)
	if err != nil {
		return err
	}

	ctx, o11yCleanup, err := loadO11y("console", f)
	if err != nil {
		return err
	}
	defer o11yCleanup(ctx)

	ctx, span := o11y.StartSpan(ctx, "main: console")
	defer o11y.End(span, &err)
	o11y.Log(ctx, "starting console",
		o11y.Field("version", Version),
		o11y.Field("addr", c.Addr),
	)

	sys := system.New(ctx)
	defer sys.Cleanup(ctx)

	if _, err = console.Load(ctx, c.Addr, g, sys); err != nil {
		return err
	}
	if _, err = healthcheck.Load(ctx, c.AdminAddr, sys); err != nil {
		return err
	}
	return sys.Run(c.ShutdownDelay)
}
