/*
Package system manages the startup, running, gauges and shutdown of the harness processes.

A harness runs several things at once: one HTTP listener per capture port, the admin
health server, the capture log sync loop and the gauge reporter. They all need to stop
together when the process is signalled, or when any one of them fails in a way the
others cannot survive. The cleanups registered along the way (closing the capture log,
flushing o11y) then run in order.
*/
package system
