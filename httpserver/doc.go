/*
Package httpserver runs the harness's HTTP listeners.

Each listener tracks its connections and exposes them as gauges, and shuts down with a
grace period so that in-flight requests (and the capture records they produce) complete.
*/
package httpserver
