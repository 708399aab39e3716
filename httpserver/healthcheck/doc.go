/*
Package healthcheck serves the harness admin API.

	GET /live                  liveness from the registered health checks
	GET /ready                 readiness from the registered health checks
	GET /gauges                current gauge readings as json, the same values statsd receives
	GET /debug/pprof/*profile  the Go runtime profiles
*/
package healthcheck
