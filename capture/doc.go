/*
Package capture records every exchange served by the harness listeners.

A Recorder wraps each response writer in an Interceptor that tees the bytes sent to the
client into an InFlight buffer. When the handler returns, the Capture is finished exactly
once: a Record holding the request and the response, as the client saw it, is handed to a
Sink (normally a capturelog.Log).

Capturing is best effort. A Record is dropped, never half written, when the client went
away before the response completed, and a failing Sink is reported through o11y without
ever affecting the response.

The gincapture and httpnetcapture packages wire a Recorder into gin and net/http servers.
*/
package capture
