package httpserver

import (
	"net"
	"net/http"
	"strconv"
)

// LocalPort returns the port of the listener that accepted the request's connection,
// or 0 when the server did not record the local address.
func LocalPort(r *http.Request) int {
	addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr)
	if !ok {
		return 0
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	_, p, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(p)
	return port
}
