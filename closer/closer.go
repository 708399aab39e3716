// Package closer keeps the error of a deferred Close from being dropped.
package closer

import "io"

// ErrorHandler closes c and stores the close error in *err when nothing else failed
// first. Use it with a named return:
//
//	defer closer.ErrorHandler(f, &err)
func ErrorHandler(c io.Closer, err *error) {
	if cerr := c.Close(); *err == nil {
		*err = cerr
	}
}
