package o11y

import "errors"

// warning is an error that is reported on spans without failing them.
type warning struct {
	msg string
}

func (w *warning) Error() string { return w.msg }

// NewWarning returns an error that IsWarning recognises through any amount of
// wrapping. Every call returns a distinct value, so errors.Is never matches two
// separate warnings.
func NewWarning(msg string) error {
	return &warning{msg: msg}
}

// IsWarning reports whether err or anything it wraps came from NewWarning.
func IsWarning(err error) bool {
	var w *warning
	return errors.As(err, &w)
}
