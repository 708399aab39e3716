package honeycomb

import (
	"errors"

	"github.com/honeycombio/libhoney-go/transmission"
)

// teeSender hands every event to each of its senders in turn.
type teeSender struct {
	senders []transmission.Sender
}

func (t *teeSender) Add(ev *transmission.Event) {
	for _, s := range t.senders {
		s.Add(ev)
	}
}

func (t *teeSender) Start() error {
	if len(t.senders) == 0 {
		return errors.New("no senders configured")
	}
	return t.each(transmission.Sender.Start)
}

func (t *teeSender) Stop() error {
	return t.each(transmission.Sender.Stop)
}

func (t *teeSender) Flush() error {
	return t.each(transmission.Sender.Flush)
}

func (t *teeSender) each(fn func(transmission.Sender) error) error {
	var errs []error
	for _, s := range t.senders {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TxResponses only surfaces the first sender's responses, which is the API sender
// when traces are shipped.
func (t *teeSender) TxResponses() chan transmission.Response {
	return t.senders[0].TxResponses()
}

func (t *teeSender) SendResponse(r transmission.Response) bool {
	blocked := false
	for _, s := range t.senders {
		if s.SendResponse(r) {
			blocked = true
		}
	}
	return blocked
}
