// Package provider delivers rendered notifications over email and SMS.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/syed-c/standzon-sub008/internal/builders"
)

// Message is one notification to send.
type Message struct {
	Channel    builders.Channel
	Recipient  string
	TemplateID string
	Payload    map[string]any
}

// Receipt identifies an accepted message at the provider.
type Receipt struct {
	DeliveryID string
}

// Sender delivers a message. Errors should be *TransientError or
// *PermanentError; anything else is treated as transient.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// TransientError is a failure worth retrying.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return "transient delivery failure: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a failure that will not succeed on retry, such as an
// invalid recipient.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return "permanent delivery failure: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Transient(err error) error { return &TransientError{Err: err} }
func Permanent(err error) error { return &PermanentError{Err: err} }

// IsPermanent reports whether err carries a *PermanentError.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Router sends each message through the sender registered for its channel.
type Router struct {
	senders map[builders.Channel]Sender
}

func NewRouter() *Router {
	return &Router{senders: make(map[builders.Channel]Sender)}
}

// Register binds ch to s and returns the router for chaining.
func (r *Router) Register(ch builders.Channel, s Sender) *Router {
	r.senders[ch] = s
	return r
}

func (r *Router) Send(ctx context.Context, msg Message) (Receipt, error) {
	s, ok := r.senders[msg.Channel]
	if !ok {
		return Receipt{}, Permanent(fmt.Errorf("no provider for channel %q", msg.Channel))
	}
	return s.Send(ctx, msg)
}

var _ Sender = (*Router)(nil)
