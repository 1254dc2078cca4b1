// SPDX-License-Identifier: MIT
/*
Package transport carries control replies and analysis data out of the
engine.

WebSocketTransport serves the JSON control protocol on /control and
broadcasts every engine reply to all connected clients. LoggingTransport
writes the same replies to the log when no network endpoint is configured.
The udp subpackage streams analysis frames.
*/
package transport

import (
	"errors"

	"fxengine/internal/control"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

// Transport delivers outbound messages. Implementations must be safe for
// concurrent use and must not block the caller.
type Transport interface {
	Send(data any) error
	Close() error
}

// Forward sends every reply the surface receives through t. The returned
// func stops forwarding.
func Forward(s *control.Surface, t Transport) (cancel func()) {
	return s.Subscribe(func(r control.Response) {
		_ = t.Send(r)
	})
}
