// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"sync/atomic"

	"fxengine/internal/log"
)

// LoggingTransport writes each message to the log as JSON.
type LoggingTransport struct {
	closed atomic.Bool
	sent   atomic.Uint64
}

// NewLoggingTransport creates a LoggingTransport.
func NewLoggingTransport() *LoggingTransport {
	log.Debugf("Transport: using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs data at info level. Values that cannot be encoded are logged
// with their Go representation.
func (lt *LoggingTransport) Send(data any) error {
	if lt.closed.Load() {
		return ErrClosed
	}
	b, err := json.Marshal(data)
	if err != nil {
		log.Infof("Transport: %T %+v", data, data)
	} else {
		log.Infof("Transport: %s", b)
	}
	lt.sent.Add(1)
	return nil
}

// Sent returns the number of messages logged.
func (lt *LoggingTransport) Sent() uint64 {
	return lt.sent.Load()
}

// Close stops further sends.
func (lt *LoggingTransport) Close() error {
	lt.closed.Store(true)
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
