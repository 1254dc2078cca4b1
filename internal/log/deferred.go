// SPDX-License-Identifier: MIT
package log

import (
	"context"
	"sync/atomic"
)

// Entry is one message posted from the real-time context. Formatting is
// done by the draining goroutine.
type Entry struct {
	Level  LogLevel
	Format string
	Args   [2]any
}

// Deferred is a bounded, non-blocking log sink. Post never waits: when the
// buffer is full the entry is counted as dropped.
type Deferred struct {
	entries chan Entry
	dropped atomic.Uint64
}

// NewDeferred returns a sink buffering up to capacity entries.
func NewDeferred(capacity int) *Deferred {
	return &Deferred{entries: make(chan Entry, capacity)}
}

// Post queues a message with up to two arguments. Unused arguments must be
// left nil and must not appear in format.
func (d *Deferred) Post(level LogLevel, format string, a, b any) {
	if !Enabled(level) {
		return
	}
	select {
	case d.entries <- Entry{Level: level, Format: format, Args: [2]any{a, b}}:
	default:
		d.dropped.Add(1)
	}
}

// Dropped returns how many entries were discarded because the sink was full.
func (d *Deferred) Dropped() uint64 {
	return d.dropped.Load()
}

// Run writes queued entries to the logger until ctx is done, then flushes
// whatever is still buffered.
func (d *Deferred) Run(ctx context.Context) {
	for {
		select {
		case e := <-d.entries:
			d.emit(e)
		case <-ctx.Done():
			d.Flush()
			return
		}
	}
}

// Flush writes every buffered entry without waiting for more.
func (d *Deferred) Flush() {
	for {
		select {
		case e := <-d.entries:
			d.emit(e)
		default:
			return
		}
	}
}

func (d *Deferred) emit(e Entry) {
	n := 0
	for _, a := range e.Args {
		if a != nil {
			n++
		}
	}
	Logf(e.Level, e.Format, e.Args[:n]...)
}
