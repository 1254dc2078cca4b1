// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"fxengine/internal/log"
)

// DefaultInterval is used when a publisher is given a non-positive interval.
const DefaultInterval = 16 * time.Millisecond

// HeaderSize is the number of bytes before the first value.
const HeaderSize = 4 + 8 + 2

// MaxValues is the largest frame a packet can carry.
const MaxValues = math.MaxUint16

// Source provides fixed-size analysis frames.
type Source interface {
	FrameSize() int
	FrameInto(dst []float32) error
}

// UDPPublisher periodically copies a frame from its Source, packs it and
// sends it with a UDPSender.
type UDPPublisher struct {
	sender   *UDPSender
	source   Source
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex

	sequenceNum uint32
	frame       []float32
	packet      []byte
}

// NewUDPPublisher creates a publisher sending frames from src every
// interval.
func NewUDPPublisher(interval time.Duration, sender *UDPSender, src Source) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("UDPPublisher: UDP sender cannot be nil")
	}
	if src == nil {
		return nil, errors.New("UDPPublisher: source cannot be nil")
	}
	n := src.FrameSize()
	if n <= 0 || n > MaxValues {
		return nil, fmt.Errorf("UDPPublisher: frame size %d outside [1, %d]", n, MaxValues)
	}
	if interval <= 0 {
		interval = DefaultInterval
		log.Warnf("UDPPublisher: invalid interval, defaulting to %s", interval)
	}

	log.Infof("UDPPublisher: interval %s, %d values per packet", interval, n)
	return &UDPPublisher{
		sender:   sender,
		source:   src,
		interval: interval,
		frame:    make([]float32, n),
		packet:   make([]byte, 0, HeaderSize+4*n),
	}, nil
}

// Start launches the publishing goroutine. Calling Start while running is a
// no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		log.Warnf("UDPPublisher: Start called but already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket(time.Now())
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publishing goroutine and waits for it to exit.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	log.Debugf("UDPPublisher: stopped after %d packets", p.sequenceNum)
	return nil
}

/*
Packet layout, big endian:

	| Field           | Type      | Bytes | Description                        |
	|-----------------|-----------|-------|------------------------------------|
	| Sequence Number | uint32    | 4     | Monotonically increasing           |
	| Timestamp       | int64     | 8     | Nanoseconds since epoch            |
	| Value Count     | uint16    | 2     | Number of floats (N)               |
	| Values          | []float32 | N * 4 | Spectrum, then EQ band energies    |
*/

// appendPacket encodes one packet onto dst.
func appendPacket(dst []byte, seq uint32, ts int64, values []float32) []byte {
	dst = binary.BigEndian.AppendUint32(dst, seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(ts))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(values)))
	for _, v := range values {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

func (p *UDPPublisher) buildAndSendPacket(now time.Time) {
	if err := p.source.FrameInto(p.frame); err != nil {
		log.Errorf("UDPPublisher: error reading frame: %v", err)
		return
	}

	p.sequenceNum++
	p.packet = appendPacket(p.packet[:0], p.sequenceNum, now.UnixNano(), p.frame)

	if err := p.sender.Send(p.packet); err != nil {
		log.Debugf("UDPPublisher: packet %d: %v", p.sequenceNum, err)
	}
}

// Close stops the publisher.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
