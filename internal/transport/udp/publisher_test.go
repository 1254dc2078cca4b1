// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxengine/internal/analysis"
	"fxengine/internal/audio"
	"fxengine/pkg/utils"
)

var _ Source = (*analysis.Analyzer)(nil)

type staticSource struct {
	values []float32
	err    error
}

func (s *staticSource) FrameSize() int { return len(s.values) }

func (s *staticSource) FrameInto(dst []float32) error {
	if s.err != nil {
		return s.err
	}
	copy(dst, s.values)
	return nil
}

type packet struct {
	seq    uint32
	ts     int64
	values []float32
}

func parsePacket(t *testing.T, b []byte) packet {
	t.Helper()
	require.GreaterOrEqual(t, len(b), HeaderSize)
	p := packet{
		seq: binary.BigEndian.Uint32(b[0:]),
		ts:  int64(binary.BigEndian.Uint64(b[4:])),
	}
	n := int(binary.BigEndian.Uint16(b[12:]))
	require.Len(t, b, HeaderSize+4*n)
	for i := range n {
		p.values = append(p.values, math.Float32frombits(binary.BigEndian.Uint32(b[HeaderSize+4*i:])))
	}
	return p
}

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func receive(t *testing.T, conn *net.UDPConn) packet {
	t.Helper()
	buf := make([]byte, 65536)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return parsePacket(t, buf[:n])
}

func TestAppendPacket(t *testing.T) {
	b := appendPacket(nil, 7, -3, []float32{1.5, -2})
	p := parsePacket(t, b)
	assert.Equal(t, uint32(7), p.seq)
	assert.Equal(t, int64(-3), p.ts)
	assert.Equal(t, []float32{1.5, -2}, p.values)

	buf := make([]byte, 0, HeaderSize+8)
	values := []float32{1, 2}
	allocs := testing.AllocsPerRun(100, func() {
		buf = appendPacket(buf[:0], 1, 2, values)
	})
	assert.Zero(t, allocs)
}

func TestPublisherSendsFrames(t *testing.T) {
	conn := listen(t)
	sender, err := NewUDPSender(conn.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	src := &staticSource{values: []float32{0.25, 0.5, 1}}
	pub, err := NewUDPPublisher(5*time.Millisecond, sender, src)
	require.NoError(t, err)

	pub.Start()
	pub.Start()
	first := receive(t, conn)
	second := receive(t, conn)
	require.NoError(t, pub.Stop())
	require.NoError(t, pub.Close())

	assert.Equal(t, uint32(1), first.seq)
	assert.Equal(t, uint32(2), second.seq)
	assert.Equal(t, src.values, first.values)
	assert.GreaterOrEqual(t, second.ts, first.ts)
}

func TestPublisherSkipsFailedFrames(t *testing.T) {
	conn := listen(t)
	sender, err := NewUDPSender(conn.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	src := &staticSource{values: []float32{1}, err: errors.New("not ready")}
	pub, err := NewUDPPublisher(time.Millisecond, sender, src)
	require.NoError(t, err)

	pub.buildAndSendPacket(time.Unix(0, 42))
	assert.Zero(t, pub.sequenceNum)

	src.err = nil
	pub.buildAndSendPacket(time.Unix(0, 42))
	p := receive(t, conn)
	assert.Equal(t, uint32(1), p.seq)
	assert.Equal(t, int64(42), p.ts)
}

func TestPublisherCarriesAnalysis(t *testing.T) {
	conn := listen(t)
	sender, err := NewUDPSender(conn.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	a, err := analysis.NewAnalyzer(256, 44100, analysis.Hann)
	require.NoError(t, err)
	var b audio.Block
	sine := utils.GenerateSineWave(256, 44100, a.FrequencyForBin(12), 0.5)
	for i := 0; i < len(sine); i += audio.QuantumSize {
		copy(b.Samples[:], sine[i:])
		a.Consume(&b)
	}

	pub, err := NewUDPPublisher(time.Millisecond, sender, a)
	require.NoError(t, err)
	pub.buildAndSendPacket(time.Now())

	p := receive(t, conn)
	require.Len(t, p.values, a.Bins()+analysis.NumBands)
	assert.InDelta(t, 0.5, p.values[12], 0.03)
}

func TestPublisherRejectsBadInput(t *testing.T) {
	conn := listen(t)
	sender, err := NewUDPSender(conn.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	_, err = NewUDPPublisher(time.Millisecond, nil, &staticSource{values: []float32{1}})
	assert.Error(t, err)
	_, err = NewUDPPublisher(time.Millisecond, sender, nil)
	assert.Error(t, err)
	_, err = NewUDPPublisher(time.Millisecond, sender, &staticSource{})
	assert.Error(t, err)

	pub, err := NewUDPPublisher(0, sender, &staticSource{values: []float32{1}})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, pub.interval)
	assert.NoError(t, pub.Stop(), "stop before start")
}

func TestSenderClosed(t *testing.T) {
	conn := listen(t)
	sender, err := NewUDPSender(conn.LocalAddr().String())
	require.NoError(t, err)
	require.NoError(t, sender.Close())
	require.NoError(t, sender.Close())
	assert.ErrorIs(t, sender.Send([]byte{1}), ErrClosed)

	_, err = NewUDPSender("not-an-address")
	assert.Error(t, err)
}
