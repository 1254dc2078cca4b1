// SPDX-License-Identifier: MIT
/*
Package bridge owns the engine memory region that carries audio across the
boundary between the device callback and the effect chain.

Buffers are handed out as Spans (offset and length) rather than slices. A
Region may relocate when it grows; every relocation bumps its generation.
Holders re-derive their slices from the spans whenever the generation they
last saw differs from the current one, so a stale view is never used past
the next check.

A Region is written by the real-time context only. Reads of the current
backing store and generation are atomic, so other goroutines may inspect it.
Writes made through a view obtained before a relocation are not carried into
the new backing store.
*/
package bridge

import (
	"errors"
	"fmt"
	"sync/atomic"

	"fxengine/pkg/bitint"
)

// ErrInvalidSize is returned for non-positive allocation sizes.
var ErrInvalidSize = errors.New("bridge: invalid size")

// Span addresses a range of samples inside a Region.
type Span struct {
	Off int
	Len int
}

type store struct {
	mem []float32
	gen uint64
}

// Region is a growable block of float32 samples with a relocation identity.
type Region struct {
	cur  atomic.Pointer[store]
	used int
}

// NewRegion allocates a region with room for at least capacity samples.
func NewRegion(capacity int) *Region {
	r := &Region{}
	r.cur.Store(&store{mem: make([]float32, bitint.NextPowerOfTwo(capacity)), gen: 1})
	return r
}

// Generation identifies the current backing store. It changes on every
// relocation.
func (r *Region) Generation() uint64 {
	return r.cur.Load().gen
}

// Cap returns the size of the current backing store in samples.
func (r *Region) Cap() int {
	return len(r.cur.Load().mem)
}

// Used returns the number of samples handed out by Alloc.
func (r *Region) Used() int {
	return r.used
}

// Alloc reserves n samples, growing the region when it is full.
func (r *Region) Alloc(n int) (Span, error) {
	if n <= 0 {
		return Span{}, fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	if r.used+n > r.Cap() {
		r.Grow(r.used + n)
	}
	s := Span{Off: r.used, Len: n}
	r.used += n
	return s, nil
}

// Grow relocates the region into a backing store of at least minCap samples,
// preserving its contents. A region already large enough still relocates.
func (r *Region) Grow(minCap int) {
	old := r.cur.Load()
	size := bitint.NextPowerOfTwo(max(minCap, len(old.mem)))
	mem := make([]float32, size)
	copy(mem, old.mem)
	r.cur.Store(&store{mem: mem, gen: old.gen + 1})
}

// View returns the slice addressed by s in the current backing store.
func (r *Region) View(s Span) []float32 {
	mem := r.cur.Load().mem
	return mem[s.Off : s.Off+s.Len : s.Off+s.Len]
}

func (r *Region) load() *store {
	return r.cur.Load()
}

// Bridge exposes the engine input and output buffers of one quantum.
type Bridge struct {
	region  *Region
	inSpan  Span
	outSpan Span

	gen    uint64
	input  []float32
	output []float32
	remaps uint64
}

// New reserves input and output buffers of quantum samples in region.
func New(region *Region, quantum int) (*Bridge, error) {
	in, err := region.Alloc(quantum)
	if err != nil {
		return nil, fmt.Errorf("bridge: allocating input buffer: %w", err)
	}
	out, err := region.Alloc(quantum)
	if err != nil {
		return nil, fmt.Errorf("bridge: allocating output buffer: %w", err)
	}

	b := &Bridge{region: region, inSpan: in, outSpan: out}
	b.derive(region.load())
	return b, nil
}

func (b *Bridge) derive(st *store) {
	b.input = st.mem[b.inSpan.Off : b.inSpan.Off+b.inSpan.Len : b.inSpan.Off+b.inSpan.Len]
	b.output = st.mem[b.outSpan.Off : b.outSpan.Off+b.outSpan.Len : b.outSpan.Off+b.outSpan.Len]
	b.gen = st.gen
}

// Views returns the input and output buffers, re-deriving them first if the
// region relocated since the last call.
func (b *Bridge) Views() (in, out []float32) {
	if st := b.region.load(); st.gen != b.gen {
		b.derive(st)
		b.remaps++
	}
	return b.input, b.output
}

// Remaps returns how many relocations were observed.
func (b *Bridge) Remaps() uint64 {
	return b.remaps
}

// Region returns the region backing the bridge.
func (b *Bridge) Region() *Region {
	return b.region
}
