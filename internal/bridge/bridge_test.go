// SPDX-License-Identifier: MIT
package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeViews(t *testing.T) {
	region := NewRegion(256)
	b, err := New(region, 128)
	require.NoError(t, err)

	in, out := b.Views()
	assert.Len(t, in, 128)
	assert.Len(t, out, 128)

	in[0] = 1
	out[0] = 2
	assert.Equal(t, float32(1), region.View(Span{Off: 0, Len: 1})[0])
	assert.Equal(t, float32(2), region.View(Span{Off: 128, Len: 1})[0])
}

func TestBridgeRemapAfterGrowth(t *testing.T) {
	region := NewRegion(256)
	b, err := New(region, 128)
	require.NoError(t, err)

	in, _ := b.Views()
	in[5] = 0.5
	gen := region.Generation()

	region.Grow(4096)
	require.NotEqual(t, gen, region.Generation())

	in2, out2 := b.Views()
	assert.Equal(t, uint64(1), b.Remaps())
	assert.Equal(t, float32(0.5), in2[5], "contents survive relocation")
	assert.Len(t, out2, 128)

	// The old view no longer aliases the region.
	in[5] = 0.9
	assert.Equal(t, float32(0.5), in2[5])

	b.Views()
	assert.Equal(t, uint64(1), b.Remaps(), "no remap without relocation")
}

func TestAllocGrows(t *testing.T) {
	region := NewRegion(128)
	gen := region.Generation()

	_, err := region.Alloc(128)
	require.NoError(t, err)
	assert.Equal(t, gen, region.Generation())

	s, err := region.Alloc(64)
	require.NoError(t, err)
	assert.Equal(t, Span{Off: 128, Len: 64}, s)
	assert.GreaterOrEqual(t, region.Cap(), 192)
	assert.NotEqual(t, gen, region.Generation())
}

func TestAllocInvalid(t *testing.T) {
	_, err := NewRegion(16).Alloc(0)
	assert.True(t, errors.Is(err, ErrInvalidSize))
}

func TestViewsDoNotAllocate(t *testing.T) {
	b, err := New(NewRegion(256), 128)
	require.NoError(t, err)

	allocs := testing.AllocsPerRun(100, func() {
		b.Views()
	})
	assert.Zero(t, allocs)
}
