package arena

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAllocSequential(t *testing.T) {
	a, err := New(64)
	require.NoError(t, err)
	defer a.Close()

	for want := uint32(0); want < 10; want++ {
		got, err := a.Alloc()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, uint64(10), a.Live())
}

func TestArenaBytesRoundTrip(t *testing.T) {
	a, err := New(16)
	require.NoError(t, err)
	defer a.Close()

	s1, err := a.Alloc()
	require.NoError(t, err)
	s2, err := a.Alloc()
	require.NoError(t, err)

	buf := a.Bytes(s1)
	require.Len(t, buf, 16)
	copy(buf, []byte("0123456789abcdef"))

	// Neighbor slot stays untouched.
	assert.Equal(t, make([]byte, 16), a.Bytes(s2))
	assert.Equal(t, []byte("0123456789abcdef"), a.Bytes(s1))
}

func TestArenaFreeReusesLowestSlot(t *testing.T) {
	a, err := New(8)
	require.NoError(t, err)
	defer a.Close()

	for i := 0; i < 5; i++ {
		_, err := a.Alloc()
		require.NoError(t, err)
	}

	a.Free(1)
	a.Free(3)

	got, err := a.Alloc()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got, "lowest freed slot should be reused first")

	got, err = a.Alloc()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), got)
}

func TestArenaMaxSlots(t *testing.T) {
	a, err := New(8, WithMaxSlots(3), WithSlotsPerChunk(2))
	require.NoError(t, err)
	defer a.Close()

	for i := 0; i < 3; i++ {
		_, err := a.Alloc()
		require.NoError(t, err)
	}

	_, err = a.Alloc()
	assert.ErrorIs(t, err, ErrExhausted)

	// Freeing makes room again.
	a.Free(0)
	got, err := a.Alloc()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), got)
}

func TestArenaGrowth(t *testing.T) {
	a, err := New(8, WithSlotsPerChunk(4))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, uint64(0), a.Reserved(), "no memory reserved before first alloc")

	for i := 0; i < 9; i++ {
		_, err := a.Alloc()
		require.NoError(t, err)
	}

	s := a.Stats()
	assert.Equal(t, uint64(3), s.ActiveChunks)
	assert.Equal(t, uint64(12), s.TotalSlots)
	assert.Equal(t, uint64(9), s.LiveSlots)
	assert.Equal(t, uint64(3*4*8), s.BytesReserved)
}

func TestArenaDoubleFreePanics(t *testing.T) {
	a, err := New(8)
	require.NoError(t, err)
	defer a.Close()

	slot, err := a.Alloc()
	require.NoError(t, err)
	a.Free(slot)

	assert.Panics(t, func() { a.Free(slot) })
	assert.Panics(t, func() { a.Free(9999) })
}

func TestArenaInvalidSlotSize(t *testing.T) {
	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidSlotSize)

	_, err = New(-8)
	assert.ErrorIs(t, err, ErrInvalidSlotSize)
}

func TestArenaClosed(t *testing.T) {
	a, err := New(8)
	require.NoError(t, err)

	_, err = a.Alloc()
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "close must be idempotent")

	_, err = a.Alloc()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestArenaOffHeap(t *testing.T) {
	a, err := New(32, WithOffHeap(true), WithSlotsPerChunk(8))
	require.NoError(t, err)

	slot, err := a.Alloc()
	require.NoError(t, err)

	buf := a.Bytes(slot)
	copy(buf, []byte("off-heap"))
	assert.Equal(t, []byte("off-heap"), a.Bytes(slot)[:8])

	require.NoError(t, a.Close())
}

func TestArenaConcurrentAllocFree(t *testing.T) {
	a, err := New(8, WithSlotsPerChunk(16))
	require.NoError(t, err)
	defer a.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				slot, err := a.Alloc()
				assert.NoError(t, err)
				buf := a.Bytes(slot)
				buf[0] = byte(i)
				a.Free(slot)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(0), a.Live())
	s := a.Stats()
	assert.Equal(t, s.TotalAllocs, s.TotalFrees)
}

func TestArenaStringer(t *testing.T) {
	a, err := New(128)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Alloc()
	require.NoError(t, err)
	assert.Contains(t, a.String(), "slot=128B")
	assert.Contains(t, a.String(), "live=1/")
}
