package icmpcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuffer_ExtendAndAsBytes(t *testing.T) {
	t.Parallel()

	t.Run("concatenates across multiple extends", func(t *testing.T) {
		b := NewBufferSize(16)
		b.ExtendFromSlice([]byte{1, 2, 3})
		b.ExtendFromSlice([]byte{4, 5})
		require.Equal(t, []byte{1, 2, 3, 4, 5}, b.AsBytes())
	})

	t.Run("truncates to remaining capacity", func(t *testing.T) {
		b := NewBufferSize(4)
		n := b.ExtendFromSlice([]byte{1, 2, 3, 4, 5, 6})
		require.Equal(t, 4, n)
		require.Equal(t, []byte{1, 2, 3, 4}, b.AsBytes())

		n = b.ExtendFromSlice([]byte{7})
		require.Equal(t, 0, n)
	})

	t.Run("clear resets both cursors", func(t *testing.T) {
		b := NewBufferSize(8)
		b.ExtendFromSlice([]byte{1, 2, 3, 4})
		_, err := Read[[4]byte](b)
		require.NoError(t, err)
		b.Clear()
		require.Equal(t, 0, b.Len())
		n := b.ExtendFromSlice([]byte{9, 9})
		require.Equal(t, 2, n)
		require.Equal(t, []byte{9, 9}, b.AsBytes())
		got, err := Read[[2]byte](b)
		require.NoError(t, err)
		require.Equal(t, [2]byte{9, 9}, *got, "read cursor restarts at zero after Clear")
	})
}

func TestBuffer_Advance(t *testing.T) {
	t.Parallel()
	b := NewBufferSize(4)
	b.Advance(2)
	require.Equal(t, 2, b.Len())
	b.Advance(10)
	require.Equal(t, 4, b.Len(), "advance saturates at capacity")
}

// S3 (buffer read): extend with 6 bytes, read<[4]byte> returns the first 4
// and advances; a second read<[4]byte> fails with BufferTooSmallError{6,8}.
func TestBuffer_Read_S3(t *testing.T) {
	t.Parallel()

	b := NewBufferSize(MTU)
	b.ExtendFromSlice([]byte{0xde, 0xad, 0xbe, 0xef, 0x12, 0x34})

	first, err := Read[[4]byte](b)
	require.NoError(t, err)
	require.Equal(t, [4]byte{0xde, 0xad, 0xbe, 0xef}, *first)

	_, err = Read[[4]byte](b)
	require.Error(t, err)
	var tooSmall *BufferTooSmallError
	require.ErrorAs(t, err, &tooSmall)
	require.Equal(t, 6, tooSmall.Actual)
	require.Equal(t, 8, tooSmall.Needed)
}

func TestBuffer_Read_AliasesBackingArray(t *testing.T) {
	t.Parallel()
	b := NewBufferSize(MTU)
	b.ExtendFromSlice([]byte{1, 2, 3, 4, 5, 6, 7, 8})

	v, err := Read[[8]byte](b)
	require.NoError(t, err)
	require.Equal(t, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, *v)

	b.AsBytes()[0] = 0xff
	require.Equal(t, byte(0xff), v[0], "returned pointer must alias the buffer's backing array")
}
