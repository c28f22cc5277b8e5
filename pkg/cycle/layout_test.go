package cycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLayoutValidate(t *testing.T) {
	require.NoError(t, DefaultLayout.Validate())
	require.Equal(t, Pattern(0xFFF), DefaultLayout.Mask())
	require.Equal(t, Pattern(0x400), DefaultLayout.Turn())
	require.Equal(t, 2, DefaultLayout.Bytes())

	for _, l := range []Layout{
		{Channels: 3, SplitA: 1, SplitB: 2},
		{Channels: 2, SplitA: 1, SplitB: 2},
		{Channels: 34, SplitA: 1, SplitB: 2},
		{Channels: 12, SplitA: 0, SplitB: 2},
		{Channels: 12, SplitA: 0x1000, SplitB: 2},
		{Channels: 12, SplitA: 1, SplitB: 0x2000},
	} {
		require.Errorf(t, l.Validate(), "%+v", l)
	}
	require.NoError(t, (&Layout{Channels: 32, SplitA: 0x55555555, SplitB: 0xAAAAAAAA}).Validate())
}

func TestLayoutFor(t *testing.T) {
	require.Equal(t, DefaultLayout, LayoutFor(12))
	l := LayoutFor(8)
	require.NoError(t, l.Validate())
	require.Equal(t, Pattern(0x55), l.SplitA)
	require.Equal(t, Pattern(0xAA), l.SplitB)
	require.Error(t, LayoutFor(5).Validate())
}

func TestLayoutReadWrite(t *testing.T) {
	image := make([]byte, 6)
	DefaultLayout.Write(image, 2, 0xA95)
	require.Equal(t, []byte{0, 0, 0x95, 0x0A, 0, 0}, image)
	require.Equal(t, Pattern(0xA95), DefaultLayout.Read(image, 2))

	image[5] = 0xFF
	require.Equal(t, Pattern(0xF00), DefaultLayout.Read(image, 4))
}
