package cycle

import "fmt"

// Pattern is a bit pattern of a digital channel group.
type Pattern uint32

// Layout describes the geometry of the running light.
type Layout struct {
	// Channels is the number of digital channels per node.
	Channels int
	// SplitA is the first alternating mask shown after the descend.
	SplitA Pattern
	// SplitB is the second alternating mask.
	SplitB Pattern
}

// DefaultLayout is the 12 channel reference layout.
var DefaultLayout = Layout{
	Channels: 12,
	SplitA:   0x0A95, // channels 1, 3, 5, 8, 10, 12
	SplitB:   0x056A, // channels 2, 4, 6, 7, 9, 11
}

// MaxChannels is the widest channel group supported.
const MaxChannels = 32

// LayoutFor returns the layout for a channel count. Counts other than
// the reference one alternate odd and even channels in the split masks.
func LayoutFor(channels int) Layout {
	if channels == DefaultLayout.Channels {
		return DefaultLayout
	}
	l := Layout{Channels: channels}
	l.SplitA = 0x55555555 & l.Mask()
	l.SplitB = 0xAAAAAAAA & l.Mask()
	return l
}

// Validate checks the layout is usable.
func (l Layout) Validate() error {
	if l.Channels < 4 || l.Channels > MaxChannels || l.Channels%2 != 0 {
		return fmt.Errorf("invalid channel count %d: must be even in [4, %d]", l.Channels, MaxChannels)
	}
	if l.SplitA == 0 || l.SplitA&^l.Mask() != 0 {
		return fmt.Errorf("split mask A %#x out of %d channels", uint32(l.SplitA), l.Channels)
	}
	if l.SplitB == 0 || l.SplitB&^l.Mask() != 0 {
		return fmt.Errorf("split mask B %#x out of %d channels", uint32(l.SplitB), l.Channels)
	}
	return nil
}

// Mask covers all channels.
func (l Layout) Mask() Pattern {
	return Pattern(uint64(1)<<uint(l.Channels) - 1)
}

// First is the pattern starting the ascend.
func (l Layout) First() Pattern {
	return 1
}

// Turn is the pattern where the ascend turns into the descend.
func (l Layout) Turn() Pattern {
	return 1 << uint(l.Channels-2)
}

// Last is the pattern ending the descend.
func (l Layout) Last() Pattern {
	return 2
}

// Bytes is the size of one channel group in a process image.
func (l Layout) Bytes() int {
	return (l.Channels + 7) / 8
}

// Read decodes the channel group at offset from a little-endian image.
func (l Layout) Read(image []byte, offset int) Pattern {
	var p Pattern
	for i := l.Bytes() - 1; i >= 0; i-- {
		p = p<<8 | Pattern(image[offset+i])
	}
	return p & l.Mask()
}

// Write encodes p into the channel group at offset.
func (l Layout) Write(image []byte, offset int, p Pattern) {
	p &= l.Mask()
	for i := 0; i < l.Bytes(); i++ {
		image[offset+i] = byte(p)
		p >>= 8
	}
}
