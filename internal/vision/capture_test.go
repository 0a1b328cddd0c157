package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpegBytes(payload ...byte) []byte {
	frame := []byte{0xFF, 0xD8}
	frame = append(frame, payload...)
	return append(frame, 0xFF, 0xD9)
}

func TestExtractJPEGFrame(t *testing.T) {
	buffer := jpegBytes(0x01, 0x02, 0x03)

	frame := extractJPEGFrame(&buffer)
	require.NotNil(t, frame)
	assert.Equal(t, jpegBytes(0x01, 0x02, 0x03), frame)
	assert.Empty(t, buffer)
}

func TestExtractJPEGFrameIncomplete(t *testing.T) {
	// Start marker present but no end marker yet.
	buffer := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03}

	frame := extractJPEGFrame(&buffer)
	assert.Nil(t, frame)
	assert.Len(t, buffer, 5)
}

func TestExtractJPEGFrameSkipsLeadingGarbage(t *testing.T) {
	buffer := append([]byte{0x00, 0x11, 0x22}, jpegBytes(0xAA)...)

	frame := extractJPEGFrame(&buffer)
	require.NotNil(t, frame)
	assert.Equal(t, jpegBytes(0xAA), frame)
}

func TestExtractJPEGFrameLeavesRemainder(t *testing.T) {
	buffer := append(jpegBytes(0x01), jpegBytes(0x02)...)

	first := extractJPEGFrame(&buffer)
	require.NotNil(t, first)
	assert.Equal(t, jpegBytes(0x01), first)

	second := extractJPEGFrame(&buffer)
	require.NotNil(t, second)
	assert.Equal(t, jpegBytes(0x02), second)
}

func TestExtractJPEGFrameTooShort(t *testing.T) {
	buffer := []byte{0xFF, 0xD8}
	assert.Nil(t, extractJPEGFrame(&buffer))
}
