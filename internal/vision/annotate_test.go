package vision

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestDrawDetectionsProducesValidJPEG(t *testing.T) {
	frame := testJPEG(t, 160, 120)
	boxes := []BoundingBox{
		{X1: 10, Y1: 10, X2: 60, Y2: 50, Confidence: 0.87, ClassName: "person"},
	}

	annotated, err := drawDetections(frame, boxes)
	require.NoError(t, err)
	require.NotEmpty(t, annotated)

	decoded, err := jpeg.Decode(bytes.NewReader(annotated))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 160, 120), decoded.Bounds())
}

func TestDrawDetectionsClampsOutOfBoundsBoxes(t *testing.T) {
	frame := testJPEG(t, 64, 64)
	boxes := []BoundingBox{
		{X1: -20, Y1: -20, X2: 200, Y2: 200, Confidence: 0.5, ClassName: "car"},
	}

	annotated, err := drawDetections(frame, boxes)
	require.NoError(t, err)

	_, err = jpeg.Decode(bytes.NewReader(annotated))
	assert.NoError(t, err)
}

func TestDrawDetectionsRejectsGarbage(t *testing.T) {
	_, err := drawDetections([]byte("not a jpeg"), nil)
	assert.Error(t, err)
}

func TestDrawBoxSetsOutlinePixels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	c := color.RGBA{0, 255, 0, 255}

	drawBox(img, 10, 10, 40, 30, c, 2)

	assert.Equal(t, c, img.RGBAAt(20, 10)) // top edge
	assert.Equal(t, c, img.RGBAAt(10, 20)) // left edge
	assert.NotEqual(t, c, img.RGBAAt(25, 25))
}
