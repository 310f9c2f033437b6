package thumbnail

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))))
	return buf.Bytes()
}

func TestGenerateDownscalesLargeImage(t *testing.T) {
	thumb, err := Generate(encodePNG(t, 2048, 1024))
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)

	assert.Equal(t, 512, decoded.Bounds().Dx())
	assert.Equal(t, 256, decoded.Bounds().Dy())
}

func TestGeneratePortraitKeepsAspect(t *testing.T) {
	thumb, err := Generate(encodePNG(t, 600, 1200))
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)

	assert.Equal(t, 256, decoded.Bounds().Dx())
	assert.Equal(t, 512, decoded.Bounds().Dy())
}

func TestGenerateDoesNotUpscaleSmallImage(t *testing.T) {
	thumb, err := Generate(encodePNG(t, 100, 80))
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)

	assert.Equal(t, 100, decoded.Bounds().Dx())
	assert.Equal(t, 80, decoded.Bounds().Dy())
}

func TestGenerateRejectsGarbage(t *testing.T) {
	_, err := Generate([]byte("not an image"))
	assert.Error(t, err)
}
