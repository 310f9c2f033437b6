package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/anthonynsimon/bild/transform"
	_ "golang.org/x/image/webp"
)

const (
	maxEdge     = 512
	jpegQuality = 80
)

// Generate produces a JPEG thumbnail no larger than 512px on its longest
// edge, preserving aspect ratio. Outputs already within bounds are re-encoded
// rather than upscaled.
func Generate(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode output image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width > maxEdge || height > maxEdge {
		if width >= height {
			height = height * maxEdge / width
			width = maxEdge
		} else {
			width = width * maxEdge / height
			height = maxEdge
		}
		img = transform.Resize(img, width, height, transform.Linear)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return buf.Bytes(), nil
}
