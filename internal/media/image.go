package media

import (
	"errors"
	"fmt"
	"image"
	"os"

	"gif-converter/internal/logging"

	// Output header decoders
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// ErrInvalidOutput is returned when an encoded file does not decode as the
// expected container.
var ErrInvalidOutput = errors.New("output is not a valid image")

// ImageDimensions holds image width and height.
type ImageDimensions struct {
	Width  int
	Height int
}

// VerifyFrame fully decodes one extracted frame to confirm the extractor wrote
// a real image rather than an empty or truncated file.
func VerifyFrame(path string) (*ImageDimensions, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("extracted frame is not a valid image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("extracted frame has zero dimensions")
	}

	return &ImageDimensions{Width: b.Dx(), Height: b.Dy()}, nil
}

// OutputInfo reads the header of an encoded WebP or PNG file.
func OutputInfo(path string) (*ImageDimensions, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close output file %s: %v", path, err)
		}
	}()

	config, format, err := image.DecodeConfig(file)
	if err != nil {
		return nil, "", err
	}

	return &ImageDimensions{
		Width:  config.Width,
		Height: config.Height,
	}, format, nil
}

// VerifyOutput checks that path decodes as container ("webp" or "png") with
// non-zero dimensions.
func VerifyOutput(path, container string) (*ImageDimensions, error) {
	dims, format, err := OutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}
	if format != container {
		return nil, fmt.Errorf("%w: decoded as %s, want %s", ErrInvalidOutput, format, container)
	}
	if dims.Width <= 0 || dims.Height <= 0 {
		return nil, fmt.Errorf("%w: zero dimensions", ErrInvalidOutput)
	}
	return dims, nil
}
