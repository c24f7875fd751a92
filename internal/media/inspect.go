package media

import (
	"bytes"
	"errors"
	"fmt"
	"image/gif"
	"io"
	"os"
	"path/filepath"
	"time"

	"gif-converter/internal/filesystem"
	"gif-converter/internal/logging"
)

// ErrInvalidSource is returned when an upload is not a readable GIF.
var ErrInvalidSource = errors.New("invalid GIF source")

// SourceInfo describes an uploaded animation. Frames is 0 when only the
// header could be read.
type SourceInfo struct {
	Frames int
	Width  int
	Height int
	Size   int64
	// Duration is the sum of frame delays. It is only known when the
	// standard library decoder was used.
	Duration time.Duration
}

// Animated reports whether the source is known to have more than one frame.
func (s *SourceInfo) Animated() bool {
	return s.Frames > 1
}

// Inspect validates that path holds a GIF and reports its shape.
func Inspect(path string) (*SourceInfo, error) {
	size, err := filesystem.RequireNonEmpty(path, filesystem.DefaultRetryConfig())
	if err != nil {
		if errors.Is(err, filesystem.ErrEmptyFile) {
			return nil, fmt.Errorf("%w: empty file", ErrInvalidSource)
		}
		return nil, err
	}

	if IsVipsAvailable() {
		info, vipsErr := inspectWithVips(path)
		if vipsErr == nil {
			info.Size = size
			logInspection(path, info, "vips")
			return info, nil
		}
		if errors.Is(vipsErr, ErrInvalidSource) {
			return nil, vipsErr
		}
		logging.Debug("vips inspection failed for %s, falling back to image/gif: %v", filepath.Base(path), vipsErr)
	}

	info, err := inspectWithGIF(path)
	if err != nil {
		return nil, err
	}
	info.Size = size
	logInspection(path, info, "image/gif")
	return info, nil
}

// gifSignatures are the only headers accepted as GIF input.
var gifSignatures = [][]byte{[]byte("GIF87a"), []byte("GIF89a")}

// inspectWithGIF checks the signature and screen descriptor and reads what
// else the standard library can. Decoding problems past the header are left
// to ffmpeg, which accepts files image/gif rejects (frames overhanging the
// logical screen, for one).
func inspectWithGIF(path string) (*SourceInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close %s: %v", path, err)
		}
	}()

	header := make([]byte, 6)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrInvalidSource)
	}
	if !isGIFSignature(header) {
		return nil, fmt.Errorf("%w: not a GIF image", ErrInvalidSource)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	g, err := gif.DecodeAll(f)
	if err == nil && len(g.Image) > 0 {
		return fullGIFInfo(g), nil
	}
	logging.Debug("image/gif could not decode %s, reading header only: %v", filepath.Base(path), err)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	cfg, err := gif.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable screen descriptor: %w", ErrInvalidSource, err)
	}
	return &SourceInfo{Width: cfg.Width, Height: cfg.Height}, nil
}

func isGIFSignature(header []byte) bool {
	for _, sig := range gifSignatures {
		if bytes.Equal(header, sig) {
			return true
		}
	}
	return false
}

func fullGIFInfo(g *gif.GIF) *SourceInfo {
	var delay int
	for _, d := range g.Delay {
		delay += d
	}

	width, height := g.Config.Width, g.Config.Height
	if width == 0 || height == 0 {
		b := g.Image[0].Bounds()
		width, height = b.Dx(), b.Dy()
	}

	return &SourceInfo{
		Frames: len(g.Image),
		Width:  width,
		Height: height,
		// GIF delays are in hundredths of a second
		Duration: time.Duration(delay) * 10 * time.Millisecond,
	}
}

func logInspection(path string, info *SourceInfo, via string) {
	logging.Debug("inspected %s via %s: %dx%d, %d frames, %d bytes",
		filepath.Base(path), via, info.Width, info.Height, info.Frames, info.Size)
}
