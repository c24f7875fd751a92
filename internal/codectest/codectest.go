// Package codectest installs fake ffmpeg and img2webp executables for tests
// so the conversion pipeline can run end to end without real codecs.
package codectest

import (
	"bufio"
	"bytes"
	"compress/lzw"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// Options controls how the fake tools behave.
type Options struct {
	// Frames is the number of PNG frames the fake ffmpeg writes when asked to
	// extract a numbered sequence.
	Frames int
	// FailFFmpeg and FailImg2WebP make the tool exit 1 with a diagnostic.
	FailFFmpeg   bool
	FailImg2WebP bool
	// NoOutput makes both tools exit 0 without writing their output file.
	NoOutput bool
	// EmptyOutput makes both tools write a zero-byte output file.
	EmptyOutput bool
	// GarbageOutput makes both tools write bytes that are not an image.
	GarbageOutput bool
	// Sleep is passed to sleep(1) before the tool does anything.
	Sleep string
}

// Tools are the installed fake binaries.
type Tools struct {
	Dir      string
	FFmpeg   string
	Img2WebP string
	logPath  string
}

// Install writes the fake tools into a temp directory.
func Install(t testing.TB, opts Options) *Tools {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake codec scripts require a POSIX shell")
	}

	dir := t.TempDir()
	tools := &Tools{
		Dir:      dir,
		FFmpeg:   filepath.Join(dir, "ffmpeg"),
		Img2WebP: filepath.Join(dir, "img2webp"),
		logPath:  filepath.Join(dir, "calls.log"),
	}

	framePNG := filepath.Join(dir, "frame.png")
	WritePNG(t, framePNG, 8, 8)

	outputWebP := filepath.Join(dir, "output.webp")
	if err := os.WriteFile(outputWebP, WebPBytes(8, 8), 0o644); err != nil {
		t.Fatalf("write webp fixture: %v", err)
	}

	writeScript(t, tools.FFmpeg, ffmpegScript(tools.logPath, framePNG, outputWebP, opts))
	writeScript(t, tools.Img2WebP, img2webpScript(tools.logPath, outputWebP, opts))

	return tools
}

// PrependPath puts the fake tools first on PATH for the rest of the test.
func (tt *Tools) PrependPath(t testing.TB) {
	t.Helper()
	t.Setenv("PATH", tt.Dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// Calls returns one line per tool invocation: the tool name followed by its
// arguments.
func (tt *Tools) Calls(t testing.TB) []string {
	t.Helper()

	f, err := os.Open(tt.logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("open call log: %v", err)
	}
	defer f.Close()

	var calls []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		calls = append(calls, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("read call log: %v", err)
	}
	return calls
}

func writeScript(t testing.TB, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func preamble(name, logPath string, opts Options, fail bool) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "echo \"%s $*\" >> '%s'\n", name, logPath)
	if opts.Sleep != "" {
		fmt.Fprintf(&b, "sleep %s\n", opts.Sleep)
	}
	if fail {
		fmt.Fprintf(&b, "echo '%s: Invalid data found when processing input' >&2\nexit 1\n", name)
	}
	return b.String()
}

// writeOutput copies fixture to target unless opts ask for a broken output.
func writeOutput(target, fixture string, opts Options) string {
	switch {
	case opts.NoOutput:
		return ":"
	case opts.EmptyOutput:
		return ": > " + target
	case opts.GarbageOutput:
		return "printf 'NOT AN IMAGE' > " + target
	default:
		return fmt.Sprintf("cp '%s' %s", fixture, target)
	}
}

// ffmpegScript extracts Frames copies of framePNG for a numbered output
// pattern, and otherwise writes a PNG for .png targets and a WebP for the rest.
func ffmpegScript(logPath, framePNG, outputWebP string, opts Options) string {
	var b strings.Builder
	b.WriteString(preamble("ffmpeg", logPath, opts, opts.FailFFmpeg))
	b.WriteString("last=\"\"\nfor a in \"$@\"; do last=\"$a\"; done\n")
	b.WriteString("case \"$last\" in\n*%0*d*)\n")
	fmt.Fprintf(&b, "  i=1\n  while [ $i -le %d ]; do\n", opts.Frames)
	fmt.Fprintf(&b, "    cp '%s' \"$(printf \"$last\" $i)\"\n", framePNG)
	b.WriteString("    i=$((i+1))\n  done\n  ;;\n*.png)\n")
	fmt.Fprintf(&b, "  %s\n", writeOutput(`"$last"`, framePNG, opts))
	b.WriteString("  ;;\n*)\n")
	fmt.Fprintf(&b, "  %s\n", writeOutput(`"$last"`, outputWebP, opts))
	b.WriteString("  ;;\nesac\n")
	return b.String()
}

func img2webpScript(logPath, outputWebP string, opts Options) string {
	var b strings.Builder
	b.WriteString(preamble("img2webp", logPath, opts, opts.FailImg2WebP))
	b.WriteString("out=\"\"\nprev=\"\"\n")
	b.WriteString("for a in \"$@\"; do\n  if [ \"$prev\" = \"-o\" ]; then out=\"$a\"; fi\n  prev=\"$a\"\ndone\n")
	fmt.Fprintf(&b, "%s\n", writeOutput(`"$out"`, outputWebP, opts))
	return b.String()
}

// WebPBytes returns a minimal lossless WebP whose header declares the given
// dimensions. Only the header is meaningful; the pixel data is not.
func WebPBytes(width, height int) []byte {
	bits := uint32(width-1)&0x3fff | (uint32(height-1)&0x3fff)<<14

	// VP8L chunk: signature byte, 14-bit width-1, 14-bit height-1, alpha and
	// version bits, padded to an even length.
	vp8l := []byte{0x2f, byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24), 0}

	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(4+8+len(vp8l)))
	b.WriteString("WEBP")
	b.WriteString("VP8L")
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(vp8l)))
	b.Write(vp8l)
	return b.Bytes()
}

// WriteOverhangingGIF writes a two-frame 4x4 GIF whose second frame is 8
// pixels wide. ffmpeg accepts such files; image/gif's full decoder does not.
func WriteOverhangingGIF(t testing.TB, path string) {
	t.Helper()

	var b bytes.Buffer
	b.WriteString("GIF89a")
	// Logical screen 4x4 with a two-entry global color table.
	b.Write([]byte{4, 0, 4, 0, 0x80, 0, 0})
	b.Write([]byte{0, 0, 0, 0xff, 0xff, 0xff})

	writeFrame := func(width, height int) {
		b.Write([]byte{0x2c, 0, 0, 0, 0, byte(width), 0, byte(height), 0, 0})

		var data bytes.Buffer
		lw := lzw.NewWriter(&data, lzw.LSB, 2)
		if _, err := lw.Write(make([]byte, width*height)); err != nil {
			t.Fatalf("lzw write: %v", err)
		}
		if err := lw.Close(); err != nil {
			t.Fatalf("lzw close: %v", err)
		}

		b.WriteByte(2)
		for rest := data.Bytes(); len(rest) > 0; {
			n := min(len(rest), 255)
			b.WriteByte(byte(n))
			b.Write(rest[:n])
			rest = rest[n:]
		}
		b.WriteByte(0)
	}
	writeFrame(4, 4)
	writeFrame(8, 4)
	b.WriteByte(0x3b)

	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

// WriteGIF writes an animated GIF with the given number of frames.
func WriteGIF(t testing.TB, path string, frames int) {
	t.Helper()

	anim := &gif.GIF{}
	for i := 0; i < frames; i++ {
		img := image.NewPaletted(image.Rect(0, 0, 16, 16), palette.Plan9)
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				img.SetColorIndex(x, y, uint8((x*y+i*32)%256))
			}
		}
		anim.Image = append(anim.Image, img)
		anim.Delay = append(anim.Delay, 10)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := gif.EncodeAll(f, anim); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
}

// GIFBytes returns the encoded bytes of an animated GIF.
func GIFBytes(t testing.TB, frames int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.gif")
	WriteGIF(t, path, frames)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// WritePNG writes an opaque RGBA PNG.
func WritePNG(t testing.TB, path string, width, height int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 16), 200, 255})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}
