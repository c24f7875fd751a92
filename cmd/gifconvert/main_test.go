package main

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"gif-converter/internal/codectest"
	"gif-converter/internal/database"
)

func setToolEnv(t *testing.T, tools *codectest.Tools) {
	t.Helper()
	t.Setenv("FFMPEG_PATH", tools.FFmpeg)
	t.Setenv("IMG2WEBP_PATH", tools.Img2WebP)
	t.Setenv("WEBP_ENCODER", "")
	t.Setenv("PROCESS_TIMEOUT", "10s")
}

func TestSanitizeCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"convert", "convert"},
		{"stats-all", "stats-all"},
		{"rm -rf /", "rm_-rf__"},
		{"cmd\nnewline", "cmd_newline"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := sanitizeCommand(tt.input); got != tt.want {
			t.Errorf("sanitizeCommand(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRunUsage(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{"no args", nil, exitUsage, "", "Usage: gifconvert"},
		{"help", []string{"help"}, exitOK, "Usage: gifconvert", ""},
		{"unknown", []string{"bogus;ls"}, exitUsage, "", "Unknown command: bogus_ls"},
		{"convert without files", []string{"convert"}, exitUsage, "", "no input files"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args, &stdout, &stderr)

			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if tt.wantStdout != "" && !strings.Contains(stdout.String(), tt.wantStdout) {
				t.Errorf("stdout = %q, want it to contain %q", stdout.String(), tt.wantStdout)
			}
			if tt.wantStderr != "" && !strings.Contains(stderr.String(), tt.wantStderr) {
				t.Errorf("stderr = %q, want it to contain %q", stderr.String(), tt.wantStderr)
			}
		})
	}
}

func TestParseConvertFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantFormat  string
		wantQuality int
		wantResize  int
		wantZip     string
	}{
		{"defaults", []string{"a.gif"}, false, "webp", 80, 100, ""},
		{"apng", []string{"-format", "APNG", "-quality", "40", "a.gif"}, false, "apng", 40, 100, ""},
		{"quality clamped", []string{"-quality", "500", "a.gif"}, false, "webp", 100, 100, ""},
		{"resize", []string{"-resize", "50", "a.gif"}, false, "webp", 80, 50, ""},
		{"zip extension added", []string{"-zip", "out", "a.gif"}, false, "webp", 80, 100, "out.zip"},
		{"zip extension kept", []string{"-zip", "out.zip", "a.gif"}, false, "webp", 80, 100, "out.zip"},
		{"unknown format", []string{"-format", "avif", "a.gif"}, true, "", 0, 0, ""},
		{"no files", []string{"-format", "webp"}, true, "", 0, 0, ""},
		{"bad flag", []string{"-nope", "a.gif"}, true, "", 0, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			flags, err := parseConvertFlags(tt.args, &stderr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseConvertFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			opts := flags.options()
			if string(opts.Format) != tt.wantFormat {
				t.Errorf("Format = %q, want %q", opts.Format, tt.wantFormat)
			}
			if opts.Quality != tt.wantQuality {
				t.Errorf("Quality = %d, want %d", opts.Quality, tt.wantQuality)
			}
			if opts.ResizePercent != tt.wantResize {
				t.Errorf("ResizePercent = %d, want %d", opts.ResizePercent, tt.wantResize)
			}
			if flags.zipName != tt.wantZip {
				t.Errorf("zipName = %q, want %q", flags.zipName, tt.wantZip)
			}
		})
	}
}

func TestRunConvert(t *testing.T) {
	tools := codectest.Install(t, codectest.Options{Frames: 3})
	setToolEnv(t, tools)

	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "converted")
	codectest.WriteGIF(t, filepath.Join(in, "cat.gif"), 3)
	codectest.WriteGIF(t, filepath.Join(in, "dog.gif"), 3)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"convert", "-out", out,
		filepath.Join(in, "cat.gif"), filepath.Join(in, "dog.gif"),
	}, &stdout, &stderr)

	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}

	for _, name := range []string{"cat.webp", "dog.webp"} {
		data, err := os.ReadFile(filepath.Join(out, name))
		if err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
		if !bytes.Equal(data, codectest.WebPBytes(8, 8)) {
			t.Errorf("%s content = %q", name, data)
		}
	}
	if got := strings.Count(stdout.String(), "\n"); got != 2 {
		t.Errorf("stdout lines = %d, want 2: %q", got, stdout.String())
	}
}

func TestRunConvertAPNG(t *testing.T) {
	tools := codectest.Install(t, codectest.Options{Frames: 3})
	setToolEnv(t, tools)

	in := t.TempDir()
	out := t.TempDir()
	codectest.WriteGIF(t, filepath.Join(in, "wave.gif"), 2)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"convert", "-format", "apng", "-out", out, filepath.Join(in, "wave.gif"),
	}, &stdout, &stderr)

	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	if _, err := os.Stat(filepath.Join(out, "wave.png")); err != nil {
		t.Errorf("expected wave.png: %v", err)
	}
}

func TestRunConvertPartialFailure(t *testing.T) {
	tools := codectest.Install(t, codectest.Options{Frames: 3})
	setToolEnv(t, tools)

	in := t.TempDir()
	out := t.TempDir()
	codectest.WriteGIF(t, filepath.Join(in, "good.gif"), 2)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"convert", "-out", out,
		filepath.Join(in, "missing.gif"), filepath.Join(in, "good.gif"),
	}, &stdout, &stderr)

	if code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
	if _, err := os.Stat(filepath.Join(out, "good.webp")); err != nil {
		t.Errorf("good.webp should still be written: %v", err)
	}
	if !strings.Contains(stderr.String(), "1 of 2 files failed") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRunConvertZip(t *testing.T) {
	tools := codectest.Install(t, codectest.Options{Frames: 3})
	setToolEnv(t, tools)

	in := t.TempDir()
	out := t.TempDir()
	for _, name := range []string{"a.gif", "b.gif", "a.gif"} {
		codectest.WriteGIF(t, filepath.Join(in, name), 2)
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"convert", "-zip", "bundle", "-out", out,
		filepath.Join(in, "a.gif"), filepath.Join(in, "b.gif"), filepath.Join(in, "a.gif"),
	}, &stdout, &stderr)

	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}

	zr, err := zip.OpenReader(filepath.Join(out, "bundle.zip"))
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)

	want := []string{"a-1.webp", "a.webp", "b.webp"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("archive entries = %v, want %v", names, want)
	}
}

func TestRunConvertZipAllFailed(t *testing.T) {
	tools := codectest.Install(t, codectest.Options{Frames: 3, FailFFmpeg: true})
	setToolEnv(t, tools)

	in := t.TempDir()
	out := t.TempDir()
	codectest.WriteGIF(t, filepath.Join(in, "a.gif"), 2)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"convert", "-zip", "bundle.zip", "-out", out, filepath.Join(in, "a.gif"),
	}, &stdout, &stderr)

	if code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
	if _, err := os.Stat(filepath.Join(out, "bundle.zip")); !os.IsNotExist(err) {
		t.Errorf("no archive should be written, stat err = %v", err)
	}
}

func TestRunCheck(t *testing.T) {
	tools := codectest.Install(t, codectest.Options{Frames: 1})

	tests := []struct {
		name     string
		img2webp string
		encoder  string
		wantCode int
		wantOut  string
	}{
		{"all present", tools.Img2WebP, "img2webp", exitOK, "img2webp  OK"},
		{"img2webp missing and required", filepath.Join(t.TempDir(), "nope"), "img2webp", exitFailure, "img2webp  MISSING"},
		{"img2webp missing with ffmpeg encoder", filepath.Join(t.TempDir(), "nope"), "ffmpeg", exitOK, "not required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FFMPEG_PATH", tools.FFmpeg)
			t.Setenv("IMG2WEBP_PATH", tt.img2webp)
			t.Setenv("WEBP_ENCODER", tt.encoder)

			var stdout, stderr bytes.Buffer
			code := run(context.Background(), []string{"check"}, &stdout, &stderr)

			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (stdout %q)", code, tt.wantCode, stdout.String())
			}
			if !strings.Contains(stdout.String(), "ffmpeg    OK") {
				t.Errorf("stdout = %q, want ffmpeg OK", stdout.String())
			}
			if !strings.Contains(stdout.String(), tt.wantOut) {
				t.Errorf("stdout = %q, want it to contain %q", stdout.String(), tt.wantOut)
			}
		})
	}
}

func TestRunStats(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATABASE_DIR", dir)

	ctx := context.Background()
	db, err := database.New(ctx, filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	records := []*database.ConversionRecord{
		{Kind: database.KindSingle, Format: "webp", Status: database.StatusSuccess, OriginalName: "a.gif", SourceBytes: 1000, OutputBytes: 400},
		{Kind: database.KindSingle, Format: "apng", Status: database.StatusError, OriginalName: "b.gif", SourceBytes: 500, Error: "boom"},
	}
	for _, rec := range records {
		if err := db.RecordConversion(ctx, rec); err != nil {
			t.Fatalf("RecordConversion() error = %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"stats"}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{"Conversions:  2 (1 succeeded, 1 failed)", "webp  1 succeeded", "apng  0 succeeded, 1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout = %q, want it to contain %q", out, want)
		}
	}
}

func TestRunStatsMissingDatabase(t *testing.T) {
	t.Setenv("DATABASE_DIR", t.TempDir())

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"stats"}, &stdout, &stderr); code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(stderr.String(), "no history database") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
