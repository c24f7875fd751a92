package handlers

import (
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"gif-converter/internal/encoding"
)

func TestIsGIF(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        bool
	}{
		{"image/gif", true},
		{"IMAGE/GIF", true},
		{"image/gif; charset=binary", true},
		{"image/png", false},
		{"application/octet-stream", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			fh := &multipart.FileHeader{Header: textproto.MIMEHeader{}}
			fh.Header.Set("Content-Type", tt.contentType)
			if got := isGIF(fh); got != tt.want {
				t.Errorf("isGIF(%q) = %v, want %v", tt.contentType, got, tt.want)
			}
		})
	}
}

func TestConversionOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		form url.Values
		want encoding.Options
	}{
		{
			name: "defaults",
			form: url.Values{},
			want: encoding.Options{Format: encoding.FormatWebP, Quality: 80, ResizePercent: 100},
		},
		{
			name: "explicit values",
			form: url.Values{"format": {"apng"}, "quality": {"30"}, "resize": {"25"}},
			want: encoding.Options{Format: encoding.FormatAPNG, Quality: 30, ResizePercent: 25},
		},
		{
			name: "garbage falls back",
			form: url.Values{"quality": {"high"}, "resize": {"half"}},
			want: encoding.Options{Format: encoding.FormatWebP, Quality: 80, ResizePercent: 100},
		},
		{
			name: "non-webp format selects apng",
			form: url.Values{"format": {"png"}},
			want: encoding.Options{Format: encoding.FormatAPNG, Quality: 80, ResizePercent: 100},
		},
		{
			name: "quality clamped",
			form: url.Values{"quality": {"500"}},
			want: encoding.Options{Format: encoding.FormatWebP, Quality: 100, ResizePercent: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/convert", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			if got := conversionOptions(req); got != tt.want {
				t.Errorf("conversionOptions() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
