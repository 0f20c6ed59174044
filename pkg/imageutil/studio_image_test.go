package imageutil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: 0x11, G: 0x22, B: 0x33, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// pngHeader is a PNG cut off after IHDR: enough for DecodeConfig, not for Decode.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 17)
	copy(ihdr, "IHDR")
	binary.BigEndian.PutUint32(ihdr[4:], w)
	binary.BigEndian.PutUint32(ihdr[8:], h)
	ihdr[12] = 8 // bit depth, grayscale

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(ihdr)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(ihdr))
	return buf.Bytes()
}

func TestPreprocess_KeepsSmallImage(t *testing.T) {
	data := makePNG(t, 64, 32)

	p, err := Preprocess(data, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", p.MIMEType)
	}
	if !bytes.Equal(p.Data, data) {
		t.Error("small image should be passed through untouched")
	}
	if p.Width != 64 || p.Height != 32 {
		t.Errorf("size = %dx%d, want 64x32", p.Width, p.Height)
	}
}

func TestPreprocess_DownsizesLargeImage(t *testing.T) {
	data := makePNG(t, 400, 200)

	p, err := Preprocess(data, Options{MaxDimension: 100, JPEGQuality: 85})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want image/jpeg", p.MIMEType)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(p.Data))
	if err != nil {
		t.Fatalf("output is not a jpeg: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Errorf("resized to %dx%d, want 100x50", cfg.Width, cfg.Height)
	}
}

func TestPreprocess_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		opts Options
		want error
	}{
		{"empty", nil, DefaultOptions(), ErrEmptyImage},
		{"text", []byte("hello, this is not an image"), DefaultOptions(), ErrUnsupportedType},
		{"gif", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"), DefaultOptions(), ErrUnsupportedType},
		{"too large", makePNG(t, 8, 8), Options{MaxBytes: 10}, ErrTooLarge},
		{"too many pixels", makePNG(t, 100, 100), Options{MaxPixels: 5000}, ErrTooLarge},
		{"huge header, default ceiling", pngHeader(12000, 12000), DefaultOptions(), ErrTooLarge},
		{"huge header, zero options", pngHeader(12000, 12000), Options{}, ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Preprocess(tt.data, tt.opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{2048, 1024, 1024, 1024, 512},
		{1024, 2048, 1024, 512, 1024},
		{500, 500, 1024, 500, 500},
		{3000, 1, 1024, 1024, 1},
	}
	for _, tt := range tests {
		gotW, gotH := FitWithin(tt.w, tt.h, tt.max)
		if gotW != tt.wantW || gotH != tt.wantH {
			t.Errorf("FitWithin(%d, %d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.max, gotW, gotH, tt.wantW, tt.wantH)
		}
	}
}

func TestDataURIRoundTrip(t *testing.T) {
	data := makePNG(t, 4, 4)
	uri := ToDataURI(data, "image/png")

	got, mime, err := ParseDataURI(uri)
	if err != nil {
		t.Fatalf("ParseDataURI: %v", err)
	}
	if mime != "image/png" || !bytes.Equal(got, data) {
		t.Errorf("round trip mismatch: mime=%q len=%d", mime, len(got))
	}
	if Base64Size(uri) != len(data) {
		t.Errorf("Base64Size = %d, want %d", Base64Size(uri), len(data))
	}
}

func TestParseDataURI_Invalid(t *testing.T) {
	for _, in := range []string{"data:image/png;base64", "data:image/png,plain", "%%%"} {
		if _, _, err := ParseDataURI(in); !errors.Is(err, ErrInvalidDataURI) {
			t.Errorf("ParseDataURI(%q) err = %v, want ErrInvalidDataURI", in, err)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:               "0 Bytes",
		512:             "512 Bytes",
		1536:            "1.5 KB",
		2 * 1024 * 1024: "2 MB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
