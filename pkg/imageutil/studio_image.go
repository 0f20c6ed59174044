// Package imageutil validates and normalizes uploaded logo images.
package imageutil

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"golang.org/x/image/draw"
)

var (
	ErrEmptyImage      = errors.New("image is empty")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image exceeds upload limit")
	ErrInvalidDataURI  = errors.New("invalid data URI")
)

// AllowedTypes are the accepted upload MIME types.
var AllowedTypes = []string{"image/png", "image/jpeg", "image/jpg"}

func IsAllowedType(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	for _, t := range AllowedTypes {
		if t == mime {
			return true
		}
	}
	return false
}

// Payload is an image ready for upload and AI consumption
type Payload struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// DataURI renders the payload as data:<mime>;base64,<data>.
func (p Payload) DataURI() string {
	return ToDataURI(p.Data, p.MIMEType)
}

func (p Payload) IsEmpty() bool { return len(p.Data) == 0 }

// Options controls Preprocess
type Options struct {
	MaxBytes     int // 0 = unlimited
	MaxDimension int // longest edge; 0 = keep size
	MaxPixels    int // decoded width*height; 0 = DefaultMaxPixels
	JPEGQuality  int
}

// DefaultMaxPixels caps the decoded size. Compressed size says little about it: a flat
// 12000x12000 PNG fits in a few hundred KB.
const DefaultMaxPixels = 40_000_000

func DefaultOptions() Options {
	return Options{MaxBytes: 10 * 1024 * 1024, MaxDimension: 1024, MaxPixels: DefaultMaxPixels, JPEGQuality: 85}
}

// Preprocess sniffs the type, rejects non-logo formats and downsizes images whose
// longest edge exceeds MaxDimension. Resized images are re-encoded as JPEG.
func Preprocess(data []byte, opts Options) (Payload, error) {
	if len(data) == 0 {
		return Payload{}, ErrEmptyImage
	}
	if opts.MaxBytes > 0 && len(data) > opts.MaxBytes {
		return Payload{}, fmt.Errorf("%w: %s > %s", ErrTooLarge, FormatBytes(int64(len(data))), FormatBytes(int64(opts.MaxBytes)))
	}

	mime := http.DetectContentType(data)
	if !IsAllowedType(mime) {
		return Payload{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mime)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Payload{}, fmt.Errorf("decode image header: %w", err)
	}
	maxPixels := opts.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return Payload{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	p := Payload{Data: data, MIMEType: mime, Width: cfg.Width, Height: cfg.Height}
	if opts.MaxDimension <= 0 || (cfg.Width <= opts.MaxDimension && cfg.Height <= opts.MaxDimension) {
		return p, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Payload{}, fmt.Errorf("decode image: %w", err)
	}
	w, h := FitWithin(cfg.Width, cfg.Height, opts.MaxDimension)
	out, err := resizeToJPEG(src, w, h, opts.JPEGQuality)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Data: out, MIMEType: "image/jpeg", Width: w, Height: h}, nil
}

// FitWithin scales (w, h) so the longest edge equals max, keeping the aspect ratio.
func FitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}

func resizeToJPEG(src image.Image, w, h, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha: flatten transparent logos onto white
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseDataURI decodes data:<mime>;base64,<payload>. Bare base64 is accepted as PNG.
func ParseDataURI(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", ErrEmptyImage
	}
	mime := "image/png"
	raw := s
	if strings.HasPrefix(s, "data:") {
		header, body, ok := strings.Cut(s, ",")
		if !ok {
			return nil, "", ErrInvalidDataURI
		}
		meta := strings.TrimPrefix(header, "data:")
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURI)
		}
		if m := strings.TrimSuffix(meta, ";base64"); m != "" {
			mime = m
		}
		raw = body
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return data, mime, nil
}

func ToDataURI(data []byte, mime string) string {
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Base64Size returns the decoded byte size of a base64 string or data URI.
func Base64Size(s string) int {
	if _, body, ok := strings.Cut(s, ","); ok && strings.HasPrefix(s, "data:") {
		s = body
	}
	n := len(s)
	if n == 0 {
		return 0
	}
	padding := 0
	if strings.HasSuffix(s, "==") {
		padding = 2
	} else if strings.HasSuffix(s, "=") {
		padding = 1
	}
	return n*3/4 - padding
}

// FormatBytes renders n as "0 Bytes", "512 Bytes", "1.5 KB", "2 MB".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + " " + units[i]
}
