// Package normalize prepares a single page image for packaging: EXIF
// orientation, spread rotation, grayscale and optional downscaling.
package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned for page bytes that no registered decoder accepts.
var ErrDecode = errors.New("decode page image")

// DefaultJPEGQuality applies when Options.JPEGQuality is unset.
const DefaultJPEGQuality = 90

// Codec is the encoding a normalized page is written with.
type Codec string

const (
	CodecJPEG Codec = "jpeg"
	CodecPNG  Codec = "png"
)

// MediaType returns the manifest media type for the codec.
func (c Codec) MediaType() string {
	if c == CodecJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Ext returns the file extension, including the dot.
func (c Codec) Ext() string {
	if c == CodecJPEG {
		return ".jpg"
	}
	return ".png"
}

// Options control encoding of normalized pages.
type Options struct {
	JPEGQuality int
	// MaxHeight downscales taller pages to this many pixels; 0 disables it.
	MaxHeight int
}

// Result is an encoded, normalized page.
type Result struct {
	Data        []byte
	Codec       Codec
	SourceCodec string
	Width       int
	Height      int
}

// Normalizer is stateless apart from its options and safe for concurrent use.
type Normalizer struct {
	opts Options
}

func New(opts Options) *Normalizer {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	if opts.MaxHeight < 0 {
		opts.MaxHeight = 0
	}
	return &Normalizer{opts: opts}
}

// Page decodes, normalizes and re-encodes one page. JPEG sources stay JPEG;
// everything else is written as PNG.
func (n *Normalizer) Page(data []byte) (Result, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	orientation := 1
	if format == "jpeg" {
		orientation = exifOrientation(data)
	}

	gray := n.Normalize(img, orientation)

	codec := CodecPNG
	if format == "jpeg" {
		codec = CodecJPEG
	}

	var buf bytes.Buffer
	switch codec {
	case CodecJPEG:
		err = jpeg.Encode(&buf, gray, &jpeg.Options{Quality: n.opts.JPEGQuality})
	default:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, gray)
	}
	if err != nil {
		return Result{}, fmt.Errorf("encode %s page: %w", codec, err)
	}

	b := gray.Bounds()
	return Result{
		Data:        buf.Bytes(),
		Codec:       codec,
		SourceCodec: format,
		Width:       b.Dx(),
		Height:      b.Dy(),
	}, nil
}

// Normalize applies the EXIF orientation, converts to grayscale, rotates
// spreads (width > height) 90° clockwise and enforces MaxHeight.
func (n *Normalizer) Normalize(img image.Image, orientation int) *image.Gray {
	gray := toGray(img)
	gray = orient(gray, orientation)
	if IsSpread(gray.Bounds()) {
		gray = rotate90(gray)
	}
	if n.opts.MaxHeight > 0 && gray.Bounds().Dy() > n.opts.MaxHeight {
		gray = scaleToHeight(gray, n.opts.MaxHeight)
	}
	return gray
}

// IsSpread reports whether bounds describe two facing pages scanned as one.
func IsSpread(b image.Rectangle) bool {
	return b.Dx() > b.Dy()
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

func scaleToHeight(src *image.Gray, height int) *image.Gray {
	b := src.Bounds()
	width := b.Dx() * height / b.Dy()
	if width < 1 {
		width = 1
	}
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
