// Package preprocess turns uploaded image bytes into the fixed-size tensor the
// fruit classifier expects.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/nfnt/resize"
)

const (
	ImageSize = 32
	Channels  = 3

	// DefaultMaxPixels bounds decoded width*height when Options.MaxPixels is 0.
	DefaultMaxPixels = 40_000_000
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrEmptyImage        = errors.New("empty image")
	ErrImageTooLarge     = errors.New("image dimensions too large")
)

// DecodeError reports bytes that could not be turned into an image.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("failed to decode image: %v", e.Err)
	}
	return fmt.Sprintf("failed to decode %s image: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ImageTensor holds one RGB image in NHWC order, shape (1, 32, 32, 3).
type ImageTensor struct {
	Shape [4]int
	Data  []float32
}

// Len is the number of samples, 1*32*32*3.
func (t *ImageTensor) Len() int {
	return t.Shape[0] * t.Shape[1] * t.Shape[2] * t.Shape[3]
}

// At returns the sample at (batch, y, x, channel).
func (t *ImageTensor) At(n, y, x, c int) float32 {
	return t.Data[((n*t.Shape[1]+y)*t.Shape[2]+x)*t.Shape[3]+c]
}

type Options struct {
	// Normalize divides every sample by 255, mapping [0,255] to [0,1].
	Normalize bool
	// MaxPixels rejects images whose width*height exceeds it before they are
	// decoded. Zero means DefaultMaxPixels.
	MaxPixels int
}

// SupportedFormat normalizes a declared format or file extension ("JPG",
// ".png", "jpeg") and reports whether it is accepted.
func SupportedFormat(declared string) (string, bool) {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(declared), "."))
	switch f {
	case "jpg", "jpeg":
		return "jpeg", true
	case "png":
		return "png", true
	}
	return f, false
}

// Preprocess decodes raw in memory and produces the classifier input tensor.
func Preprocess(raw []byte, declaredFormat string, opts Options) (*ImageTensor, error) {
	format, ok := SupportedFormat(declaredFormat)
	if !ok {
		return nil, &DecodeError{Format: declaredFormat, Err: ErrUnsupportedFormat}
	}
	if len(raw) == 0 {
		return nil, &DecodeError{Format: format, Err: ErrEmptyImage}
	}

	maxPixels := opts.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Format: format, Err: ErrEmptyImage}
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, &DecodeError{
			Format: format,
			Err:    fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels),
		}
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &DecodeError{Format: format, Err: ErrEmptyImage}
	}

	rgb := toRGB(img)
	resized := resize.Resize(ImageSize, ImageSize, rgb, resize.Bicubic)

	return toTensor(resized, opts), nil
}

// toRGB drops alpha using straight (non-premultiplied) colour values and
// returns an opaque image, so grayscale, paletted and RGBA sources all end up
// with the same three channels.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return out
}

func toTensor(img image.Image, opts Options) *ImageTensor {
	t := &ImageTensor{
		Shape: [4]int{1, ImageSize, ImageSize, Channels},
		Data:  make([]float32, ImageSize*ImageSize*Channels),
	}

	scale := float32(1)
	if opts.Normalize {
		scale = 1.0 / 255.0
	}

	b := img.Bounds()
	i := 0
	for y := 0; y < ImageSize; y++ {
		for x := 0; x < ImageSize; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			t.Data[i] = float32(r>>8) * scale
			t.Data[i+1] = float32(g>>8) * scale
			t.Data[i+2] = float32(bl>>8) * scale
			i += Channels
		}
	}
	return t
}
