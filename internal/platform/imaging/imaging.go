// Package imaging prepares deck photos for the vision model: format
// detection, quality floor, EXIF orientation, aspect-preserving downsampling
// and re-encoding.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // GIF decoder
	"image/jpeg"
	_ "image/png" // PNG decoder

	"github.com/jdeng/goheif"
	_ "golang.org/x/image/bmp" // BMP decoder
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // TIFF decoder
	_ "golang.org/x/image/webp" // WebP decoder
)

const (
	DefaultMaxDimension = 2048
	DefaultMinShortSide = 480
	DefaultJPEGQuality  = 95
	// DefaultMaxPixels は展開前に許容する画素数の上限です（48MPのスマートフォン写真が収まる値）。
	DefaultMaxPixels = 50_000_000
)

var (
	// ErrUnsupportedFormat is returned when no decoder recognizes the container.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrUndecodable is returned when the bytes cannot be decoded as an image.
	ErrUndecodable = errors.New("image could not be decoded")
	// ErrTooSmall is returned when the short side falls below the quality floor.
	ErrTooSmall = errors.New("image resolution below quality floor")
	// ErrTooLarge is returned when the declared dimensions exceed MaxPixels.
	ErrTooLarge = errors.New("image dimensions exceed pixel limit")
)

// Options controls Prepare. Zero fields take the defaults above.
type Options struct {
	MaxDimension int // long side limit in pixels
	MinShortSide int // quality floor in pixels, checked before and after resizing
	JPEGQuality  int // 1..100
	MaxPixels    int // width*height limit checked before the full decode
}

func (o Options) withDefaults() Options {
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.MinShortSide <= 0 {
		o.MinShortSide = DefaultMinShortSide
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = DefaultJPEGQuality
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = DefaultMaxPixels
	}
	return o
}

// Prepared is an image ready to be sent to the vision model.
type Prepared struct {
	Data           []byte
	MIMEType       string
	Format         string // decoder name: jpeg, png, gif, bmp, tiff, webp, heic
	Width          int
	Height         int
	OriginalWidth  int
	OriginalHeight int
	Orientation    int // EXIF orientation applied, 1 when upright
	Resized        bool
}

// decoder abstracts the two decode paths: the image registry and HEIC.
type decoder struct {
	config func() (image.Config, string, error)
	decode func() (image.Image, error)
	exif   func() []byte // raw EXIF or a JPEG carrying it, nil when absent
}

func newDecoder(data []byte) decoder {
	if isHEIF(data) {
		return decoder{
			config: func() (cfg image.Config, format string, err error) {
				defer recoverInto(&err)
				cfg, err = goheif.DecodeConfig(bytes.NewReader(data))
				return cfg, "heic", err
			},
			decode: func() (img image.Image, err error) {
				defer recoverInto(&err)
				return goheif.Decode(bytes.NewReader(data))
			},
			exif: func() (raw []byte) {
				defer func() {
					if recover() != nil {
						raw = nil
					}
				}()
				raw, err := goheif.ExtractExif(bytes.NewReader(data))
				if err != nil {
					return nil
				}
				return raw
			},
		}
	}
	return decoder{
		config: func() (image.Config, string, error) { return image.DecodeConfig(bytes.NewReader(data)) },
		decode: func() (image.Image, error) {
			img, _, err := image.Decode(bytes.NewReader(data))
			return img, err
		},
		exif: func() []byte {
			if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
				return nil
			}
			return data
		},
	}
}

// recoverInto turns a panic in the HEIF container parser into an error.
func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("heif parser: %v", r)
	}
}

// Prepare validates and, when needed, rotates and downsamples data. Upright
// JPEG and PNG inputs within the size limit are passed through byte for
// byte; every other case is re-encoded as JPEG with the orientation baked in.
func Prepare(data []byte, opts Options) (Prepared, error) {
	opts = opts.withDefaults()

	if len(data) == 0 {
		return Prepared{}, fmt.Errorf("%w: empty input", ErrUndecodable)
	}

	dec := newDecoder(data)
	cfg, format, err := dec.config()
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return Prepared{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return Prepared{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(opts.MaxPixels) {
		return Prepared{}, fmt.Errorf("%w: %dx%d, limit %d pixels", ErrTooLarge, cfg.Width, cfg.Height, opts.MaxPixels)
	}
	if shortSide(cfg.Width, cfg.Height) < opts.MinShortSide {
		return Prepared{}, fmt.Errorf("%w: %dx%d, need short side >= %d", ErrTooSmall, cfg.Width, cfg.Height, opts.MinShortSide)
	}

	orientation := Orientation(dec.exif())
	width, height := cfg.Width, cfg.Height
	if swapsAxes(orientation) {
		width, height = height, width
	}

	out := Prepared{
		Format:         format,
		Width:          width,
		Height:         height,
		OriginalWidth:  cfg.Width,
		OriginalHeight: cfg.Height,
		Orientation:    orientation,
	}

	w, h := FitWithin(width, height, opts.MaxDimension)
	needsResize := w != width || h != height
	if !needsResize && orientation == 1 && (format == "jpeg" || format == "png") {
		out.Data = data
		out.MIMEType = "image/" + format
		return out, nil
	}
	if shortSide(w, h) < opts.MinShortSide {
		return Prepared{}, fmt.Errorf("%w: %dx%d after resize, need short side >= %d", ErrTooSmall, w, h, opts.MinShortSide)
	}

	img, err := dec.decode()
	if err != nil {
		return Prepared{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	src := ApplyOrientation(img, orientation)
	if needsResize {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
		src = dst
		out.Resized = true
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
		return Prepared{}, fmt.Errorf("encode jpeg: %w", err)
	}
	out.Data = buf.Bytes()
	out.MIMEType = "image/jpeg"
	out.Width, out.Height = w, h
	return out, nil
}

// FitWithin scales (w, h) so that the long side is at most max, keeping the
// aspect ratio. Images already within the limit are returned unchanged.
func FitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := int(float64(h) * float64(max) / float64(w))
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := int(float64(w) * float64(max) / float64(h))
	if nw < 1 {
		nw = 1
	}
	return nw, max
}

func shortSide(w, h int) int {
	if w < h {
		return w
	}
	return h
}

// isHEIF sniffs the ISO-BMFF ftyp box used by HEIC/HEIF files.
func isHEIF(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "hevc", "hevx", "heim", "heis", "mif1", "msf1":
		return true
	}
	return false
}
