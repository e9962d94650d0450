package imaging

import (
	"bytes"
	"image"
	"image/draw"

	"github.com/rwcarlsen/goexif/exif"
)

var exifHeader = []byte("Exif\x00\x00")

// Orientation returns the EXIF orientation (1..8) stored in raw, which may be
// a whole JPEG file, a bare EXIF block or a HEIF EXIF item. Missing or unreadable tags yield 1.
func Orientation(raw []byte) int {
	if len(raw) == 0 {
		return 1
	}
	// A leading APP1 segment (JPEG) or the 4-byte offset of a HEIF item puts
	// the header near the start; decode the TIFF body directly in that case.
	if i := bytes.Index(raw[:min(len(raw), 16)], exifHeader); i >= 0 {
		raw = raw[i+len(exifHeader):]
	}
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 1
	}
	return o
}

// swapsAxes reports whether orientation turns the image by a quarter turn.
func swapsAxes(orientation int) bool {
	return orientation >= 5 && orientation <= 8
}

// ApplyOrientation returns img transformed so that it displays upright for
// the given EXIF orientation. Orientation 1 and unknown values return img.
func ApplyOrientation(img image.Image, orientation int) image.Image {
	if orientation < 2 || orientation > 8 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	src, ok := img.(*image.RGBA)
	if !ok {
		src = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)
	}

	dw, dh := w, h
	if swapsAxes(orientation) {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	sb := src.Bounds()
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			var sx, sy int
			switch orientation {
			case 2: // mirrored
				sx, sy = w-1-x, y
			case 3: // upside down
				sx, sy = w-1-x, h-1-y
			case 4: // mirrored upside down
				sx, sy = x, h-1-y
			case 5: // transposed
				sx, sy = y, x
			case 6: // turned a quarter counterclockwise, rotate clockwise
				sx, sy = y, h-1-x
			case 7: // transversed
				sx, sy = w-1-y, h-1-x
			case 8: // turned a quarter clockwise, rotate counterclockwise
				sx, sy = w-1-y, x
			}
			dst.SetRGBA(x, y, src.RGBAAt(sb.Min.X+sx, sb.Min.Y+sy))
		}
	}
	return dst
}
