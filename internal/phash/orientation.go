package phash

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"strconv"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// EXIF orientation values. 1 is upright; the rest describe how the stored
// pixels must be transformed to be displayed upright.
const (
	orientationNormal     = 1
	orientationFlipH      = 2
	orientationRotate180  = 3
	orientationFlipV      = 4
	orientationTranspose  = 5
	orientationRotate90   = 6
	orientationTransverse = 7
	orientationRotate270  = 8
)

// Decode decodes image content and rotates it upright according to its
// EXIF Orientation tag, so a camera JPEG and its upright re-encode hash alike.
// It returns the registered format name.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrHash, err)
	}
	return applyOrientation(img, Orientation(data)), format, nil
}

// Orientation returns the EXIF Orientation tag of encoded image content,
// or 1 when the content carries no usable EXIF data.
func Orientation(data []byte) int {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return orientationNormal
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return orientationNormal
	}

	for _, entry := range entries {
		if entry.TagName != "Orientation" {
			continue
		}
		if v, ok := orientationValue(entry.Value, entry.Formatted); ok {
			return v
		}
	}
	return orientationNormal
}

func orientationValue(value any, formatted string) (int, bool) {
	var v int
	switch typed := value.(type) {
	case []uint16:
		if len(typed) == 0 {
			return 0, false
		}
		v = int(typed[0])
	case uint16:
		v = int(typed)
	default:
		n, err := strconv.Atoi(strings.Trim(formatted, "[] "))
		if err != nil {
			return 0, false
		}
		v = n
	}
	if v < orientationNormal || v > orientationRotate270 {
		return 0, false
	}
	return v, true
}

// applyOrientation returns img transformed to upright.
func applyOrientation(img image.Image, orientation int) image.Image {
	if orientation <= orientationNormal || orientation > orientationRotate270 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	dw, dh := w, h
	if orientation >= orientationTranspose {
		dw, dh = h, w
	}
	dst := image.NewNRGBA(image.Rect(0, 0, dw, dh))

	for y := range h {
		for x := range w {
			var dx, dy int
			switch orientation {
			case orientationFlipH:
				dx, dy = w-1-x, y
			case orientationRotate180:
				dx, dy = w-1-x, h-1-y
			case orientationFlipV:
				dx, dy = x, h-1-y
			case orientationTranspose:
				dx, dy = y, x
			case orientationRotate90:
				dx, dy = h-1-y, x
			case orientationTransverse:
				dx, dy = h-1-y, w-1-x
			case orientationRotate270:
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
