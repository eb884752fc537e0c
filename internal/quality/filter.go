package quality

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"mime"
	"net/url"
	"path"
	"slices"
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/nao1215/boxhunt/internal/model"
)

// ErrRejected is matched by every *RejectedError.
var ErrRejected = errors.New("quality rejected")

// RejectedError carries the reason a candidate failed a quality check.
type RejectedError struct {
	Reason model.RejectReason
	Detail string
}

// Error implements error.
func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("quality rejected: %s", e.Reason)
	}
	return fmt.Sprintf("quality rejected: %s: %s", e.Reason, e.Detail)
}

// Is makes errors.Is(err, ErrRejected) hold.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// Verdict is the result of a quality check.
type Verdict struct {
	Accepted bool
	Reason   model.RejectReason
	Detail   string
}

// Err returns nil for an accepted verdict and a *RejectedError otherwise.
func (v Verdict) Err() error {
	if v.Accepted {
		return nil
	}
	return &RejectedError{Reason: v.Reason, Detail: v.Detail}
}

func accept() Verdict {
	return Verdict{Accepted: true}
}

func reject(reason model.RejectReason, format string, args ...any) Verdict {
	return Verdict{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Inspection is what EvaluateContent learned about image content.
type Inspection struct {
	// Format is the decoder name, e.g. "jpeg" or "png".
	Format string
	Width  int
	Height int
	Size   int64
}

// Extension returns the file extension used to store the image.
func (i Inspection) Extension() string {
	return FormatExtension(i.Format)
}

// Filter holds the quality policy. Its methods are pure and safe for
// concurrent use.
type Filter struct {
	MinWidth       int
	MinHeight      int
	AllowedFormats []string
	MaxFileSize    int64

	// MaxPixels bounds width*height as declared by the image header.
	// Zero disables the check.
	MaxPixels int64
}

// DefaultMaxPixels is the pixel-count ceiling of a new Filter.
const DefaultMaxPixels = 50_000_000

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithMaxPixels sets the pixel-count ceiling.
func WithMaxPixels(n int64) FilterOption {
	return func(f *Filter) {
		f.MaxPixels = n
	}
}

// NewFilter returns a Filter with a normalised format allow-list.
func NewFilter(minWidth, minHeight int, allowedFormats []string, maxFileSize int64, opts ...FilterOption) *Filter {
	formats := make([]string, 0, len(allowedFormats))
	for _, f := range allowedFormats {
		f = canonicalFormat(f)
		if f != "" && !slices.Contains(formats, f) {
			formats = append(formats, f)
		}
	}
	f := &Filter{
		MinWidth:       minWidth,
		MinHeight:      minHeight,
		AllowedFormats: formats,
		MaxFileSize:    maxFileSize,
		MaxPixels:      DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Allows reports whether the format (or extension) is in the allow-list.
func (f *Filter) Allows(format string) bool {
	c := canonicalFormat(format)
	return slices.ContainsFunc(f.AllowedFormats, func(a string) bool {
		return canonicalFormat(a) == c
	})
}

// EvaluateDeclared judges a candidate from its metadata only. It never
// touches the network: dimensions are checked only when the source
// declared both, and the format only when the URL has a known image
// extension.
func (f *Filter) EvaluateDeclared(c model.ImageCandidate) Verdict {
	if c.HasDeclaredDimensions() && (c.Width < f.MinWidth || c.Height < f.MinHeight) {
		return reject(model.RejectBelowMinDimensions, "declared %dx%d, minimum %dx%d", c.Width, c.Height, f.MinWidth, f.MinHeight)
	}

	if ext := URLExtension(c.URL); ext != "" && !f.Allows(ext) {
		return reject(model.RejectDisallowedFormat, "url extension %q", ext)
	}

	return accept()
}

// EvaluateContent judges downloaded content: size ceiling, declared MIME
// type, decodability, pixel count, sniffed format and true dimensions, in
// that order. Only the image header is decoded.
func (f *Filter) EvaluateContent(data []byte, contentType string) (Inspection, Verdict) {
	insp := Inspection{Size: int64(len(data))}

	if f.MaxFileSize > 0 && insp.Size > f.MaxFileSize {
		return insp, reject(model.RejectOversizeFile, "%d bytes, maximum %d", insp.Size, f.MaxFileSize)
	}

	if format := mimeFormat(contentType); format != "" && !f.Allows(format) {
		return insp, reject(model.RejectDisallowedFormat, "content type %q", contentType)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return insp, reject(model.RejectCorruptImage, "%v", err)
	}
	insp.Format = format
	insp.Width = cfg.Width
	insp.Height = cfg.Height

	if pixels := int64(cfg.Width) * int64(cfg.Height); f.MaxPixels > 0 && pixels > f.MaxPixels {
		return insp, reject(model.RejectOversizeFile, "%dx%d is %d pixels, maximum %d", cfg.Width, cfg.Height, pixels, f.MaxPixels)
	}

	if !f.Allows(format) {
		return insp, reject(model.RejectDisallowedFormat, "format %q", format)
	}

	if cfg.Width < f.MinWidth || cfg.Height < f.MinHeight {
		return insp, reject(model.RejectBelowMinDimensions, "%dx%d, minimum %dx%d", cfg.Width, cfg.Height, f.MinWidth, f.MinHeight)
	}

	return insp, accept()
}

// knownImageExtensions are the extensions recognised as image formats.
var knownImageExtensions = []string{
	"jpg", "jpeg", "png", "gif", "webp", "bmp", "svg", "tif", "tiff", "avif", "heic", "heif", "ico",
}

// IsImageExtension reports whether ext names an image format.
func IsImageExtension(ext string) bool {
	return slices.Contains(knownImageExtensions, strings.ToLower(strings.TrimPrefix(ext, ".")))
}

// URLExtension returns the lower-case image extension of a URL path, or ""
// when the path has no recognised image extension.
func URLExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if !IsImageExtension(ext) {
		return ""
	}
	return ext
}

// FormatExtension maps a decoder format name to a file extension.
func FormatExtension(format string) string {
	switch c := canonicalFormat(format); c {
	case "jpeg":
		return "jpg"
	case "":
		return "bin"
	default:
		return c
	}
}

func canonicalFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(format, ".")))
	switch f {
	case "jpg", "jpe", "pjpeg":
		return "jpeg"
	case "tif":
		return "tiff"
	case "svg+xml":
		return "svg"
	case "x-ms-bmp":
		return "bmp"
	default:
		return f
	}
}

// mimeFormat returns the canonical format named by an image/* content type.
func mimeFormat(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	sub, ok := strings.CutPrefix(mediaType, "image/")
	if !ok {
		return ""
	}
	return canonicalFormat(sub)
}
