package artifact

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"mime"
	"net/http"
	"strings"

	"feedline/internal/models"

	_ "image/gif" // Register GIF decoder

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultMaxUploadSizeMB = 10
	MaxDimension           = 2048
	JPEGQuality            = 82
)

// Upload is a raw image received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Image is an upload that passed validation.
type Image struct {
	ContentType string
	Ext         string
	Width       int
	Height      int
	Content     []byte
}

// Validate checks size, sniffed type and decodability of an upload.
func Validate(in Upload, maxBytes int64) (*Image, error) {
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No image provided.")
	}
	if maxBytes > 0 && int64(len(in.Content)) > maxBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", maxBytes/(1024*1024)))
	}

	detected := http.DetectContentType(in.Content)
	if !isAllowedImageMIME(detected) {
		return nil, models.NewValidationError("Invalid image type")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	sourceMime := decodedFormatToMime(format)
	if sourceMime == "" {
		return nil, models.NewValidationError("Unsupported image format")
	}
	if provided := normalizeContentType(in.ContentType); strings.HasPrefix(provided, "image/") && !isMatchingContentType(provided, sourceMime) {
		return nil, models.NewValidationError("Image content type mismatch")
	}

	return &Image{
		ContentType: sourceMime,
		Ext:         extensionFor(sourceMime),
		Width:       cfg.Width,
		Height:      cfg.Height,
		Content:     in.Content,
	}, nil
}

// Normalize downscales images larger than MaxDimension, re-encoding them as JPEG
// (PNG keeps its format so transparency survives).
func Normalize(img *Image) (*Image, error) {
	if img.Width <= MaxDimension && img.Height <= MaxDimension {
		return img, nil
	}
	decoded, _, err := image.Decode(bytes.NewReader(img.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	resized := resizeToFit(decoded, MaxDimension, MaxDimension)

	buf := bytes.NewBuffer(nil)
	out := &Image{Width: resized.Bounds().Dx(), Height: resized.Bounds().Dy()}
	if img.ContentType == "image/png" {
		err = png.Encode(buf, resized)
		out.ContentType, out.Ext = "image/png", ".png"
	} else {
		err = jpeg.Encode(buf, resized, &jpeg.Options{Quality: JPEGQuality})
		out.ContentType, out.Ext = "image/jpeg", ".jpg"
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	out.Content = buf.Bytes()
	return out, nil
}

// Stager validates uploads and writes them to a Store.
type Stager struct {
	store    Store
	maxBytes int64
}

// NewStager returns a Stager enforcing maxUploadMB (DefaultMaxUploadSizeMB when <= 0).
func NewStager(store Store, maxUploadMB int) *Stager {
	if maxUploadMB <= 0 {
		maxUploadMB = DefaultMaxUploadSizeMB
	}
	return &Stager{store: store, maxBytes: int64(maxUploadMB) * 1024 * 1024}
}

// Stage stores a validated upload and returns its URL.
func (s *Stager) Stage(ctx context.Context, in Upload) (string, error) {
	img, err := Validate(in, s.maxBytes)
	if err != nil {
		return "", err
	}
	if img, err = Normalize(img); err != nil {
		return "", err
	}
	url, err := s.store.Save(ctx, NewKey(in.Filename, img.Ext), img.ContentType, img.Content)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return url, nil
}

// Exists reports whether url names a stored artifact.
func (s *Stager) Exists(ctx context.Context, url string) (bool, error) {
	return s.store.Exists(ctx, url)
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 || (w <= maxWidth && h <= maxHeight) {
		return src
	}

	scale := float64(maxWidth) / float64(w)
	if s := float64(maxHeight) / float64(h); s < scale {
		scale = s
	}
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isMatchingContentType(provided, detected string) bool {
	p := normalizeContentType(provided)
	d := normalizeContentType(detected)
	if p == d {
		return true
	}
	return (p == "image/jpg" && d == "image/jpeg") || (p == "image/jpeg" && d == "image/jpg")
}

func decodedFormatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
