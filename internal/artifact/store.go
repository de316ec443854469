// Package artifact stores uploaded images and removes them when posts drop them.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// URLPrefix is the key space every artifact lives under.
const URLPrefix = "images/"

var (
	ErrNotFound   = errors.New("artifact not found")
	ErrInvalidKey = errors.New("invalid artifact key")
)

// Store persists artifact bytes addressed by their URL.
type Store interface {
	Name() string
	Save(ctx context.Context, key, contentType string, data []byte) (string, error)
	Open(ctx context.Context, url string) (io.ReadCloser, string, error)
	Exists(ctx context.Context, url string) (bool, error)
	Delete(ctx context.Context, url string) error
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// NewKey builds a collision-free key for an uploaded file name.
func NewKey(filename, ext string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.Trim(unsafeNameChars.ReplaceAllString(base, "-"), "-.")
	if len(base) > 64 {
		base = base[:64]
	}
	if base == "" {
		base = "image"
	}
	return fmt.Sprintf("%s%s-%s%s", URLPrefix, uuid.NewString(), base, ext)
}

// NormalizeKey maps a client supplied URL such as "/images/x.png" onto a store key.
func NormalizeKey(url string) (string, error) {
	key := strings.TrimSpace(strings.ReplaceAll(url, "\\", "/"))
	key = strings.TrimLeft(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	key = path.Clean(key)
	if !strings.HasPrefix(key, URLPrefix) || key == strings.TrimSuffix(URLPrefix, "/") {
		return "", ErrInvalidKey
	}
	return key, nil
}
