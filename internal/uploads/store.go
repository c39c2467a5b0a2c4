// Package uploads stores receipt and product photos on local disk.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	applog "spendshelf/internal/log"
)

// MaxFileSize is the largest accepted photo payload.
const MaxFileSize = 5 * 1024 * 1024 // 5 MiB

// Kinds of photos the store accepts, used as subdirectory names.
const (
	KindProduct = "products"
	KindReceipt = "receipts"
)

var (
	ErrUnsupportedType = errors.New("uploads: unsupported file type")
	ErrTooLarge        = errors.New("uploads: file exceeds maximum size")
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

var allowedMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Store writes validated photo payloads under a base directory and hands
// back web-style reference paths ("/uploads/products/...").
type Store struct {
	baseDir string
}

// New creates the base directory layout and returns a ready Store.
func New(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("upload directory must not be empty")
	}
	for _, kind := range []string{KindProduct, KindReceipt} {
		if err := os.MkdirAll(filepath.Join(baseDir, kind), 0o755); err != nil {
			return nil, fmt.Errorf("create upload dir: %w", err)
		}
	}
	return &Store{baseDir: baseDir}, nil
}

// BaseDir returns the directory the store writes beneath.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Save validates and writes one photo. kind selects the subdirectory,
// prefix namespaces the generated filename (e.g. "product_12"), filename
// supplies the extension and mediaType the declared content type. The
// returned reference is the path clients use to fetch the photo.
func (s *Store) Save(ctx context.Context, kind, prefix, filename, mediaType string, size int64, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] || !allowedMediaTypes[normalizeMediaType(mediaType)] {
		return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, filename, mediaType)
	}
	if size > MaxFileSize {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}

	name := fmt.Sprintf("%s_%s%s", prefix, uuid.NewString(), ext)
	onDisk := filepath.Join(s.baseDir, kind, name)

	f, err := os.Create(onDisk)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(r, MaxFileSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > MaxFileSize {
		err = fmt.Errorf("%w: %d bytes", ErrTooLarge, written)
	}
	if err != nil {
		if rmErr := os.Remove(onDisk); rmErr != nil {
			applog.Warn(ctx, "failed to remove partial upload", "path", onDisk, "error", rmErr)
		}
		return "", err
	}

	applog.Debug(ctx, "photo stored", "kind", kind, "name", name, "bytes", written)
	return path.Join("/uploads", kind, name), nil
}

// Remove deletes a previously stored photo by its reference path. Failures
// are logged and swallowed; a leftover file is acceptable.
func (s *Store) Remove(ctx context.Context, ref string) {
	trimmed := strings.TrimPrefix(ref, "/")
	trimmed = strings.TrimPrefix(trimmed, "uploads/")
	if trimmed == "" {
		return
	}

	onDisk := filepath.Join(s.baseDir, filepath.FromSlash(trimmed))
	if !strings.HasPrefix(onDisk, filepath.Clean(s.baseDir)+string(os.PathSeparator)) {
		applog.Warn(ctx, "refusing to remove photo outside upload dir", "ref", ref)
		return
	}
	if err := os.Remove(onDisk); err != nil && !errors.Is(err, os.ErrNotExist) {
		applog.Warn(ctx, "failed to remove old photo", "ref", ref, "error", err)
	}
}

func normalizeMediaType(mediaType string) string {
	base, _, found := strings.Cut(mediaType, ";")
	if !found {
		base = mediaType
	}
	return strings.ToLower(strings.TrimSpace(base))
}
