// Package storage keeps uploaded post images in a gocloud.dev blob bucket:
// a directory on disk in production (fileblob), memory in tests (memblob).
package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/rs/xid"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/sakif/blog-platform/internal/apperror"
)

// URLPrefix is where the HTTP layer serves stored images from.
const URLPrefix = "/api/blog/uploads/"

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// OpenBucket opens the on-disk bucket rooted at dir, creating the directory
// if needed. An empty dir gives an in-memory bucket.
func OpenBucket(dir string) (*blob.Bucket, error) {
	if dir == "" {
		return memblob.OpenBucket(nil), nil
	}
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
	if err != nil {
		return nil, fmt.Errorf("storage: opening bucket %s: %w", dir, err)
	}
	return bucket, nil
}

// Images stores and serves post images.
type Images struct {
	bucket   *blob.Bucket
	maxBytes int64
}

func NewImages(bucket *blob.Bucket, maxBytes int64) *Images {
	return &Images{bucket: bucket, maxBytes: maxBytes}
}

// Image is an open stored image. Close it when done.
type Image struct {
	io.ReadCloser
	ContentType string
	Size        int64
	ModTime     time.Time
}

// Save stores the image read from r under a fresh key derived from the
// uploaded filename and returns the key. Only image files up to the size
// limit are accepted.
func (s *Images) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	name, err := sanitizeFilename(filename)
	if err != nil {
		return "", err
	}

	// Sniff the content instead of trusting the extension alone.
	br := bufio.NewReaderSize(io.LimitReader(r, s.maxBytes+1), 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("storage: reading upload: %w", err)
	}
	if len(head) == 0 {
		return "", apperror.ValidationFailed("image", "image file is empty")
	}
	contentType := http.DetectContentType(head)
	if !strings.HasPrefix(contentType, "image/") {
		return "", apperror.ValidationFailed("image", "uploaded file is not an image")
	}

	key := xid.New().String() + "_" + name

	// Cancelling the writer's context before Close aborts the write, so a
	// rejected upload leaves nothing behind.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(wctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("storage: opening writer for %s: %w", key, err)
	}

	n, err := io.Copy(w, br)
	if err == nil && n > s.maxBytes {
		err = apperror.ValidationFailed("image",
			fmt.Sprintf("image must be %d bytes or smaller", s.maxBytes))
	}
	if err != nil {
		cancel()
		_ = w.Close()
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return "", err
		}
		return "", fmt.Errorf("storage: writing %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: closing writer for %s: %w", key, err)
	}
	return key, nil
}

// Open returns the stored image for key, or a not-found error.
func (s *Images) Open(ctx context.Context, key string) (*Image, error) {
	if !validKey(key) {
		return nil, apperror.NotFound("image", key)
	}

	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, apperror.NotFound("image", key)
		}
		return nil, fmt.Errorf("storage: opening %s: %w", key, err)
	}

	return &Image{
		ReadCloser:  r,
		ContentType: r.ContentType(),
		Size:        r.Size(),
		ModTime:     r.ModTime(),
	}, nil
}

// Delete removes the image. Deleting a missing image is not an error.
func (s *Images) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return nil
	}
	if err := s.bucket.Delete(ctx, key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("storage: deleting %s: %w", key, err)
	}
	return nil
}

func (s *Images) Close() error {
	return s.bucket.Close()
}

// URLFor is the public URL of the image stored under key.
func URLFor(key string) string {
	return URLPrefix + key
}

// KeyFromURL reverses URLFor. ok is false for URLs that do not point at a
// stored image.
func KeyFromURL(url string) (key string, ok bool) {
	key, ok = strings.CutPrefix(url, URLPrefix)
	return key, ok && validKey(key)
}

// sanitizeFilename keeps the base name of an uploaded file, replacing every
// stem character outside [A-Za-z0-9_-], and rejects non-image extensions.
func sanitizeFilename(filename string) (string, error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	ext := strings.ToLower(path.Ext(base))
	if !allowedExtensions[ext] {
		return "", apperror.ValidationFailed("image",
			"image must be one of: png, jpg, jpeg, gif, webp")
	}

	stem := strings.TrimSuffix(base, path.Ext(base))
	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		b.WriteString("image")
	}
	return b.String() + ext, nil
}

func validKey(key string) bool {
	return key != "" &&
		!strings.ContainsAny(key, `/\`) &&
		!strings.Contains(key, "..")
}
