package media

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"socialhub/internal/common"
	"socialhub/internal/log"
	"socialhub/internal/metrics"
	"socialhub/pkg/models"
)

const (
	MiB = 1 << 20

	DefaultMaxFiles     = 10
	DefaultMaxImageSize = 10 * MiB
	DefaultMaxVideoSize = 100 * MiB
	DefaultMaxFileSize  = 25 * MiB
)

type Limits struct {
	MaxFiles     int
	MaxImageSize int64
	MaxVideoSize int64
	MaxFileSize  int64
}

func DefaultLimits() Limits {
	return Limits{
		MaxFiles:     DefaultMaxFiles,
		MaxImageSize: DefaultMaxImageSize,
		MaxVideoSize: DefaultMaxVideoSize,
		MaxFileSize:  DefaultMaxFileSize,
	}
}

func (l Limits) maxSize(kind models.MediaKind) int64 {
	switch kind {
	case models.MediaImage:
		return l.MaxImageSize
	case models.MediaVideo:
		return l.MaxVideoSize
	default:
		return l.MaxFileSize
	}
}

// Uploader validates uploads, stores them and releases them again.
type Uploader struct {
	store  Storage
	limits Limits
}

func NewUploader(store Storage, limits Limits) *Uploader {
	return &Uploader{store: store, limits: limits}
}

// File is one uploaded part.
type File struct {
	Name string
	Size int64
	Open func() (io.ReadSeekCloser, error)
}

// FromMultipart adapts multipart file headers.
func FromMultipart(headers ...*multipart.FileHeader) []File {
	files := make([]File, 0, len(headers))
	for _, h := range headers {
		h := h
		files = append(files, File{
			Name: h.Filename,
			Size: h.Size,
			Open: func() (io.ReadSeekCloser, error) { return h.Open() },
		})
	}
	return files
}

// KindOf maps a sniffed MIME type to a media kind.
func KindOf(contentType string) models.MediaKind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.MediaImage
	case strings.HasPrefix(contentType, "video/"):
		return models.MediaVideo
	default:
		return models.MediaFile
	}
}

// SaveAll stores every file under prefix. field names the form field for
// validation errors; allowed restricts the accepted kinds. If file k fails,
// files 0..k-1 are deleted again before the error is returned.
func (u *Uploader) SaveAll(ctx context.Context, field, prefix string, files []File, allowed ...models.MediaKind) ([]models.Media, error) {
	if len(files) > u.limits.MaxFiles {
		return nil, common.Invalid(field, fmt.Sprintf("at most %d files allowed", u.limits.MaxFiles))
	}
	saved := make([]models.Media, 0, len(files))
	for _, f := range files {
		m, err := u.Save(ctx, field, prefix, f, allowed...)
		if err != nil {
			u.Release(ctx, saved...)
			return nil, err
		}
		saved = append(saved, *m)
	}
	return saved, nil
}

// Save stores a single file.
func (u *Uploader) Save(ctx context.Context, field, prefix string, f File, allowed ...models.MediaKind) (*models.Media, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", f.Name, err)
	}
	defer rc.Close()

	mt, err := mimetype.DetectReader(rc)
	if err != nil {
		return nil, fmt.Errorf("detect type of %s: %w", f.Name, err)
	}
	if _, err := rc.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	contentType := mt.String()
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	kind := KindOf(contentType)
	if len(allowed) > 0 && !containsKind(allowed, kind) {
		return nil, common.Invalid(field, fmt.Sprintf("%s: unsupported file type %s", f.Name, contentType))
	}
	if limit := u.limits.maxSize(kind); f.Size > limit {
		return nil, common.Invalid(field, fmt.Sprintf("%s: %s exceeds %d MiB", f.Name, kind, limit/MiB))
	}

	key := objectKey(prefix, mt.Extension())
	url, err := u.store.Put(ctx, key, contentType, rc, f.Size)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", f.Name, err)
	}
	metrics.MediaUploadedBytes.WithLabelValues(string(kind)).Add(float64(f.Size))
	return &models.Media{Key: key, URL: url, Kind: kind, ContentType: contentType, Size: f.Size}, nil
}

// Release deletes stored objects, logging failures.
func (u *Uploader) Release(ctx context.Context, items ...models.Media) {
	logger := log.WithComponent("media")
	for _, m := range items {
		if err := u.store.Delete(ctx, m.Key); err != nil {
			logger.Warn().Err(err).Str("key", m.Key).Msg("failed to release media")
		}
	}
}

func objectKey(prefix, ext string) string {
	d := time.Now().UTC()
	return path.Join(prefix, fmt.Sprintf("%d/%02d", d.Year(), d.Month()), common.NewID()+ext)
}

func containsKind(kinds []models.MediaKind, k models.MediaKind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}
