package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialhub/internal/common"
	"socialhub/pkg/models"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type readSeekNopCloser struct{ *bytes.Reader }

func (readSeekNopCloser) Close() error { return nil }

func memFile(name string, data []byte, size int64) File {
	return File{
		Name: name,
		Size: size,
		Open: func() (io.ReadSeekCloser, error) { return readSeekNopCloser{bytes.NewReader(data)}, nil },
	}
}

// memStore records objects and fails the Put whose 1-based index is failAt.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	failAt  int
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Put(ctx context.Context, key, contentType string, body io.ReadSeeker, size int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.puts == m.failAt {
		return "", errors.New("boom")
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.objects[key] = b
	return "mem://" + key, nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func TestLocalPutDelete(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "/media/")
	require.NoError(t, err)
	ctx := context.Background()

	url, err := l.Put(ctx, "posts/a.txt", "text/plain", strings.NewReader("hi"), 2)
	require.NoError(t, err)
	assert.Equal(t, "/media/posts/a.txt", url)

	b, err := os.ReadFile(filepath.Join(dir, "posts", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(b))

	require.NoError(t, l.Delete(ctx, "posts/a.txt"))
	require.NoError(t, l.Delete(ctx, "posts/a.txt"))

	_, err = l.Put(ctx, "../escape.txt", "text/plain", strings.NewReader("x"), 1)
	assert.Error(t, err)
}

func TestUploader_SniffsType(t *testing.T) {
	store := newMemStore()
	u := NewUploader(store, DefaultLimits())

	m, err := u.Save(context.Background(), "media", "posts", memFile("photo.bin", pngHeader, int64(len(pngHeader))))
	require.NoError(t, err)
	assert.Equal(t, models.MediaImage, m.Kind)
	assert.Equal(t, "image/png", m.ContentType)
	assert.True(t, strings.HasPrefix(m.Key, "posts/"))
	assert.True(t, strings.HasSuffix(m.Key, ".png"))
	assert.Equal(t, pngHeader, store.objects[m.Key])
}

func TestUploader_Rejects(t *testing.T) {
	u := NewUploader(newMemStore(), Limits{MaxFiles: 2, MaxImageSize: 10, MaxVideoSize: 10, MaxFileSize: 10})
	ctx := context.Background()

	_, err := u.Save(ctx, "avatar", "avatars", memFile("big.png", pngHeader, 11))
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = u.Save(ctx, "avatar", "avatars", memFile("notes.txt", []byte("plain text"), 10), models.MediaImage)
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "avatar", verr.Fields[0].Field)

	files := []File{memFile("a", pngHeader, 1), memFile("b", pngHeader, 1), memFile("c", pngHeader, 1)}
	_, err = u.SaveAll(ctx, "media", "posts", files)
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestUploader_SaveAllCleansUpOnFailure(t *testing.T) {
	store := newMemStore()
	store.failAt = 3
	u := NewUploader(store, DefaultLimits())

	files := []File{
		memFile("1.png", pngHeader, int64(len(pngHeader))),
		memFile("2.png", pngHeader, int64(len(pngHeader))),
		memFile("3.png", pngHeader, int64(len(pngHeader))),
	}
	_, err := u.SaveAll(context.Background(), "media", "posts", files, models.MediaImage, models.MediaVideo)
	require.Error(t, err)
	assert.Empty(t, store.objects)

	store.failAt = 0
	saved, err := u.SaveAll(context.Background(), "media", "posts", files[:2])
	require.NoError(t, err)
	assert.Len(t, saved, 2)
	assert.Len(t, store.objects, 2)
}

func TestS3PutDelete(t *testing.T) {
	type call struct{ method, path, contentType string }
	var (
		mu    sync.Mutex
		calls []call
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		calls = append(calls, call{r.Method, r.URL.Path, r.Header.Get("Content-Type")})
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewS3(context.Background(), S3Config{
		Endpoint:  srv.URL,
		Region:    "us-east-1",
		Bucket:    "uploads",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "posts/x.png", "image/png", bytes.NewReader(pngHeader), int64(len(pngHeader)))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/uploads/posts/x.png", url)
	require.NoError(t, s.Delete(context.Background(), "posts/x.png"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 2)
	assert.Equal(t, call{http.MethodPut, "/uploads/posts/x.png", "image/png"}, calls[0])
	assert.Equal(t, http.MethodDelete, calls[1].method)
	assert.Equal(t, "/uploads/posts/x.png", calls[1].path)
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
