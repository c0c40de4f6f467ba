package blobstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kairos/pkg/platform/sentinel"
)

// fakeS3 serves path-style object requests from a map.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `<Error><Code>InternalError</Code><Message>boom</Message></Error>`)
		return
	}
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		_, _ = w.Write(body)
	case http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:   "capsules",
		Region:   "us-east-1",
		Endpoint: srv.URL,
		Prefix:   "blobs/",
		Timeout:  2 * time.Second,
	})
	require.NoError(t, err)
	return store, fake
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()

	t.Run("put then get", func(t *testing.T) {
		store, fake := newTestS3(t)
		require.NoError(t, store.Put(ctx, "walrus_abc", []byte("sealed")))

		fake.mu.Lock()
		_, ok := fake.objects["/capsules/blobs/walrus_abc.blob"]
		fake.mu.Unlock()
		assert.True(t, ok)

		got, err := store.Get(ctx, "walrus_abc")
		require.NoError(t, err)
		assert.Equal(t, "sealed", string(got))
	})

	t.Run("missing key is not found", func(t *testing.T) {
		store, _ := newTestS3(t)
		_, err := store.Get(ctx, "walrus_missing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("server failure is unavailable", func(t *testing.T) {
		store, fake := newTestS3(t)
		fake.fail = true
		err := store.Put(ctx, "walrus_abc", []byte("sealed"))
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.True(t, strings.Contains(err.Error(), "s3 put"))
	})

	t.Run("health heads the bucket", func(t *testing.T) {
		store, fake := newTestS3(t)
		require.NoError(t, store.Health(ctx))

		fake.mu.Lock()
		fake.fail = true
		fake.mu.Unlock()
		assert.ErrorIs(t, store.Health(ctx), sentinel.ErrUnavailable)
	})
}
