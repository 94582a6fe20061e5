package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchDownloadsAndCaches(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("fake-jpeg-bytes"))
	}))
	defer srv.Close()

	c, err := NewCache(t.TempDir())
	require.NoError(t, err)

	path1, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.FileExists(t, path1)
	require.Equal(t, ".jpg", path1[len(path1)-4:])

	path2, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, path1, path2)
	require.Equal(t, 1, calls, "second Fetch for the same URL must not re-download")
}

func TestFetchNon200ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewCache(t.TempDir())
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestWriteBytesIsContentAddressed(t *testing.T) {
	c, err := NewCache(t.TempDir())
	require.NoError(t, err)

	p1, err := c.WriteBytes([]byte("same-bytes"), "image/png")
	require.NoError(t, err)
	p2, err := c.WriteBytes([]byte("same-bytes"), "image/png")
	require.NoError(t, err)
	require.Equal(t, p1, p2)
	require.Equal(t, ".png", p1[len(p1)-4:])
}

func TestExtForUnknownContentType(t *testing.T) {
	require.Equal(t, ".jpg", extFor("image/jpeg"))
	require.Equal(t, ".webp", extFor("image/webp; charset=binary"))
	require.Equal(t, ".octet-stream", extFor("application/octet-stream"))
	require.Equal(t, "", extFor(""))
}
