package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stillgrab/stillgrab/internal/config"
	"github.com/stillgrab/stillgrab/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.ServerConfig{
		URL:       srv.URL,
		Username:  "alice",
		Password:  "secret",
		Secret:    "sharedsecret",
		App:       "videothumbs",
		VerifyTLS: true,
	}, nil)
}

func TestExists(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/index.php/apps/videothumbs/api/v1/exists", r.URL.Path)
		assert.Equal(t, "Videos/a.mp4", r.URL.Query().Get("path"))
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "sharedsecret", r.Header.Get("X-Thumbnail-Secret"))
		json.NewEncoder(w).Encode(map[string]bool{"exists": true})
	}))

	exists, err := c.Exists(context.Background(), "Videos/a.mp4")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBatchExists(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/index.php/apps/videothumbs/api/v1/batch_exists", r.URL.Path)
		var req batchExistsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a.mp4", "b.mov"}, req.Paths)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "success",
			"results": map[string]bool{"a.mp4": true, "b.mov": false},
		})
	}))

	results, err := c.BatchExists(context.Background(), []string{"a.mp4", "b.mov"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a.mp4": true, "b.mov": false}, results)
}

func TestBatchExistsServerError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "db down"})
	}))

	_, err := c.BatchExists(context.Background(), []string{"a.mp4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestUpload(t *testing.T) {
	thumb := filepath.Join(t.TempDir(), "t_00000000.jpg")
	require.NoError(t, os.WriteFile(thumb, []byte("jpegbytes"), 0644))

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/index.php/apps/videothumbs/api/v1/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Videos/a.mp4", r.FormValue("path"))
		f, _, err := r.FormFile("thumbnail")
		require.NoError(t, err)
		defer f.Close()
		json.NewEncoder(w).Encode(map[string]any{"status": "success"})
	}))

	require.NoError(t, c.Upload(context.Background(), "Videos/a.mp4", thumb))
}

func TestUploadRejected(t *testing.T) {
	thumb := filepath.Join(t.TempDir(), "t_00000000.jpg")
	require.NoError(t, os.WriteFile(thumb, []byte("jpegbytes"), 0644))

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "quota exceeded"})
	}))

	err := c.Upload(context.Background(), "Videos/a.mp4", thumb)
	require.ErrorIs(t, err, domain.ErrUploadRejected)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestSupportsBatchExists(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocs/v2.php/cloud/capabilities", r.URL.Path)
		assert.Equal(t, "true", r.Header.Get("OCS-APIRequest"))
		w.Write([]byte(`{"ocs":{"data":{"capabilities":{"videothumbs":{"features":{"batch_exists":true}}}}}}`))
	}))

	assert.True(t, c.SupportsBatchExists(context.Background()))
}

func TestSupportsBatchExistsMalformed(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))

	assert.False(t, c.SupportsBatchExists(context.Background()))
}

func TestSupportsBatchExistsMissingApp(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ocs":{"data":{"capabilities":{}}}}`))
	}))

	assert.False(t, c.SupportsBatchExists(context.Background()))
}

func TestFileURLEscapesPath(t *testing.T) {
	c := NewClient(&config.ServerConfig{
		URL:      "https://cloud.example.com",
		Username: "alice",
		Password: "secret",
		App:      "videothumbs",
	}, nil)

	url := c.FileURL("/Videos/My Movie #1.mp4")
	assert.Equal(t, "https://cloud.example.com/remote.php/dav/files/alice/Videos/My%20Movie%20%231.mp4", url)
}

func TestDownloadRangeSendsRangeHeader(t *testing.T) {
	var gotRange string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("partial"))
	}))

	var buf []byte
	w := writerFunc(func(p []byte) (int, error) {
		buf = append(buf, p...)
		return len(p), nil
	})
	require.NoError(t, c.DownloadRange("/Videos/a.mp4", 100, w))
	assert.Equal(t, "bytes=0-99", gotRange)
	assert.Equal(t, "partial", string(buf))
}

func TestDownloadRangeCapsIgnoredRange(t *testing.T) {
	// Server ignores Range and sends the full body with a plain 200.
	full := bytes.Repeat([]byte("x"), 1<<20)
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(full)
	}))

	var buf []byte
	w := writerFunc(func(p []byte) (int, error) {
		buf = append(buf, p...)
		return len(p), nil
	})
	require.NoError(t, c.DownloadRange("/Videos/a.mp4", 1024, w))
	assert.Len(t, buf, 1024)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
