package ingest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/comps/internal/resilience"
)

func fastOpen() OpenOptions {
	return OpenOptions{Timeout: time.Second, Retry: resilience.NewRetryConfig(3, time.Millisecond, time.Millisecond)}
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close() //nolint:errcheck
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestOpen_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "companies.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n"), 0o644))

	rc, err := Open(context.Background(), path, fastOpen())
	require.NoError(t, err)
	assert.Equal(t, "id,name\n", readAll(t, rc))

	rc, err = Open(context.Background(), "file://"+path, fastOpen())
	require.NoError(t, err)
	assert.Equal(t, "id,name\n", readAll(t, rc))
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), fastOpen())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest: open")
}

func TestOpen_HTTPRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("id,name\n1,Acme\n"))
	}))
	defer srv.Close()

	rc, err := Open(context.Background(), srv.URL+"/companies.csv", fastOpen())
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,Acme\n", readAll(t, rc))
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpen_HTTPNotFoundNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Open(context.Background(), srv.URL+"/missing.csv", fastOpen())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	_, err := Open(context.Background(), "s3://bucket/companies.csv", fastOpen())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestOpen_FTPEmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "ftp://example.com", fastOpen())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty path")
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatXLSX, DetectFormat("exports/companies.XLSX"))
	assert.Equal(t, FormatXLSX, DetectFormat("https://example.com/dl/companies.xlsx?token=1"))
	assert.Equal(t, FormatCSV, DetectFormat("companies.csv"))
	assert.Equal(t, FormatCSV, DetectFormat("ftp://example.com/pub/companies"))
}
