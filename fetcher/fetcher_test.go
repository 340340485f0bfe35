package fetcher

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packsmith/packsmith/site"
)

func testServer(t *testing.T, body string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sha1hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func record(url, body string) *site.VersionRecord {
	return &site.VersionRecord{
		Filename: "mod.jar",
		URL:      url,
		Size:     int64(len(body)),
		Hashes:   map[string]string{"sha1": sha1hex(body)},
	}
}

func readAll(t *testing.T, dl *Fetcher, rec *site.VersionRecord) string {
	t.Helper()
	f, err := dl.Materialize(context.Background(), rec)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

func TestMaterialize(t *testing.T) {
	const body = "jar bytes"
	var hits atomic.Int64
	srv := testServer(t, body, &hits)
	dl := &Fetcher{Files: memfs.New(), Client: srv.Client()}

	assert.Equal(t, body, readAll(t, dl, record(srv.URL, body)))
	assert.EqualValues(t, 1, hits.Load())
}

func TestMaterializeReusesStore(t *testing.T) {
	const body = "jar bytes"
	var hits atomic.Int64
	srv := testServer(t, body, &hits)
	dl := &Fetcher{Files: memfs.New(), Client: srv.Client()}

	rec := record(srv.URL, body)
	readAll(t, dl, rec)
	readAll(t, dl, rec)
	// Same content under a different URL hits the store too.
	other := record(srv.URL+"/elsewhere", body)
	readAll(t, dl, other)

	assert.EqualValues(t, 1, hits.Load())
}

func TestMaterializeSingleFlight(t *testing.T) {
	const body = "jar bytes"
	var hits atomic.Int64
	srv := testServer(t, body, &hits)
	dl := &Fetcher{Files: memfs.New(), Client: srv.Client(), Jobs: 8}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := dl.Materialize(context.Background(), record(srv.URL, body))
			assert.NoError(t, err)
			if f != nil {
				f.Close()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, hits.Load())
}

func TestMaterializeIntegrityMismatch(t *testing.T) {
	srv := testServer(t, "tampered bytes", nil)
	fs := memfs.New()
	dl := &Fetcher{Files: fs, Client: srv.Client()}

	rec := record(srv.URL, "expected bytes")
	rec.Size = int64(len("tampered bytes"))
	_, err := dl.Materialize(context.Background(), rec)

	var ierr *IntegrityError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "sha1", ierr.Algo)

	// The bad download never entered the store.
	entries, err := fs.ReadDir("blobs")
	if err == nil {
		assert.Empty(t, entries)
	}
	tmp, err := fs.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Empty(t, tmp)
}

func TestMaterializeSizeMismatch(t *testing.T) {
	srv := testServer(t, "short", nil)
	dl := &Fetcher{Files: memfs.New(), Client: srv.Client()}

	rec := record(srv.URL, "short")
	rec.Size = 9999
	_, err := dl.Materialize(context.Background(), rec)
	require.ErrorContains(t, err, "size mismatch")
}

func TestMaterializeRetriesTransientFailure(t *testing.T) {
	const body = "jar bytes"
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	dl := &Fetcher{Files: memfs.New(), Client: srv.Client()}

	assert.Equal(t, body, readAll(t, dl, record(srv.URL, body)))
	assert.EqualValues(t, 2, hits.Load())
}

func TestMaterializeDoesNotRetryForbidden(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "denied", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	dl := &Fetcher{Files: memfs.New(), Client: srv.Client()}

	_, err := dl.Materialize(context.Background(), record(srv.URL, "jar bytes"))
	require.ErrorContains(t, err, "unexpected status")
	assert.EqualValues(t, 1, hits.Load())
}

func TestMaterializeWithoutDeclaredHashes(t *testing.T) {
	const body = "no hashes declared"
	var hits atomic.Int64
	srv := testServer(t, body, &hits)
	dl := &Fetcher{Files: memfs.New(), Client: srv.Client()}

	rec := &site.VersionRecord{Filename: "mod.jar", URL: srv.URL, Size: int64(len(body))}
	f, err := dl.Materialize(context.Background(), rec)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
	assert.EqualValues(t, 1, hits.Load())
}
