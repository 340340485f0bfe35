// Package fetcher downloads mod files into a content-addressed artifact
// store shared across runs. Store entries are keyed by hash and immutable,
// so a blob that exists is correct and reuse needs no revalidation.
package fetcher

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-git/go-billy/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/packsmith/packsmith/pack"
	"github.com/packsmith/packsmith/site"
)

// DefaultJobs bounds concurrent downloads when the caller does not.
const DefaultJobs = 5

const (
	tmpDir = "tmp"

	// maxRetries bounds attempts per download beyond the first.
	maxRetries = 3
)

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return b
}

// IntegrityError reports a downloaded file whose contents do not match a
// platform-declared hash. The temp file is discarded; nothing enters the
// store.
type IntegrityError struct {
	URL  string
	Algo string
	Want string
	Got  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("download %s: %s mismatch: declared %s, got %s", e.URL, e.Algo, e.Want, e.Got)
}

// hashAlgos in strength order; the strongest declared one keys the blob.
var hashAlgos = []struct {
	name string
	ctor func() hash.Hash
}{
	{"sha512", sha512.New},
	{"sha256", sha256.New},
	{"sha1", sha1.New},
	{"md5", md5.New},
}

func newHash(algo string) func() hash.Hash {
	for _, a := range hashAlgos {
		if a.name == algo {
			return a.ctor
		}
	}
	return nil
}

// Fetcher materializes version records as local files.
type Fetcher struct {
	// Files is the store root; blobs live under blobs/<algo>/<hh>/<hex>.
	Files  billy.Filesystem
	Client *http.Client

	// Jobs bounds concurrent downloads.
	Jobs int64

	once  sync.Once
	sem   *semaphore.Weighted
	group singleflight.Group
}

func (dl *Fetcher) init() {
	dl.once.Do(func() {
		jobs := dl.Jobs
		if jobs <= 0 {
			jobs = DefaultJobs
		}
		dl.sem = semaphore.NewWeighted(jobs)
	})
}

func blobPath(fs billy.Basic, algo, sum string) string {
	return fs.Join("blobs", algo, sum[:2], sum)
}

// strongestHash picks the store key for a record: the strongest declared
// hash the store understands. Records without usable hashes are keyed by the
// sha256 computed during download.
func strongestHash(rec *site.VersionRecord) (algo, sum string, ok bool) {
	for _, a := range hashAlgos {
		if s, declared := rec.Hashes[a.name]; declared && len(s) >= 2 {
			return a.name, strings.ToLower(s), true
		}
	}
	return "", "", false
}

// Materialize returns a store file with the record's contents, downloading
// it on first use. Concurrent calls for the same content share one download.
func (dl *Fetcher) Materialize(ctx context.Context, rec *site.VersionRecord) (billy.File, error) {
	dl.init()

	key := "url|" + rec.URL
	if algo, sum, ok := strongestHash(rec); ok {
		key = algo + "|" + sum
		// Fast path: immutable entries need no locking.
		p := blobPath(dl.Files, algo, sum)
		if _, err := dl.Files.Stat(p); err == nil {
			return dl.Files.Open(p)
		}
	}

	v, err, _ := dl.group.Do(key, func() (interface{}, error) {
		return dl.download(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return dl.Files.Open(v.(string))
}

// download fetches the record into the store and returns the blob path.
func (dl *Fetcher) download(ctx context.Context, rec *site.VersionRecord) (string, error) {
	algo, sum, keyed := strongestHash(rec)
	if keyed {
		// A concurrent Materialize may have lost the fast-path race and
		// landed here after another flight finished.
		p := blobPath(dl.Files, algo, sum)
		if _, err := dl.Files.Stat(p); err == nil {
			return p, nil
		}
	}

	if err := dl.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer dl.sem.Release(1)

	if err := dl.Files.MkdirAll(tmpDir, 0755); err != nil {
		return "", err
	}
	tmp, err := dl.Files.TempFile(tmpDir, "dl-")
	if err != nil {
		return "", err
	}
	discard := func() {
		tmp.Close()
		if err := dl.Files.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", tmp.Name()).Msg("removing temp download failed")
		}
	}

	// Every declared hash is verified over the stream; sha256 is always
	// computed so unkeyed records still get a store address.
	hashes := map[string]hash.Hash{"sha256": sha256.New()}
	for name := range rec.Hashes {
		if ctor := newHash(name); ctor != nil {
			hashes[name] = ctor()
		} else {
			log.Debug().Str("algo", name).Str("url", rec.URL).Msg("skipping unknown hash algorithm")
		}
	}
	ww := make([]io.Writer, 0, len(hashes)+1)
	ww = append(ww, tmp)
	for _, h := range hashes {
		ww = append(ww, h)
	}

	log.Info().Str("file", rec.Filename).Str("url", rec.URL).Msg("downloading")

	// Timeouts, resets and 5xx are retried into the same temp file after
	// rewinding it and the hash states. Integrity checks run once, on the
	// attempt that succeeded; a corrupt body is never retried.
	mw := io.MultiWriter(ww...)
	var n int64
	op := func() error {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(err)
		}
		if err := tmp.Truncate(0); err != nil {
			return backoff.Permanent(err)
		}
		for _, h := range hashes {
			h.Reset()
		}
		var ferr error
		n, ferr = dl.fetch(ctx, mw, rec)
		return ferr
	}
	notify := func(err error, wait time.Duration) {
		log.Debug().Err(err).Dur("wait", wait).Str("url", rec.URL).Msg("retrying download")
	}
	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), maxRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		discard()
		return "", err
	}
	if rec.Size > 0 && n != rec.Size {
		discard()
		return "", fmt.Errorf("download %s: size mismatch: declared %d bytes, got %d", rec.URL, rec.Size, n)
	}
	for name, want := range rec.Hashes {
		h, ok := hashes[name]
		if !ok {
			continue
		}
		got := hex.EncodeToString(h.Sum(nil))
		if got != strings.ToLower(want) {
			discard()
			return "", &IntegrityError{URL: rec.URL, Algo: name, Want: strings.ToLower(want), Got: got}
		}
	}

	if err := tmp.Close(); err != nil {
		discard()
		return "", err
	}

	if !keyed {
		algo = "sha256"
		sum = hex.EncodeToString(hashes["sha256"].Sum(nil))
	}
	p := blobPath(dl.Files, algo, sum)
	if err := dl.Files.MkdirAll(dl.Files.Join("blobs", algo, sum[:2]), 0755); err != nil {
		discard()
		return "", err
	}
	if err := dl.Files.Rename(tmp.Name(), p); err != nil {
		discard()
		return "", err
	}
	return p, nil
}

func recordSite(rec *site.VersionRecord) pack.Platform {
	if rec.ID == nil {
		return ""
	}
	return rec.ID.Site()
}

// fetch performs one download attempt. Connection failures, 429 and 5xx
// come back as *site.TransientError so the retry loop picks them up; other
// bad statuses are permanent.
func (dl *Fetcher) fetch(ctx context.Context, w io.Writer, rec *site.VersionRecord) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.URL, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	resp, err := dl.Client.Do(req)
	if err != nil {
		return 0, &site.TransientError{Site: recordSite(rec), URL: rec.URL, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Str("url", rec.URL).Msg("closing response body failed")
		}
	}()
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return 0, &site.TransientError{Site: recordSite(rec), URL: rec.URL, Err: fmt.Errorf("status %s", resp.Status)}
	default:
		return 0, backoff.Permanent(fmt.Errorf("download %s: unexpected status %s", rec.URL, resp.Status))
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &site.TransientError{Site: recordSite(rec), URL: rec.URL, Err: err}
	}
	return n, nil
}
