package site

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/packsmith/packsmith/pack"
)

const (
	userAgent = "packsmith (github.com/packsmith/packsmith)"

	// maxRetries bounds attempts per request beyond the first.
	maxRetries = 3

	// maxBodySize bounds metadata responses; mod files go through the
	// fetcher, not through here.
	maxBodySize = 8 << 20
)

// errNotFound is the internal marker for a 404 response, mapped by each
// client into a NotFoundError naming the thing it was looking up.
type errNotFound struct{ url string }

func (e *errNotFound) Error() string {
	return fmt.Sprintf("404 for %s", e.url)
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return b
}

// getJSON performs a GET with bounded retry and decodes the JSON response.
// Timeouts, connection errors, 429 and 5xx are retried with exponential
// backoff and surface as TransientError once the budget is exhausted; 404 is
// returned immediately as errNotFound; other statuses are permanent.
func getJSON(ctx context.Context, c *http.Client, site pack.Platform, url string, header http.Header, v interface{}) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		for k, vals := range header {
			for _, val := range vals {
				req.Header.Set(k, val)
			}
		}

		resp, err := c.Do(req)
		if err != nil {
			return &TransientError{Site: site, URL: url, Err: err}
		}
		defer func() {
			if cerr := resp.Body.Close(); cerr != nil {
				log.Debug().Err(cerr).Str("url", url).Msg("close response body")
			}
		}()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(&errNotFound{url})
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &TransientError{Site: site, URL: url, Err: fmt.Errorf("status %s", resp.Status)}
		default:
			return backoff.Permanent(fmt.Errorf("%s: status %s", url, resp.Status))
		}

		lr := io.LimitReader(resp.Body, maxBodySize)
		if err := json.NewDecoder(lr).Decode(v); err != nil {
			return backoff.Permanent(fmt.Errorf("decode %s: %w", url, err))
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Debug().Err(err).Dur("wait", wait).Str("url", url).Msg("retrying request")
	}

	b := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), maxRetries), ctx)
	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return nil
	}
	// Retry unwraps backoff.Permanent before returning, so err is either
	// the 404 marker, a permanent failure, or the TransientError from the
	// final attempt.
	var nf *errNotFound
	if errors.As(err, &nf) {
		return nf
	}
	return err
}
