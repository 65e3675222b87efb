// Package fetcher implements the HTTP black-box collaborator the core
// transfer engine treats as an external dependency: given a URL and a
// destination writer, it follows redirects up to a cap, enforces
// connect/accept timeouts, reports cumulative progress through a
// callback on a fixed cadence, and aborts cooperatively when that
// callback asks it to.
//
// This mirrors the curl easy-handle configuration in
// xferthread.c:do_download from the original implementation, rebuilt
// on net/http the way _examples/warpdl-warpdl/pkg/warplib/dloader.go
// drives its own transfers, with no retry or resume logic layered on
// top. curl's CURLOPT_XFERINFOFUNCTION is driven by curl's own timer
// and fires on a cadence independent of whether bytes are actually
// flowing, which is what lets a stalled transfer still observe a
// cancel; net/http has no equivalent hook, so the response body is
// read on its own goroutine and the progress callback is instead
// driven by a ticker selecting alongside the incoming data, giving the
// same timer-independent responsiveness.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// ErrAbortedByCallback is returned by Fetch when ProgressFunc asked for
// an abort. Worker code maps this to errcode.Interrupted.
var ErrAbortedByCallback = errors.New("fetch aborted by progress callback")

// ErrTooManyRedirects is returned when the redirect cap is exceeded.
var ErrTooManyRedirects = errors.New("too many redirects")

// StatusError wraps a non-2xx HTTP response, classified as a protocol
// failure.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http request failed: %s", e.Status)
}

// ProgressFunc is invoked with cumulative byte counts as the response
// body is copied. bytesTotal is 0 when the server did not send a
// Content-Length. Returning true aborts the transfer.
type ProgressFunc func(bytesNow, bytesTotal int64) (abort bool)

// Options configures a single Fetch call.
type Options struct {
	// MaxRedirects caps the number of redirects followed. Zero means
	// the package default (5, matching CURLOPT_MAXREDIRS in the
	// original implementation).
	MaxRedirects int
	// ConnectTimeout bounds establishing the TCP connection. Zero
	// means the package default (45s, matching CURLOPT_CONNECTTIMEOUT).
	ConnectTimeout time.Duration
	// AcceptTimeout bounds waiting for response headers after the
	// request is sent. Zero means the package default (45s, matching
	// CURLOPT_ACCEPTTIMEOUT_MS).
	AcceptTimeout time.Duration
	// OnProgress is called as bytes arrive. May be nil.
	OnProgress ProgressFunc
}

const (
	defaultMaxRedirects   = 5
	defaultConnectTimeout = 45 * time.Second
	defaultAcceptTimeout  = 45 * time.Second

	// progressTickInterval bounds how long a stalled transfer (headers
	// received, body not yet flowing) can go without a progress-callback
	// invocation, and therefore bounds observed cancel/shutdown latency
	// the way curl's own progress-callback timer bounds it for the
	// original implementation.
	progressTickInterval = 200 * time.Millisecond

	readBufferSize = 32 * 1024
)

func (o Options) withDefaults() Options {
	if o.MaxRedirects == 0 {
		o.MaxRedirects = defaultMaxRedirects
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.AcceptTimeout == 0 {
		o.AcceptTimeout = defaultAcceptTimeout
	}
	return o
}

// Fetcher performs one HTTP transfer at a time on behalf of the worker.
type Fetcher interface {
	Fetch(ctx context.Context, url string, dst io.Writer, opts Options) error
}

// HTTPFetcher is the production Fetcher, built directly on net/http. A
// single underlying *http.Transport is shared across Fetch calls so
// that connections to repeat hosts are pooled; Close releases it,
// mirroring the process-wide curl_global_init/curl_global_cleanup pair
// in the original implementation's do_download setup.
type HTTPFetcher struct {
	once      sync.Once
	transport *http.Transport
}

// New returns the production HTTP-backed Fetcher.
func New() *HTTPFetcher {
	return &HTTPFetcher{}
}

// transportFor lazily builds the shared transport from the first
// Fetch call's (already-defaulted) timeouts. Later calls reuse it,
// since the daemon always runs with the same connect/accept timeouts
// in practice.
func (f *HTTPFetcher) transportFor(opts Options) *http.Transport {
	f.once.Do(func() {
		dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
		f.transport = &http.Transport{
			DialContext:           dialer.DialContext,
			ResponseHeaderTimeout: opts.AcceptTimeout,
		}
	})
	return f.transport
}

// Close releases pooled idle connections. Safe to call once teardown
// is underway and no further Fetch calls will be made.
func (f *HTTPFetcher) Close() {
	if f.transport != nil {
		f.transport.CloseIdleConnections()
	}
}

// Fetch downloads url into dst, following redirects and reporting
// progress. It never retries: exactly one request is attempted, one
// redirect chain is followed, and any failure — including a
// caller-requested abort — is returned to the caller for
// classification. dst is never closed by Fetch.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, dst io.Writer, opts Options) error {
	opts = opts.withDefaults()

	client := &http.Client{
		Transport: f.transportFor(opts),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > opts.MaxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, ErrTooManyRedirects) {
			return ErrTooManyRedirects
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	// The body is read on its own goroutine so the progress callback
	// can still be driven by progressTicker even while that read is
	// blocked waiting for more bytes (a stalled body, as opposed to a
	// stalled connect/header phase, which ConnectTimeout/AcceptTimeout
	// already cover). Canceling ctx (via cancel, on abort) unblocks a
	// blocked Read because the response body's reads are tied to the
	// request context; closing resp.Body on return unblocks it too.
	results := make(chan readResult)
	go pumpBody(resp.Body, results)

	ticker := time.NewTicker(progressTickInterval)
	defer ticker.Stop()

	var read int64
	for {
		select {
		case res, ok := <-results:
			if !ok {
				return nil
			}
			if len(res.data) > 0 {
				if _, werr := dst.Write(res.data); werr != nil {
					cancel()
					drainAsync(results)
					return werr
				}
				read += int64(len(res.data))
				if reportProgress(opts.OnProgress, read, total) {
					cancel()
					drainAsync(results)
					return ErrAbortedByCallback
				}
			}
			if res.err != nil {
				if res.err == io.EOF {
					return nil
				}
				if errors.Is(res.err, context.Canceled) {
					return ErrAbortedByCallback
				}
				return res.err
			}

		case <-ticker.C:
			if reportProgress(opts.OnProgress, read, total) {
				cancel()
				drainAsync(results)
				return ErrAbortedByCallback
			}
		}
	}
}

// reportProgress invokes fn if non-nil, returning whether it requested
// an abort.
func reportProgress(fn ProgressFunc, read, total int64) bool {
	if fn == nil {
		return false
	}
	return fn(read, total)
}

// readResult is one Read call's outcome, forwarded from pumpBody to
// Fetch's select loop. data is a fresh copy safe to retain past the
// call that produced it.
type readResult struct {
	data []byte
	err  error
}

// pumpBody repeatedly reads body into a reusable buffer, copying each
// chunk before sending it so the buffer can be reused for the next
// read without racing the receiver. It returns (closing results) once
// body.Read reports an error, including io.EOF.
func pumpBody(body io.Reader, results chan<- readResult) {
	defer close(results)

	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)

		var chunk []byte
		if n > 0 {
			chunk = make([]byte, n)
			copy(chunk, buf[:n])
		}

		results <- readResult{data: chunk, err: err}
		if err != nil {
			return
		}
	}
}

// drainAsync consumes any remaining sends on results in the
// background so pumpBody's goroutine can observe the canceled context
// (or the body closing) and exit instead of blocking forever on a send
// nobody is receiving.
func drainAsync(results <-chan readResult) {
	go func() {
		for range results {
		}
	}()
}

var _ Fetcher = (*HTTPFetcher)(nil)
