// Package download implements the download primitive (component G):
// one HTTP GET with progress callback, timing, and status
// classification, over a shared process-global client.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"sync"
	"time"

	"github.com/SakuraUO/thcrap/internal/corerr"
)

// Status classifies the outcome of one Get call.
type Status int

const (
	Ok Status = iota
	NotAvailable
	ServerError
	Cancelled
	OutOfMemory
	InvalidParameter
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "ok"
	case NotAvailable:
		return "not_available"
	case ServerError:
		return "server_error"
	case Cancelled:
		return "cancelled"
	case OutOfMemory:
		return "out_of_memory"
	case InvalidParameter:
		return "invalid_parameter"
	default:
		return "unknown"
	}
}

// Context carries per-request monotonic timing, captured just before
// connect, just after response headers, and just after body end.
type Context struct {
	TimeStart time.Time
	TimePing  time.Time
	TimeEnd   time.Time
	Bytes     int64
	Buffer    []byte
}

// ProgressFunc is invoked once on start, periodically during body
// read, and once on final failure. A false return cancels the
// transfer (Cancelled is then the reported status).
type ProgressFunc func(url string, status Status, progressBytes, totalBytes int64) bool

// client is the process-global HTTP client, created on first use and
// guarded by a reader/writer lock so a concurrent Get (reader) cannot
// race with Shutdown (writer) replacing the handle out from under it.
var (
	clientMu sync.RWMutex
	client   *http.Client
)

// UserAgent returns the "<short-name>/<version> (<goos>-<goarch>)"
// header value used by every request. The parenthesized part names
// the operating system and CPU architecture; it carries no OS version.
func UserAgent(shortName, version string) string {
	return fmt.Sprintf("%s/%s (%s)", shortName, version, runtime.GOOS+"-"+runtime.GOARCH)
}

func getClient() *http.Client {
	clientMu.RLock()
	c := client
	clientMu.RUnlock()
	if c != nil {
		return c
	}

	clientMu.Lock()
	defer clientMu.Unlock()
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		}
	}
	return client
}

// Shutdown closes idle connections and nulls the shared client,
// matching the teardown/reader-writer discipline the design notes
// call for; the next Get call lazily reconstructs it.
func Shutdown() {
	clientMu.Lock()
	defer clientMu.Unlock()
	if client != nil {
		client.CloseIdleConnections()
		client = nil
	}
}

var userAgent = UserAgent("thcrap-go", "dev")

// SetUserAgent overrides the default user-agent used by Get.
func SetUserAgent(ua string) { userAgent = ua }

// Get performs one GET against rawURL, classifying the outcome and
// invoking progress at start, during body read, and on final
// failure. A ProgressFunc returning false cancels the transfer.
func Get(ctx context.Context, rawURL string, progress ProgressFunc) (*Context, Status, error) {
	dctx := &Context{TimeStart: time.Now()}

	if rawURL == "" {
		return dctx, InvalidParameter, fmt.Errorf("download: empty url")
	}
	if _, err := url.Parse(rawURL); err != nil {
		return dctx, InvalidParameter, fmt.Errorf("download: invalid url %q: %w", rawURL, err)
	}

	c := getClient()
	if c == nil {
		return dctx, InvalidParameter, fmt.Errorf("download: no http client")
	}

	if progress != nil {
		if !progress(rawURL, Ok, 0, 0) {
			dctx.TimeEnd = time.Now()
			return dctx, Cancelled, corerr.ErrCancelled
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return dctx, InvalidParameter, fmt.Errorf("download: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.Do(req)
	dctx.TimePing = time.Now()
	if err != nil {
		dctx.TimeEnd = dctx.TimePing
		status, cerr := classifyTransportError(err)
		if progress != nil {
			progress(rawURL, status, 0, 0)
		}
		return dctx, status, cerr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		dctx.TimeEnd = time.Now()
		if progress != nil {
			progress(rawURL, NotAvailable, 0, 0)
		}
		return dctx, NotAvailable, corerr.NewNetError(corerr.NetHTTP, resp.StatusCode, fmt.Errorf("http %d", resp.StatusCode))
	}

	total := resp.ContentLength
	buf := make([]byte, 0, maxInt64(total, 0))
	chunk := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			dctx.Bytes = int64(len(buf))
			if progress != nil {
				if !progress(rawURL, Ok, dctx.Bytes, total) {
					dctx.TimeEnd = time.Now()
					progress(rawURL, Cancelled, dctx.Bytes, total)
					return dctx, Cancelled, corerr.ErrCancelled
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			dctx.TimeEnd = time.Now()
			if progress != nil {
				progress(rawURL, ServerError, dctx.Bytes, total)
			}
			return dctx, ServerError, corerr.NewNetError(corerr.NetDisconnect, 0, rerr)
		}
	}

	dctx.TimeEnd = time.Now()
	dctx.Buffer = buf
	if len(buf) == 0 {
		return dctx, Ok, nil // zero-byte classification is the caller's (mirror pool's) concern
	}
	return dctx, Ok, nil
}

func classifyTransportError(err error) (Status, error) {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ServerError, corerr.NewNetError(corerr.NetDnsFail, 0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ServerError, corerr.NewNetError(corerr.NetTimeout, 0, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ServerError, corerr.NewNetError(corerr.NetUnknownScheme, 0, urlErr)
	}
	return ServerError, corerr.NewNetError(corerr.NetRefused, 0, err)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
