package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"felloe/internal/logx"
)

var (
	// ErrLengthUnknown is returned when the length probe cannot determine
	// the size of the content.
	ErrLengthUnknown = errors.New("content length unknown")
	// ErrFetch covers failed requests, non-2xx answers and streams that
	// break before completion.
	ErrFetch = errors.New("fetch failed")
)

// maxSidecarSize bounds digest sidecar downloads.
const maxSidecarSize = 64 << 10

// Observer receives monotonically increasing byte counts while a body is
// streamed. total is the probed content length.
type Observer func(received, total int64)

// Artifact pairs a downloaded archive with the digest text published next
// to it.
type Artifact struct {
	Archive []byte
	Digest  string
}

// Fetcher downloads release content over HTTP.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

var sharedTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewHTTPClient returns a client sharing one tuned transport. timeout bounds
// the wait for response headers only, so long downloads are not cut off.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := sharedTransport.Clone()
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}

// NewAPIClient returns a client whose timeout covers the whole exchange,
// suited to small metadata requests.
func NewAPIClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: sharedTransport.Clone()}
}

// New returns a Fetcher. A nil client falls back to NewHTTPClient(30s).
func New(client *http.Client, userAgent string) *Fetcher {
	if client == nil {
		client = NewHTTPClient(30 * time.Second)
	}
	return &Fetcher{client: client, userAgent: userAgent}
}

// Probe returns the content length advertised for url.
func (f *Fetcher) Probe(ctx context.Context, url string) (int64, error) {
	resp, err := f.do(ctx, http.MethodHead, url)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("%w: %s", ErrLengthUnknown, url)
	}
	return resp.ContentLength, nil
}

// Fetch probes the length of url, then streams the body into memory calling
// observe after every read. Any error mid-stream discards what was received.
func (f *Fetcher) Fetch(ctx context.Context, url string, observe Observer) ([]byte, error) {
	total, err := f.Probe(ctx, url)
	if err != nil {
		return nil, err
	}

	resp, err := f.do(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}
	body := io.Reader(resp.Body)
	if observe != nil {
		observe(0, total)
		body = &progressReader{r: resp.Body, total: total, observe: observe}
	}
	if _, err := io.Copy(&buf, body); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrFetch, url, err)
	}

	logx.FromContext(ctx).Debugw("fetched", "url", url, "bytes", buf.Len())
	return buf.Bytes(), nil
}

// FetchText downloads a small text document without probing or progress.
func (f *Fetcher) FetchText(ctx context.Context, url string) (string, error) {
	resp, err := f.do(ctx, http.MethodGet, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSidecarSize))
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrFetch, url, err)
	}
	return string(data), nil
}

// FetchArtifact downloads archiveURL and digestURL concurrently. Both must
// succeed; the first failure cancels the other transfer.
func (f *Fetcher) FetchArtifact(ctx context.Context, archiveURL, digestURL string, observe Observer) (Artifact, error) {
	var artifact Artifact

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := f.Fetch(gctx, archiveURL, observe)
		if err != nil {
			return err
		}
		artifact.Archive = data
		return nil
	})
	g.Go(func() error {
		text, err := f.FetchText(gctx, digestURL)
		if err != nil {
			return err
		}
		artifact.Digest = text
		return nil
	})

	if err := g.Wait(); err != nil {
		return Artifact{}, err
	}
	return artifact, nil
}

func (f *Fetcher) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrFetch, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrFetch, strings.ToLower(method), url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: unexpected status %s", ErrFetch, strings.ToLower(method), url, resp.Status)
	}
	return resp, nil
}

type progressReader struct {
	r        io.Reader
	received int64
	total    int64
	observe  Observer
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.received += int64(n)
		p.observe(p.received, p.total)
	}
	return n, err
}
