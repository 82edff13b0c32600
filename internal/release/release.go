package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"felloe/internal/logx"
)

// Latest selects the newest published release.
const Latest = "latest"

var (
	// ErrNetwork covers unreachable endpoints and non-2xx answers.
	ErrNetwork = errors.New("release registry unreachable")
	// ErrDecode is returned for payloads that are not release JSON.
	ErrDecode = errors.New("malformed release metadata")
	// ErrNotFound is returned when the requested tag does not exist upstream.
	ErrNotFound = errors.New("release not found")
)

// Release is an upstream version descriptor.
type Release struct {
	Tag        string `json:"tag_name"`
	Prerelease bool   `json:"prerelease"`
}

// Client queries a GitHub-style releases endpoint.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
}

// NewClient returns a client for baseURL, e.g.
// https://api.github.com/repos/helm/helm/releases. A nil httpClient gets a
// 30 second timeout.
func NewClient(baseURL string, httpClient *http.Client, userAgent string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      httpClient,
		userAgent: userAgent,
	}
}

// List fetches up to count of the most recent releases, drops prereleases
// unless includePrerelease is set and returns the rest ascending by tag.
func (c *Client) List(ctx context.Context, count int, includePrerelease bool) ([]Release, error) {
	endpoint := c.baseURL
	if count > 0 {
		endpoint += "?per_page=" + strconv.Itoa(count)
	}

	var releases []Release
	if err := c.getJSON(ctx, endpoint, &releases); err != nil {
		return nil, err
	}

	out := make([]Release, 0, len(releases))
	for _, r := range releases {
		if r.Tag == "" {
			continue
		}
		if r.Prerelease && !includePrerelease {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })

	logx.FromContext(ctx).Debugw("listed releases", "url", endpoint, "received", len(releases), "kept", len(out))
	return out, nil
}

// Get resolves selector, either Latest or an explicit tag.
func (c *Client) Get(ctx context.Context, selector string) (Release, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		selector = Latest
	}

	endpoint := c.baseURL + "/" + Latest
	if selector != Latest {
		endpoint = c.baseURL + "/tags/" + url.PathEscape(selector)
	}

	var r Release
	if err := c.getJSON(ctx, endpoint, &r); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return Release{}, fmt.Errorf("%w: %s", ErrNotFound, selector)
		}
		return Release{}, err
	}
	if r.Tag == "" {
		return Release{}, fmt.Errorf("%w: %s has no tag_name", ErrDecode, endpoint)
	}
	return r, nil
}

// Filter keeps releases whose tag contains substr. An empty substr keeps all.
func Filter(releases []Release, substr string) []Release {
	if substr == "" {
		return releases
	}
	out := make([]Release, 0, len(releases))
	for _, r := range releases {
		if strings.Contains(r.Tag, substr) {
			out = append(out, r)
		}
	}
	return out
}

// Tags projects releases to their tag names.
func Tags(releases []Release) []string {
	tags := make([]string, len(releases))
	for i, r := range releases {
		tags[i] = r.Tag
	}
	return tags
}

func (c *Client) getJSON(ctx context.Context, endpoint string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{endpoint: endpoint, status: resp.Status, code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// statusError is a non-2xx answer. It matches ErrNetwork; Get maps 404 to
// ErrNotFound.
type statusError struct {
	endpoint string
	status   string
	code     int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: %s returned %s", ErrNetwork, e.endpoint, e.status)
}

func (e *statusError) Unwrap() error { return ErrNetwork }
