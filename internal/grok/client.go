package grok

import (
	"context"
	"fmt"
	"io"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

const (
	upscaleEndpoint = "https://grok.com/rest/media/video/upscale"
	upscalePath     = "/rest/media/video/upscale"

	// grok.com can take minutes to produce an HD variant.
	defaultTimeout = 180 * time.Second
)

// Config holds everything the client needs; injected from main, never read
// from the environment here.
type Config struct {
	CFClearance string // appended to the session cookie when set
	ProxyURL    string // routes both HTTP and HTTPS when set
	BaseURL     string // prefix for locally mirrored asset URLs
	Timeout     time.Duration
}

// VideoCache mirrors a remote asset into the local cache and returns the
// local file path, or "" when the asset was not cached.
type VideoCache interface {
	Download(ctx context.Context, remotePath, authToken string) (string, error)
}

// HeaderFunc produces the per-request header set for an endpoint path.
type HeaderFunc func(endpointPath string) map[string]string

type httpDoer interface {
	Do(req *fhttp.Request) (*fhttp.Response, error)
}

// Client talks to the grok.com media API with a Chrome TLS fingerprint.
// grok.com rejects non-browser fingerprints, so requests must go through
// the impersonated transport.
type Client struct {
	cfg     Config
	http    httpDoer
	cache   VideoCache // nil = mirroring disabled
	headers HeaderFunc
}

// NewClient builds a client impersonating Chrome 133. cache may be nil.
func NewClient(cfg Config, cache VideoCache) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	hc, err := NewTransport(cfg.Timeout, cfg.ProxyURL)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, http: hc, cache: cache, headers: DynamicHeaders}, nil
}

// NewTransport creates an impersonated HTTP client. Shared with the video
// cache service, which fetches assets from the same bot-filtered CDN.
func NewTransport(timeout time.Duration, proxyURL string) (tls_client.HttpClient, error) {
	jar := tls_client.NewCookieJar()
	opts := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(int(timeout / time.Second)),
		tls_client.WithClientProfile(profiles.Chrome_133),
		tls_client.WithNotFollowRedirects(),
		tls_client.WithCookieJar(jar),
	}
	if proxyURL != "" {
		opts = append(opts, tls_client.WithProxyUrl(proxyURL))
	}
	hc, err := tls_client.NewHttpClient(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("tls-client init: %w", err)
	}
	return hc, nil
}

// do executes a request with Chrome TLS fingerprint.
// Returns body bytes, HTTP status code, and any error.
func (c *Client) do(ctx context.Context, method, url string, headers map[string]string, body io.Reader) ([]byte, int, error) {
	req, err := fhttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	// Chrome-like header order matters for fingerprinting
	req.Header[fhttp.HeaderOrderKey] = []string{
		"accept",
		"accept-language",
		"accept-encoding",
		"content-type",
		"cookie",
		"origin",
		"referer",
		"user-agent",
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("tls request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}

	return data, resp.StatusCode, nil
}
