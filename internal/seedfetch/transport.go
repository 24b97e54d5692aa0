package seedfetch

import (
	"context"
	"net/http"
	"net/url"
)

// SeedTransport opens a connection to the seed server. The caller owns the
// returned response body.
type SeedTransport interface {
	Open(ctx context.Context, platform Platform, restrictGroup string) (*http.Response, error)
}

type HTTPTransport struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPTransport{baseURL: baseURL, httpClient: client}
}

func (t *HTTPTransport) Open(ctx context.Context, platform Platform, restrictGroup string) (*http.Response, error) {
	u, err := seedURL(t.baseURL, platform, restrictGroup)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	// Ask for the seed gzip-compressed; the server answers with IM: gzip.
	req.Header.Set("A-IM", "gzip")
	// Keep net/http from transparently negotiating its own compression.
	req.Header.Set("Accept-Encoding", "identity")
	return t.httpClient.Do(req)
}

func seedURL(base string, platform Platform, restrictGroup string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("osname", platform.OSName())
	if restrictGroup != "" {
		q.Set("restrict", restrictGroup)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
