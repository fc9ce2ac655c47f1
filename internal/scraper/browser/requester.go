package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/go-rod/rod/lib/proto"
)

// Document is a fetched response body.
type Document struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
}

// HTTPRequester fetches documents over HTTP with a session's cookies.
type HTTPRequester struct {
	client *resty.Client
}

func NewHTTPRequester(client *resty.Client) *HTTPRequester {
	return &HTTPRequester{client: client}
}

// NewSessionClient builds a resty client that presents jar's cookies and
// the browser's user agent.
func NewSessionClient(jar http.CookieJar, userAgent string, timeout time.Duration) *resty.Client {
	client := resty.New()
	client.SetCookieJar(jar)
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return client
}

// Fetch issues a GET. Non-2xx statuses are returned as a Document, not as
// an error; only transport failures are errors.
func (r *HTTPRequester) Fetch(ctx context.Context, rawURL string) (*Document, error) {
	res, err := r.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	return &Document{
		URL:         rawURL,
		Status:      res.StatusCode(),
		ContentType: res.Header().Get("Content-Type"),
		Body:        res.Body(),
	}, nil
}

// JarFromCookies copies browser cookies into a cookie jar, keyed by each
// cookie's domain.
func JarFromCookies(cookies []*proto.NetworkCookie) (http.CookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	byHost := map[string][]*http.Cookie{}
	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			continue
		}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		// Leading-dot domains are shared with subdomains; the others are
		// host-only.
		if strings.HasPrefix(c.Domain, ".") {
			hc.Domain = host
		}
		byHost[host] = append(byHost[host], hc)
	}

	for host, hcs := range byHost {
		jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, hcs)
	}
	return jar, nil
}
