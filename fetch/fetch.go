// Package fetch downloads static HTML documents with a Chrome-like TLS
// fingerprint, for deriving locators without starting a browser.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"

	"github.com/use-agent/scrollsnap/models"
)

const (
	chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	// maxBody caps the bytes read from a response.
	maxBody = 10 << 20
)

// chromeH1Spec is a Chrome ClientHello with ALPN limited to http/1.1, since
// http.Transport cannot speak h2 over a utls connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// Page is a fetched HTML document.
type Page struct {
	HTML        string
	FinalURL    string
	StatusCode  int
	ContentType string
}

// Fetcher performs GET requests for HTML pages. It is safe for concurrent use.
type Fetcher struct {
	client *http.Client
}

// New creates a Fetcher. proxyURL may be empty, an http(s) proxy, or a
// socks5 proxy.
func New(proxyURL string, timeout time.Duration) (*Fetcher, error) {
	var base proxy.ContextDialer = &net.Dialer{Timeout: 10 * time.Second}
	transport := &http.Transport{ForceAttemptHTTP2: false}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("fetch: parse proxy: %w", err)
		}
		switch u.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(u)
		case "socks5", "socks5h":
			d, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				return nil, fmt.Errorf("fetch: socks proxy: %w", err)
			}
			cd, ok := d.(proxy.ContextDialer)
			if !ok {
				return nil, fmt.Errorf("fetch: socks dialer does not support contexts")
			}
			base = cd
			transport.DialContext = cd.DialContext
		default:
			return nil, fmt.Errorf("fetch: unsupported proxy scheme %q", u.Scheme)
		}
	}

	if transport.Proxy == nil {
		transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialChrome(ctx, base, network, addr)
		}
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}, nil
}

func dialChrome(ctx context.Context, d proxy.ContextDialer, network, addr string) (net.Conn, error) {
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("fetch: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// Fetch retrieves target. Non-HTML responses and HTTP errors are reported as
// FETCH_FAILED.
func (f *Fetcher) Fetch(ctx context.Context, target string, headers map[string]string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, models.InvalidInput("invalid url: %v", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, models.NewIngestError(models.ErrCodeFetchFailed, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, models.NewIngestError(models.ErrCodeFetchFailed, "failed to read response body", err)
	}

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode >= 400 {
		return nil, models.NewIngestError(models.ErrCodeFetchFailed, fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode), nil)
	}
	if !isHTML(ct) {
		return nil, models.NewIngestError(models.ErrCodeFetchFailed, fmt.Sprintf("unsupported content type %q", ct), nil)
	}

	return &Page{
		HTML:        string(body),
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: ct,
	}, nil
}

func isHTML(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
