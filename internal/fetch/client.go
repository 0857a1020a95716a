package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"github.com/FleetingTimes/nor-crawler/internal/identity"
)

// client returns the HTTP client for an identity, building and caching one
// per distinct proxy endpoint. Identities without a proxy share the direct
// client.
func (f *Fetcher) client(id identity.Identity) (*http.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[id.ProxyURL]; ok {
		return c, nil
	}

	transport, err := transportFor(id.ProxyURL)
	if err != nil {
		return nil, err
	}
	c := &http.Client{
		Transport: transport,
		Timeout:   f.timeout,
	}
	f.clients[id.ProxyURL] = c
	return c, nil
}

// transportFor builds a transport routed through the given proxy endpoint.
// SOCKS5 endpoints get a dedicated dialer; http and https endpoints use the
// standard proxy mechanism. An empty endpoint connects directly.
func transportFor(proxyURL string) (*http.Transport, error) {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	if proxyURL == "" {
		return transport, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy URL %q: %w", proxyURL, err)
	}

	switch u.Scheme {
	case "socks5", "socks5h":
		var auth *proxy.Auth
		if u.User != nil {
			password, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer for %q: %w", u.Host, err)
		}
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProxy, u.Scheme)
	}
	return transport, nil
}
