package relay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/beaconhub/beacon/internal/config"
)

// newTransport returns a tuned *http.Transport for a single long-lived SSE
// connection, with optional DNS caching so reconnect storms do not hammer
// the resolver.
func newTransport(resolver *dnscache.Resolver) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 5 * time.Second,
		// SSE responses never end; only bound the connection setup.
		ResponseHeaderTimeout: 30 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}
	return t
}

// bearerTransport is an http.RoundTripper that injects an OAuth2 bearer
// token on every outbound request. Tokens are cached and auto-refreshed.
type bearerTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

// RoundTrip obtains a token and injects it as a Bearer header.
func (t *bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	tok, err := t.source.Token()
	if err != nil {
		return nil, fmt.Errorf("relay: obtain token: %w", err)
	}
	r2 := r.Clone(r.Context())
	r2.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	return t.base.RoundTrip(r2)
}

// newClient builds the upstream HTTP client: dnscache-backed transport,
// wrapped with client-credentials bearer auth when configured. Timeout is
// zero: the response body is an endless stream.
func newClient(auth config.RelayAuth, resolver *dnscache.Resolver) *http.Client {
	var rt http.RoundTripper = newTransport(resolver)
	if auth.Enabled() {
		cc := clientcredentials.Config{
			TokenURL:     auth.TokenURL,
			ClientID:     auth.ClientID,
			ClientSecret: auth.ClientSecret,
			Scopes:       auth.Scopes,
		}
		// Token fetches go through their own short-timeout client so a
		// stuck auth server cannot wedge the stream transport.
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient,
			&http.Client{Timeout: 15 * time.Second})
		rt = &bearerTransport{
			base:   rt,
			source: oauth2.ReuseTokenSource(nil, cc.TokenSource(tokenCtx)),
		}
	}
	return &http.Client{Transport: rt}
}
