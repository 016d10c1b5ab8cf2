package interceptors

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"google.golang.org/grpc/peer"
)

// TrustedProxies lists the networks whose forwarding headers are believed. An empty list means
// the client IP is always the connection's remote address.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies parses CIDRs or bare addresses (e.g. "10.0.0.0/8", "127.0.0.1").
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// Contains reports whether ip belongs to a trusted network.
func (t TrustedProxies) Contains(ip string) bool {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range t {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// RequestIP returns the client IP of an HTTP request. Forwarding headers are only read when the
// remote address is a trusted proxy; X-Forwarded-For is then walked right to left and the first
// untrusted hop wins.
func (t TrustedProxies) RequestIP(r *http.Request) string {
	remote := hostOnly(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	if !t.Contains(remote) {
		return remote
	}
	if hops := forwardedHops(r.Header.Values("X-Forwarded-For")); len(hops) > 0 {
		for i := len(hops) - 1; i >= 0; i-- {
			if !t.Contains(hops[i]) {
				return hops[i]
			}
		}
		return hops[0]
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return remote
}

// ClientIP returns the client IP for audit and throttling: the value stored by the HTTP
// RequestContext middleware, else the gRPC peer address. Returns "unknown" when neither is set.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return hostOnly(p.Addr.String())
	}
	return "unknown"
}

func forwardedHops(vals []string) []string {
	var hops []string
	for _, v := range vals {
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hops = append(hops, h)
			}
		}
	}
	return hops
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
