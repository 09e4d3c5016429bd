package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// ParseTrustedProxy accepts a single address or a CIDR range.
func ParseTrustedProxy(entry string) (netip.Prefix, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		return p.Masked(), err
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

type trustedProxies []netip.Prefix

func (tp trustedProxies) contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range tp {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// RealIP resolves the client address once per request. Forwarding
// headers are honoured only when the connecting peer is one of the
// trusted proxies; anyone else is keyed by the socket address, so a
// client cannot pick its own rate limit bucket.
func RealIP(trusted []string) func(http.Handler) http.Handler {
	var tp trustedProxies
	for _, entry := range trusted {
		// Entries are checked by config validation.
		if p, err := ParseTrustedProxy(entry); err == nil {
			tp = append(tp, p)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := tp.clientIP(r)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip)))
		})
	}
}

func (tp trustedProxies) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !tp.contains(peer) {
		return peer
	}

	// Cloudflare
	if cfip := validIP(r.Header.Get("CF-Connecting-IP")); cfip != "" {
		return cfip
	}

	// Walk X-Forwarded-For from the nearest hop and stop at the first
	// address that is not one of our proxies.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		client := ""
		for i := len(hops) - 1; i >= 0; i-- {
			hop := validIP(hops[i])
			if hop == "" {
				break
			}
			client = hop
			if !tp.contains(hop) {
				break
			}
		}
		if client != "" {
			return client
		}
	}

	if xri := validIP(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

// getClientIP returns the address resolved by RealIP, or the socket
// address when RealIP is not installed.
func getClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return remoteHost(r.RemoteAddr)
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func validIP(raw string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}
