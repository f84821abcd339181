// Package ratelimit provides per-client-IP throttling for the OAuth entry
// points and the webhook ingress.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedClients caps the limiter map so a scan across many source
// addresses cannot grow it without bound.
const maxTrackedClients = 10000

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	mu             sync.Mutex
	clients        map[string]*clientBucket
	rate           rate.Limit
	burst          int
	idleAfter      time.Duration
	trustedProxies []*net.IPNet
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter builds a limiter allowing r requests per second with the
// given burst. Buckets idle for roughly 2x the cleanup interval are evicted.
// trustedProxies lists the CIDRs (or single IPs) of reverse proxies whose
// forwarding headers may be believed; when empty, forwarding headers are
// trusted from any peer.
func NewIPRateLimiter(r rate.Limit, burst int, cleanup time.Duration, trustedProxies []string) *IPRateLimiter {
	l := &IPRateLimiter{
		clients:        make(map[string]*clientBucket),
		rate:           r,
		burst:          burst,
		idleAfter:      cleanup,
		trustedProxies: parseProxyNets(trustedProxies),
	}
	go l.evictIdle()
	return l
}

// parseProxyNets accepts CIDR notation or bare IPs; bare IPs become /32 or
// /128 networks. Unparseable entries are skipped.
func parseProxyNets(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		if _, ipnet, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, ipnet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			_, ipnet, _ := net.ParseCIDR(entry + "/32")
			nets = append(nets, ipnet)
		} else {
			_, ipnet, _ := net.ParseCIDR(entry + "/128")
			nets = append(nets, ipnet)
		}
	}
	return nets
}

// Middleware rejects requests that exceed the client's bucket with 429.
func (l *IPRateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.bucketFor(l.clientIP(r)).Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *IPRateLimiter) bucketFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.evictOldestLocked()
		}
		b = &clientBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

func (l *IPRateLimiter) evictOldestLocked() {
	var oldest string
	var oldestSeen time.Time
	for ip, b := range l.clients {
		if oldest == "" || b.lastSeen.Before(oldestSeen) {
			oldest, oldestSeen = ip, b.lastSeen
		}
	}
	if oldest != "" {
		delete(l.clients, oldest)
	}
}

func (l *IPRateLimiter) evictIdle() {
	ticker := time.NewTicker(l.idleAfter)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-2 * l.idleAfter)
		l.mu.Lock()
		for ip, b := range l.clients {
			if b.lastSeen.Before(cutoff) {
				delete(l.clients, ip)
			}
		}
		l.mu.Unlock()
	}
}

// clientIP resolves the address a request should be limited under. Forwarding
// headers (X-Forwarded-For, then X-Real-IP) are honored only when the direct
// peer is a trusted proxy; otherwise the peer address wins.
func (l *IPRateLimiter) clientIP(r *http.Request) string {
	peer := parseAddr(r.RemoteAddr)

	if len(l.trustedProxies) > 0 && !l.isTrustedProxy(peer) {
		return peer.String()
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Leftmost entry is the original client.
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return ip.String()
		}
	}
	return peer.String()
}

func (l *IPRateLimiter) isTrustedProxy(ip net.IP) bool {
	for _, ipnet := range l.trustedProxies {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

func parseAddr(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
