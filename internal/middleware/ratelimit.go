package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

type window struct {
	count int
	until time.Time
}

// RateLimit allows limit requests per client in each fixed window of per.
// Clients are keyed by RemoteAddr, so mount it after chi's RealIP.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	return newLimiter(limit, per, time.Now).middleware
}

type limiter struct {
	limit int
	per   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	nextSweep time.Time
}

func newLimiter(limit int, per time.Duration, now func() time.Time) *limiter {
	return &limiter{limit: limit, per: per, now: now, windows: make(map[string]*window)}
}

// allow records one request for client and returns how long to wait when the
// window is full.
func (l *limiter) allow(client string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now()
	if t.After(l.nextSweep) {
		for k, w := range l.windows {
			if t.After(w.until) {
				delete(l.windows, k)
			}
		}
		l.nextSweep = t.Add(l.per)
	}

	w, ok := l.windows[client]
	if !ok || t.After(w.until) {
		w = &window{until: t.Add(l.per)}
		l.windows[client] = w
	}
	if w.count >= l.limit {
		return false, w.until.Sub(t)
	}
	w.count++
	return true, 0
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.allow(clientKey(r.RemoteAddr))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"too many requests, slow down"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey strips the port from a RemoteAddr.
func clientKey(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
