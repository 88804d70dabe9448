package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// RateLimit allows limit requests per window for each key. A non-positive
// limit disables it.
func RateLimit(limit int, per time.Duration, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = clientIPForRateLimit
	}
	var mu sync.Mutex
	buckets := make(map[string]*bucket)
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			mu.Lock()
			now := time.Now()
			b, ok := buckets[k]
			if !ok || now.After(b.until) {
				b = &bucket{count: 0, until: now.Add(per)}
				buckets[k] = b
				if len(buckets) > 4096 {
					for id, old := range buckets {
						if now.After(old.until) {
							delete(buckets, id)
						}
					}
				}
			}
			if b.count >= limit {
				retry := int(time.Until(b.until).Seconds()) + 1
				mu.Unlock()
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			b.count++
			mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}

// maxKeyBody bounds how much of a body UserIDField reads.
const maxKeyBody = 1 << 20

// UserIDField keys requests by the numeric user_id of their JSON body, so a
// single gateway address does not share one bucket across all users. The
// body is restored for the next handler. Requests without a user id fall
// back to ClientIP.
func UserIDField(r *http.Request) string {
	if r.Body == nil {
		return ClientIP(r)
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxKeyBody))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ClientIP(r)
	}
	var payload struct {
		UserID int64 `json:"user_id"`
	}
	if json.Unmarshal(body, &payload) != nil || payload.UserID == 0 {
		return ClientIP(r)
	}
	return "user:" + strconv.FormatInt(payload.UserID, 10)
}

// ClientIP keys requests by the forwarded or remote client address.
func ClientIP(r *http.Request) string {
	return clientIPForRateLimit(r)
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
