package middleware

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClientIPForRateLimit(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		remoteAddr string
		want       string
	}{
		{
			name:       "single ip",
			header:     "203.0.113.1",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "multiple ips use first",
			header:     " 203.0.113.1 , 198.51.100.2 ",
			remoteAddr: "198.51.100.10:1234",
			want:       "203.0.113.1",
		},
		{
			name:       "invalid forwarded falls back",
			header:     "invalid",
			remoteAddr: "198.51.100.10:1234",
			want:       "198.51.100.10",
		},
		{
			name:       "empty forwarded uses remote host",
			header:     "",
			remoteAddr: "198.51.100.10:1234",
			want:       "198.51.100.10",
		},
		{
			name:       "ipv6 forwarded",
			header:     "2001:db8::1",
			remoteAddr: net.JoinHostPort("2001:db8::2", "443"),
			want:       "2001:db8::1",
		},
		{
			name:       "ipv6 remote fallback",
			header:     "invalid",
			remoteAddr: net.JoinHostPort("2001:db8::2", "443"),
			want:       "2001:db8::2",
		},
		{
			name:       "remote without port",
			header:     "invalid",
			remoteAddr: "203.0.113.1",
			want:       "203.0.113.1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.header != "" {
				req.Header.Set("X-Forwarded-For", tc.header)
			}
			if got := clientIPForRateLimit(req); got != tc.want {
				t.Fatalf("clientIPForRateLimit() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRateLimitPerKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RateLimit(2, time.Minute, func(r *http.Request) string { return r.Header.Get("X-User") })(ok)

	codes := func(user string, n int) []int {
		out := make([]int, 0, n)
		for i := 0; i < n; i++ {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.Header.Set("X-User", user)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			out = append(out, rr.Code)
			if rr.Code == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
				t.Fatalf("missing Retry-After")
			}
		}
		return out
	}

	got := codes("a", 3)
	if got[0] != http.StatusOK || got[1] != http.StatusOK || got[2] != http.StatusTooManyRequests {
		t.Fatalf("user a codes = %v", got)
	}
	if got := codes("b", 1); got[0] != http.StatusOK {
		t.Fatalf("user b limited by user a: %v", got)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RateLimit(0, time.Minute, nil)(ok)
	for i := 0; i < 10; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d limited", i)
		}
	}
}

func TestUserIDFieldKeysByUserAndKeepsBody(t *testing.T) {
	var seen []string
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = append(seen, string(b))
		w.WriteHeader(http.StatusOK)
	})
	h := RateLimit(1, time.Minute, UserIDField)(echo)

	send := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.RemoteAddr = "10.0.0.1:5000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	if got := send(`{"user_id":1,"text":"hi"}`); got != http.StatusOK {
		t.Fatalf("user 1 first = %d", got)
	}
	if got := send(`{"user_id":2,"text":"hi"}`); got != http.StatusOK {
		t.Fatalf("user 2 limited by user 1 behind the same address: %d", got)
	}
	if got := send(`{"user_id":1}`); got != http.StatusTooManyRequests {
		t.Fatalf("user 1 second = %d, want 429", got)
	}
	if len(seen) != 2 || seen[0] != `{"user_id":1,"text":"hi"}` {
		t.Fatalf("body not restored: %q", seen)
	}

	if got := send(`not json`); got != http.StatusOK {
		t.Fatalf("ip fallback first = %d", got)
	}
	if got := send(`{}`); got != http.StatusTooManyRequests {
		t.Fatalf("ip fallback second = %d, want 429", got)
	}
}
