package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ArtifactPrefix starts every key produced by ArtifactKey.
const ArtifactPrefix = "artifacts/"

// DefaultLinkTTL bounds how long a signed artifact URL stays valid.
const DefaultLinkTTL = time.Hour

var (
	ErrLinkInvalid = errors.New("storage: invalid artifact link")
	ErrLinkExpired = errors.New("storage: artifact link expired")
)

// IsArtifactKey reports whether ref names a stored artifact rather than a
// URL.
func IsArtifactKey(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), ArtifactPrefix)
}

// Links signs expiring public URLs for stored artifacts so providers that
// only accept URLs can fetch them from the artifact route.
type Links struct {
	baseURL string
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewLinks returns a signer for baseURL, or an error when either the base
// URL or the secret is missing.
func NewLinks(baseURL, secret string, ttl time.Duration) (*Links, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || strings.TrimSpace(secret) == "" {
		return nil, errors.New("storage: public base url and link secret are required")
	}
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	return &Links{baseURL: baseURL, secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// URL returns a signed URL for key.
func (l *Links) URL(key string) string {
	exp := strconv.FormatInt(l.now().Add(l.ttl).Unix(), 10)
	q := url.Values{}
	q.Set("exp", exp)
	q.Set("sig", l.sign(key, exp))
	return l.baseURL + "/v1/artifacts/" + strings.TrimLeft(key, "/") + "?" + q.Encode()
}

// Verify checks the signature and expiry carried by a link for key.
func (l *Links) Verify(key, exp, sig string) error {
	if key == "" || exp == "" || sig == "" {
		return ErrLinkInvalid
	}
	if !hmac.Equal([]byte(l.sign(key, exp)), []byte(sig)) {
		return ErrLinkInvalid
	}
	unix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return ErrLinkInvalid
	}
	if l.now().Unix() > unix {
		return ErrLinkExpired
	}
	return nil
}

func (l *Links) sign(key, exp string) string {
	mac := hmac.New(sha256.New, l.secret)
	mac.Write([]byte(strings.TrimLeft(key, "/")))
	mac.Write([]byte{'|'})
	mac.Write([]byte(exp))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
