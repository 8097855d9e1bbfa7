// Package signedurl generates and verifies HMAC-signed, expiring URLs that
// grant unauthenticated access to a single attachment. Verification is a pure
// function of the token bytes, the server-held secret and the current time:
// there is no backing store and no revocation list. A leaked URL stays valid
// until natural expiry; rotating the secret invalidates all outstanding URLs.
package signedurl

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrExpired indicates the token's expiry timestamp has passed.
	ErrExpired = errors.New("signed url expired")
	// ErrBadSignature indicates the recomputed signature does not match.
	ErrBadSignature = errors.New("signed url signature mismatch")
)

// DefaultTTL is how long issued URLs remain valid when no TTL is given.
const DefaultTTL = time.Hour

// DefaultPathPrefix is the URL path prefix attachment URLs are issued under.
const DefaultPathPrefix = "att"

// SecretProvider supplies the current signing secret. Implementations must be
// safe for concurrent use.
type SecretProvider interface {
	Secret() []byte
}

// StaticSecret is a fixed, process-lifetime signing secret.
type StaticSecret []byte

func (s StaticSecret) Secret() []byte { return s }

// Codec issues and verifies signed attachment URLs.
type Codec struct {
	secrets SecretProvider
	prefix  string
	now     func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithPathPrefix overrides the URL path prefix (default "att").
func WithPathPrefix(prefix string) Option {
	return func(c *Codec) { c.prefix = strings.Trim(prefix, "/") }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// New constructs a Codec around the given secret provider.
func New(secrets SecretProvider, opts ...Option) (*Codec, error) {
	if secrets == nil || len(secrets.Secret()) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}
	c := &Codec{secrets: secrets, prefix: DefaultPathPrefix, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue composes a signed, expiring URL for the given attachment. baseURL is
// the externally visible origin (scheme and host); ttl <= 0 uses DefaultTTL.
// The filename is cosmetic: it is percent-encoded into the final path segment
// but carries no authority and is not re-validated on download.
func (c *Codec) Issue(messageID, attachmentID, filename, baseURL string, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	expires := c.now().Add(ttl).Unix()
	sig := c.sign(messageID, attachmentID, expires)
	return fmt.Sprintf("%s/%s/%s/%s/%d/%s/%s",
		strings.TrimRight(baseURL, "/"),
		c.prefix,
		url.PathEscape(messageID),
		url.PathEscape(attachmentID),
		expires,
		sig,
		url.PathEscape(filename),
	)
}

// PathPrefix returns the path prefix URLs are issued under.
func (c *Codec) PathPrefix() string { return c.prefix }

// Verify checks the expiry and signature of a presented token. Expiry is
// checked first; the signature comparison is constant-time.
func (c *Codec) Verify(messageID, attachmentID string, expires int64, signature string) error {
	if c.now().Unix() > expires {
		return ErrExpired
	}
	expected := c.sign(messageID, attachmentID, expires)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// VerifyString is Verify with the expiry still in its wire form.
func (c *Codec) VerifyString(messageID, attachmentID, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	return c.Verify(messageID, attachmentID, exp, signature)
}

func (c *Codec) sign(messageID, attachmentID string, expires int64) string {
	mac := hmac.New(sha1.New, c.secrets.Secret())
	fmt.Fprintf(mac, "%s:%s:%d", messageID, attachmentID, expires)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
