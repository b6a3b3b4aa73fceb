package shopify

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken   = errors.New("missing session token")
	ErrMalformedToken = errors.New("malformed session token")
	ErrBadSignature   = errors.New("session token signature mismatch")
	ErrExpiredToken   = errors.New("session token expired")
	ErrInvalidToken   = errors.New("invalid session token")
)

// Session tokens always carry the same HS256 header, so the first segment is fixed.
var sessionTokenPattern = regexp.MustCompile(`^eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9\.[A-Za-z0-9\-_=]+\.[A-Za-z0-9\-_=]*$`)

type SessionTokenClaims struct {
	jwt.RegisteredClaims

	Dest string `json:"dest,omitempty"` // e.g. https://{shop}
	Sid  string `json:"sid,omitempty"`
}

type VerifiedSession struct {
	ShopDomain string
	SessionID  string
	Subject    string
	ExpiresAt  time.Time
}

// CredentialsFunc resolves the API key and secret for a shop domain.
type CredentialsFunc func(shopDomain string) (apiKey, apiSecret string)

// SessionTokenValidator validates embedded app session tokens. Each check is
// terminal: the first failure is returned as one of the Err* sentinels.
type SessionTokenValidator struct {
	Credentials CredentialsFunc
	Now         func() time.Time
}

func (v SessionTokenValidator) Validate(token string) (*VerifiedSession, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	if !sessionTokenPattern.MatchString(token) {
		return nil, ErrMalformedToken
	}

	// The secret depends on the shop named in the token, so the body is read
	// before the signature is trusted. Nothing from it is used until then.
	claims := &SessionTokenClaims{}
	if _, _, err := jwt.NewParser(jwt.WithPaddingAllowed()).ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	// A token without a usable dest is checked against the default credentials.
	shopDomain := destHost(claims.Dest)
	apiKey, apiSecret := v.Credentials(shopDomain)

	i := strings.LastIndex(token, ".")
	sig, err := Base64URLDecode(token[i+1:])
	if err != nil {
		return nil, ErrBadSignature
	}
	if err := jwt.SigningMethodHS256.Verify(token[:i], sig, []byte(apiSecret)); err != nil {
		return nil, ErrBadSignature
	}

	if !claims.complete() || shopDomain == "" {
		return nil, ErrMalformedToken
	}

	now := time.Now().Unix()
	if v.Now != nil {
		now = v.Now().Unix()
	}
	if now > claims.ExpiresAt.Unix() {
		return nil, ErrExpiredToken
	}
	if now < claims.NotBefore.Unix() || now < claims.IssuedAt.Unix() {
		return nil, ErrExpiredToken
	}

	if !strings.Contains(strings.ToLower(claims.Issuer), shopDomain) {
		return nil, fmt.Errorf("%w: issuer does not match destination", ErrInvalidToken)
	}
	if !audContains(claims.Audience, apiKey) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}

	return &VerifiedSession{
		ShopDomain: shopDomain,
		SessionID:  claims.Sid,
		Subject:    claims.Subject,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

func (c *SessionTokenClaims) complete() bool {
	return c.Issuer != "" &&
		c.Dest != "" &&
		len(c.Audience) > 0 &&
		c.Subject != "" &&
		c.ExpiresAt != nil &&
		c.NotBefore != nil &&
		c.IssuedAt != nil &&
		c.ID != "" &&
		c.Sid != ""
}

func audContains(aud []string, want string) bool {
	if want == "" {
		return false
	}
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// destHost extracts the lower-cased host of a dest claim such as "https://{shop}".
func destHost(dest string) string {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return ""
	}
	if !strings.Contains(dest, "://") {
		dest = "https://" + dest
	}
	u, err := url.Parse(dest)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
