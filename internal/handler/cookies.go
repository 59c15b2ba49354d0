package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenCookie     = "access_token"
	draftCookie     = "reg_draft"
	defaultTokenTTL = 24 * time.Hour
)

// cookieTokens is the browser's half of a session: a domain.TokenStore kept
// in an HttpOnly cookie. It lives for one request.
type cookieTokens struct {
	w       http.ResponseWriter
	r       *http.Request
	secure  bool
	cleared bool
	now     func() time.Time
}

func newCookieTokens(w http.ResponseWriter, r *http.Request, secure bool) *cookieTokens {
	return &cookieTokens{w: w, r: r, secure: secure, now: time.Now}
}

func (c *cookieTokens) Load(context.Context) (string, error) {
	if c.cleared {
		return "", nil
	}
	cookie, err := c.r.Cookie(tokenCookie)
	if err != nil {
		return "", nil
	}
	return cookie.Value, nil
}

func (c *cookieTokens) Save(_ context.Context, token string) error {
	c.cleared = false
	http.SetCookie(c.w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   tokenMaxAge(token, c.now()),
	})
	return nil
}

func (c *cookieTokens) Clear(context.Context) error {
	c.cleared = true
	http.SetCookie(c.w, &http.Cookie{
		Name:     tokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	return nil
}

// tokenMaxAge sizes the cookie to the token's exp claim. The signature is not
// checked here; the backend remains the only judge of the token.
func tokenMaxAge(token string, now time.Time) int {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			if secs := int(exp.Sub(now).Seconds()); secs > 0 {
				return secs
			}
			return 1
		}
	}
	return int(defaultTokenTTL.Seconds())
}

func setDraftCookie(w http.ResponseWriter, id string, secure bool, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     draftCookie,
		Value:    id,
		Path:     "/register",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

func clearDraftCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     draftCookie,
		Value:    "",
		Path:     "/register",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
