package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

// CookieName is the canonical session cookie name.
const CookieName = "aw_session"

// signValue binds a session id to the signing secret so a tampered cookie
// is detectable: "<id>.<base64url(hmac-sha256(id))>".
func signValue(id string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(id))
	return id + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// parseSignedValue verifies a cookie value and returns the embedded session
// id. Unsigned or tampered values are rejected.
func parseSignedValue(value string, secret []byte) (string, bool) {
	id, signature, ok := strings.Cut(strings.TrimSpace(value), ".")
	if !ok || id == "" {
		return "", false
	}
	got, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return "", false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(id))
	if !hmac.Equal(got, mac.Sum(nil)) {
		return "", false
	}
	return id, true
}

// readCookie returns the raw session cookie value when present.
func readCookie(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie == nil {
		return "", false
	}
	value := strings.TrimSpace(cookie.Value)
	if value == "" {
		return "", false
	}
	return value, true
}

// sameSiteFor picks the cross-site policy. The separately-hosted front end
// needs SameSite=None, and browsers only accept that together with Secure.
func sameSiteFor(secure bool) http.SameSite {
	if secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// writeCookie sets the signed session cookie.
func writeCookie(w http.ResponseWriter, id string, expires time.Time, secret []byte, secure bool) {
	if w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signValue(id, secret),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSiteFor(secure),
	})
}

// clearCookie expires the session cookie.
func clearCookie(w http.ResponseWriter, secure bool) {
	if w == nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSiteFor(secure),
		MaxAge:   -1,
	})
}
