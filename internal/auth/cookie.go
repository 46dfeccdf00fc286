package auth

import (
	"net/http"
	"net/url"
)

const (
	RefreshTokenCookieName = "refresh_token"
	AuthRequestCookieName  = "oauth2_auth_request"
	RedirectURICookieName  = "redirect_uri"
)

// CookieJar is the key-value exchange with the client used for transient
// login state and the refresh token.
type CookieJar interface {
	Get(r *http.Request, name string) (string, bool)
	Set(w http.ResponseWriter, name, value string, maxAge int)
	Clear(w http.ResponseWriter, r *http.Request, name string)
}

var _ CookieJar = HTTPCookieJar{}

// HTTPCookieJar stores values in HttpOnly cookies.
type HTTPCookieJar struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func NewHTTPCookieJar(domain string, secure bool) HTTPCookieJar {
	return HTTPCookieJar{
		Path:     "/",
		Domain:   domain,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (j HTTPCookieJar) Get(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	value, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return "", false
	}
	return value, true
}

func (j HTTPCookieJar) Set(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, j.cookie(name, url.QueryEscape(value), maxAge))
}

// Clear expires the cookie only when the request actually carries it.
func (j HTTPCookieJar) Clear(w http.ResponseWriter, r *http.Request, name string) {
	if _, err := r.Cookie(name); err != nil {
		return
	}
	http.SetCookie(w, j.cookie(name, "", -1))
}

func (j HTTPCookieJar) cookie(name, value string, maxAge int) *http.Cookie {
	path := j.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   j.Domain,
		MaxAge:   maxAge,
		Secure:   j.Secure,
		HttpOnly: true,
		SameSite: j.SameSite,
	}
}
