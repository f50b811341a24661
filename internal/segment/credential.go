package segment

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"

	"audiobook-capture/internal/urlcodec"
)

// Both cookies must carry the credential; the segment host answers 403 when
// either is missing or unescaped.
const (
	credentialCookie       = "d"
	credentialMirrorCookie = "_sscl_d"
)

// NewCookieJar returns the jar shared by the relay and the fetch client.
func NewCookieJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// Relay installs the session credential into the cookie store before each
// segment request.
type Relay struct {
	jar http.CookieJar
}

// NewRelay returns a Relay writing into jar.
func NewRelay(jar http.CookieJar) *Relay {
	return &Relay{jar: jar}
}

// Attach scopes both credential cookies to target.
func (r *Relay) Attach(target *url.URL, credential string) error {
	if credential == "" {
		return fmt.Errorf("%w: empty credential for %s", ErrNetwork, target.Host)
	}
	if r.jar == nil {
		return errors.New("credential relay has no cookie store")
	}
	value := urlcodec.EscapeComponent(credential)
	r.jar.SetCookies(target, []*http.Cookie{
		{Name: credentialCookie, Value: value, Path: "/"},
		{Name: credentialMirrorCookie, Value: value, Path: "/"},
	})
	return nil
}
