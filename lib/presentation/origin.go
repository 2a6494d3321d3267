package presentation

import (
	"fmt"
	"net/url"
	"strings"
)

// localProtocols may be opened across origins as long as opener and target
// share the scheme.
var localProtocols = map[string]bool{
	"file": true,
}

// OriginPolicy decides whether an opener may show a target URL. A
// presentation's success continuation gets script access to the new view,
// which only works within one origin.
type OriginPolicy struct {
	opener *url.URL
}

func NewOriginPolicy(opener string) (*OriginPolicy, error) {
	u, err := url.Parse(opener)
	if err != nil {
		return nil, fmt.Errorf("invalid opener origin %q: %w", opener, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("opener origin %q has no scheme", opener)
	}
	return &OriginPolicy{opener: u}, nil
}

// Resolve returns target resolved against the opener, or a SecurityError
// when the opener may not show it.
func (p *OriginPolicy) Resolve(target string) (string, *Error) {
	ref, err := url.Parse(target)
	if err != nil {
		return "", NewError(SecurityError, fmt.Sprintf("invalid url %q", target))
	}
	u := p.opener.ResolveReference(ref)

	if sameOrigin(p.opener, u) {
		return u.String(), nil
	}
	if strings.EqualFold(p.opener.Scheme, u.Scheme) && localProtocols[strings.ToLower(u.Scheme)] {
		return u.String(), nil
	}
	return "", NewError(SecurityError, fmt.Sprintf("%s may not show %s", origin(p.opener), origin(u)))
}

func sameOrigin(a, b *url.URL) bool {
	return origin(a) == origin(b)
}

func origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http", "ws":
			port = "80"
		case "https", "wss":
			port = "443"
		}
	}
	return scheme + "://" + host + ":" + port
}
