package auth

import (
	"net/http"
	"strings"
)

const (
	accessTokenHeader   = "X-Access-Token"
	authorizationHeader = "Authorization"
	// accessTokenQueryParam is the deprecated query-string carrier. It stays
	// supported at lowest precedence for old clients that cannot set headers.
	accessTokenQueryParam = "access_token"
)

// CredentialSource extracts a candidate credential from a request. An empty
// string means the source is not populated.
type CredentialSource func(r *http.Request) string

// DefaultSources is the ordered resolution chain: URL path segment,
// X-Access-Token header, Authorization bearer header, query parameter.
// First non-empty result wins.
func DefaultSources() []CredentialSource {
	return []CredentialSource{
		FromPath,
		FromHeader,
		FromBearer,
		FromQuery,
	}
}

// ResolveCredential walks the source chain and returns the first credential
// found. ok is false when no source carried one.
func ResolveCredential(r *http.Request, sources []CredentialSource) (credential string, ok bool) {
	for _, source := range sources {
		if cred := source(r); cred != "" {
			return cred, true
		}
	}
	return "", false
}

// FromPath extracts a credential embedded in the URL path. Routes that accept
// path credentials register a "{credential}" segment.
func FromPath(r *http.Request) string {
	return r.PathValue("credential")
}

// FromHeader extracts a credential from the X-Access-Token header.
func FromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(accessTokenHeader))
}

// FromBearer extracts a credential from an Authorization: Bearer header.
func FromBearer(r *http.Request) string {
	h := r.Header.Get(authorizationHeader)
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(h, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(h[len(bearerPrefix):])
}

// FromQuery extracts a credential from the deprecated access_token query
// parameter.
func FromQuery(r *http.Request) string {
	return r.URL.Query().Get(accessTokenQueryParam)
}
