package cache

import (
	"net/url"
	"strings"
)

// Keys builds endpoint keys: the absolute URL of a resource, made of the API
// base URL, the API prefix and the resource path, optionally suffixed with an
// id. The same string is used to issue the request and to address its cache
// slot, so it must be stable for a given resource.
type Keys struct {
	base string
}

// NewKeys normalises the base URL and prefix so that keys never contain
// doubled or missing separators.
func NewKeys(baseURL, prefix string) Keys {
	base := strings.TrimRight(baseURL, "/")

	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		base += "/" + prefix
	}

	return Keys{base: base}
}

// Base returns the URL every key starts with.
func (k Keys) Base() string {
	return k.base
}

// Key returns the endpoint key for path, with each id appended as a path
// segment. Ids are path-escaped; path is used as given apart from its leading
// slash, so it may carry a query string.
func (k Keys) Key(path string, ids ...string) string {
	var b strings.Builder
	b.WriteString(k.base)

	path = strings.TrimPrefix(path, "/")
	if path != "" {
		b.WriteByte('/')
		b.WriteString(path)
	}

	for _, id := range ids {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(id))
	}

	return b.String()
}
