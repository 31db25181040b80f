// Package trust resolves client metadata and signing key sets from the
// participant directory.
package trust

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/patrickmn/go-cache"
)

// ErrDirectoryUnavailable covers every failure to obtain client metadata
// or keys.
var ErrDirectoryUnavailable = errors.New("trust: directory unavailable")

// Client is the resolved view of a registered client.
type Client struct {
	ClientID       string
	JWKSURI        string
	OrganisationID string
	DisplayName    string
}

// Source fetches raw client metadata and key sets.
type Source interface {
	ClientDetails(ctx context.Context, clientID string) (ClientDetails, error)
	FetchKeySet(ctx context.Context, jwksURI string) (jwk.Set, error)
}

// Directory resolves clients through a Source with an optional TTL cache.
type Directory struct {
	source Source
	cache  *cache.Cache
}

// NewDirectory caches entries for ttl; ttl <= 0 fetches on every call.
func NewDirectory(source Source, ttl time.Duration) *Directory {
	d := &Directory{source: source}
	if ttl > 0 {
		d.cache = cache.New(ttl, 2*ttl)
	}
	return d
}

func clientKey(id string) string { return "client:" + id }
func keysKey(id string) string   { return "keys:" + id }

// ResolveClient returns the client's key set URI, organisation id and name.
func (d *Directory) ResolveClient(ctx context.Context, clientID string) (Client, error) {
	if d.cache != nil {
		if v, ok := d.cache.Get(clientKey(clientID)); ok {
			return v.(Client), nil
		}
	}
	details, err := d.source.ClientDetails(ctx, clientID)
	if err != nil {
		return Client{}, fmt.Errorf("%w: client %s: %v", ErrDirectoryUnavailable, clientID, err)
	}
	orgID, err := OrganisationID(details.JWKSURI)
	if err != nil {
		return Client{}, fmt.Errorf("%w: client %s: %v", ErrDirectoryUnavailable, clientID, err)
	}
	c := Client{
		ClientID:       clientID,
		JWKSURI:        details.JWKSURI,
		OrganisationID: orgID,
		DisplayName:    details.DisplayName(clientID),
	}
	if d.cache != nil {
		d.cache.SetDefault(clientKey(clientID), c)
	}
	return c, nil
}

// KeySet returns the client's current JWK set.
func (d *Directory) KeySet(ctx context.Context, c Client) (jwk.Set, error) {
	if d.cache != nil {
		if v, ok := d.cache.Get(keysKey(c.ClientID)); ok {
			return v.(jwk.Set), nil
		}
	}
	set, err := d.source.FetchKeySet(ctx, c.JWKSURI)
	if err != nil {
		return nil, fmt.Errorf("%w: keys for %s: %v", ErrDirectoryUnavailable, c.ClientID, err)
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("%w: empty key set for %s", ErrDirectoryUnavailable, c.ClientID)
	}
	if d.cache != nil {
		d.cache.SetDefault(keysKey(c.ClientID), set)
	}
	return set, nil
}

// Invalidate drops cached metadata and keys for a client.
func (d *Directory) Invalidate(clientID string) {
	if d.cache == nil {
		return
	}
	d.cache.Delete(clientKey(clientID))
	d.cache.Delete(keysKey(clientID))
}

// Cached reports whether either entry for the client is currently cached.
func (d *Directory) Cached(clientID string) bool {
	if d.cache == nil {
		return false
	}
	_, a := d.cache.Get(clientKey(clientID))
	_, b := d.cache.Get(keysKey(clientID))
	return a || b
}

// OrganisationID is the first non-empty path segment of the key set URI:
// https://host/org-123/jwks -> org-123.
func OrganisationID(jwksURI string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(jwksURI))
	if err != nil {
		return "", fmt.Errorf("parse jwks uri: %w", err)
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			return seg, nil
		}
	}
	return "", fmt.Errorf("jwks uri %q has no path segment", jwksURI)
}
