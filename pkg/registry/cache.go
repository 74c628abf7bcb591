package registry

import (
	"context"

	"github.com/erni27/imcache"
	log "github.com/sirupsen/logrus"
)

type cacheKey struct {
	name    string
	version string
}

type cacheEntry struct {
	info *PackageInfo
	err  error
}

// CachingClient memoizes the answers of another client, failures included, so each
// (name, version) pair is queried at most once for the lifetime of the client.
type CachingClient struct {
	next  Client
	cache *imcache.Cache[cacheKey, cacheEntry]
}

// NewCachingClient wraps next. A new CachingClient should be created for every run.
func NewCachingClient(next Client) *CachingClient {
	return &CachingClient{
		next:  next,
		cache: imcache.New[cacheKey, cacheEntry](),
	}
}

// Info implements Client.
func (c *CachingClient) Info(ctx context.Context, name, version string) (*PackageInfo, error) {
	key := cacheKey{name: name, version: version}
	if e, ok := c.cache.Get(key); ok {
		log.Debugf("Registry cache hit for %s", Spec(name, version))
		return e.info, e.err
	}

	info, err := c.next.Info(ctx, name, version)
	if ctx.Err() != nil {
		// a cancelled query says nothing about the package
		return info, err
	}
	c.cache.Set(key, cacheEntry{info: info, err: err}, imcache.WithNoExpiration())
	return info, err
}
