package application

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/matchbook/internal/metrics"
	"github.com/example/matchbook/internal/persona"
)

const (
	defaultCatalogCacheSize = 256
	defaultCatalogCacheTTL  = 5 * time.Minute
)

// catalogCache keeps recently read personas and category listings. The
// catalog changes only on seeding, which purges the cache.
type catalogCache struct {
	personas *expirable.LRU[string, persona.Persona]
	lists    *expirable.LRU[persona.Category, []persona.Persona]
	metrics  *metrics.Metrics
}

func newCatalogCache(size int, ttl time.Duration, m *metrics.Metrics) *catalogCache {
	if size <= 0 {
		size = defaultCatalogCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCatalogCacheTTL
	}
	return &catalogCache{
		personas: expirable.NewLRU[string, persona.Persona](size, nil, ttl),
		lists:    expirable.NewLRU[persona.Category, []persona.Persona](len(persona.Categories())+1, nil, ttl),
		metrics:  m,
	}
}

func (c *catalogCache) persona(alias string) (persona.Persona, bool) {
	p, ok := c.personas.Get(alias)
	c.metrics.CacheLookup(ok)
	if !ok {
		return persona.Persona{}, false
	}
	return p.Clone(), true
}

func (c *catalogCache) storePersona(p persona.Persona) {
	c.personas.Add(p.Alias, p.Clone())
}

func (c *catalogCache) list(category persona.Category) ([]persona.Persona, bool) {
	list, ok := c.lists.Get(category)
	c.metrics.CacheLookup(ok)
	if !ok {
		return nil, false
	}
	return clonePersonas(list), true
}

func (c *catalogCache) storeList(category persona.Category, list []persona.Persona) {
	c.lists.Add(category, clonePersonas(list))
	for _, p := range list {
		c.storePersona(p)
	}
}

func (c *catalogCache) purge() {
	c.personas.Purge()
	c.lists.Purge()
}

func clonePersonas(list []persona.Persona) []persona.Persona {
	if list == nil {
		return nil
	}
	out := make([]persona.Persona, len(list))
	for i, p := range list {
		out[i] = p.Clone()
	}
	return out
}
