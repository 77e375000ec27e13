package inventory

import (
	"context"
	"errors"
	"log/slog"

	"github.com/joao-fontenele/shopflow/internal/cache"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

// Cache is the side cache in front of product reads. Get returns cache.ErrMiss
// for absent keys. Delete changes the version of every key it drops, and
// SetIfVersion returns cache.ErrStale instead of writing when the version
// moved.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Version(ctx context.Context, key string) (int64, error)
	SetIfVersion(ctx context.Context, key string, version int64, value any) error
	Delete(ctx context.Context, keys ...string) error
}

type productStore interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, p *domain.Product) error
	Update(ctx context.Context, id string, patch ProductPatch) (*domain.Product, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Catalog serves product reads through an optional cache and invalidates the
// affected entries on every write. A nil cache disables caching.
type Catalog struct {
	store  productStore
	cache  Cache
	logger *slog.Logger
}

func NewCatalog(store productStore, cache Cache, logger *slog.Logger) *Catalog {
	return &Catalog{
		store:  store,
		cache:  cache,
		logger: logger,
	}
}

const allProductsKey = "products:all"

func productKey(id string) string {
	return "product:" + id
}

func (c *Catalog) List(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if c.fromCache(ctx, allProductsKey, &products) {
		return products, nil
	}

	version, cacheable := c.version(ctx, allProductsKey)

	products, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}

	if cacheable {
		c.toCache(ctx, allProductsKey, version, products)
	}
	return products, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*domain.Product, error) {
	key := productKey(id)

	var product domain.Product
	if c.fromCache(ctx, key, &product) {
		return &product, nil
	}

	version, cacheable := c.version(ctx, key)

	p, err := c.store.Get(ctx, id)
	if err != nil || p == nil {
		return p, err
	}

	if cacheable {
		c.toCache(ctx, key, version, p)
	}
	return p, nil
}

func (c *Catalog) Create(ctx context.Context, p *domain.Product) error {
	if err := c.store.Create(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx, allProductsKey)
	return nil
}

func (c *Catalog) Update(ctx context.Context, id string, patch ProductPatch) (*domain.Product, error) {
	p, err := c.store.Update(ctx, id, patch)
	if err != nil || p == nil {
		return p, err
	}
	c.invalidate(ctx, productKey(id), allProductsKey)
	return p, nil
}

func (c *Catalog) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := c.store.Delete(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}
	c.invalidate(ctx, productKey(id), allProductsKey)
	return true, nil
}

// Invalidate drops cached entries for the given products and the listing.
// Called after stock changes committed outside the catalog.
func (c *Catalog) Invalidate(ctx context.Context, ids ...string) error {
	if c.cache == nil {
		return nil
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}
	keys = append(keys, allProductsKey)
	return c.cache.Delete(ctx, keys...)
}

func (c *Catalog) fromCache(ctx context.Context, key string, dest any) bool {
	if c.cache == nil {
		return false
	}
	err := c.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrMiss) {
		c.logger.Warn("cache read failed", "key", key, "error", err)
	}
	return false
}

// version must be read before the store so that an invalidation landing
// between the store read and the fill is detected.
func (c *Catalog) version(ctx context.Context, key string) (int64, bool) {
	if c.cache == nil {
		return 0, false
	}
	v, err := c.cache.Version(ctx, key)
	if err != nil {
		c.logger.Warn("cache version read failed", "key", key, "error", err)
		return 0, false
	}
	return v, true
}

func (c *Catalog) toCache(ctx context.Context, key string, version int64, value any) {
	err := c.cache.SetIfVersion(ctx, key, version, value)
	switch {
	case errors.Is(err, cache.ErrStale):
		c.logger.Debug("skipped cache fill invalidated mid-read", "key", key)
	case err != nil:
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (c *Catalog) invalidate(ctx context.Context, keys ...string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, keys...); err != nil {
		c.logger.Warn("cache invalidation failed", "keys", keys, "error", err)
	}
}
