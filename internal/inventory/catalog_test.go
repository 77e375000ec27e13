package inventory

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopflow/internal/cache"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

type memoryStore struct {
	mu       sync.Mutex
	products map[string]domain.Product
	reads    int
	// afterRead, when set, runs after a read has copied its result and
	// released the lock.
	afterRead func()
}

func newMemoryStore(products ...domain.Product) *memoryStore {
	s := &memoryStore{products: make(map[string]domain.Product)}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memoryStore) List(ctx context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	s.reads++
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	hook := s.afterRead
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if hook != nil {
		hook()
	}
	return out, nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	s.reads++
	p, ok := s.products[id]
	hook := s.afterRead
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memoryStore) setStock(id string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.products[id]
	p.Stock = stock
	s.products[id] = p
}

func (s *memoryStore) Create(ctx context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.products {
		if existing.Name == p.Name {
			return ErrNameTaken
		}
	}
	p.ID = uuid.New().String()
	s.products[p.ID] = *p
	return nil
}

func (s *memoryStore) Update(ctx context.Context, id string, patch ProductPatch) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	s.products[id] = p
	return &p, nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return false, nil
	}
	delete(s.products, id)
	return true, nil
}

func (s *memoryStore) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type memoryCache struct {
	mu       sync.Mutex
	entries  map[string][]byte
	versions map[string]int64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte), versions: make(map[string]int64)}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *memoryCache) Version(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[key], nil
}

func (c *memoryCache) SetIfVersion(ctx context.Context, key string, version int64, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[key] != version {
		return cache.ErrStale
	}
	c.entries[key] = data
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
		c.versions[k]++
	}
	return nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func testProduct(id, name string, stock int) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        name,
		Description: "a product for tests",
		Price:       decimal.RequireFromString("5.00"),
		Stock:       stock,
	}
}

func TestCatalog_Get(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("serves repeated reads from cache", func(t *testing.T) {
		store := newMemoryStore(testProduct("p1", "Widget", 10))
		catalog := NewCatalog(store, newMemoryCache(), logger)

		for i := 0; i < 3; i++ {
			p, err := catalog.Get(context.Background(), "p1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p == nil || p.Stock != 10 {
				t.Fatalf("unexpected product: %+v", p)
			}
		}

		if store.readCount() != 1 {
			t.Errorf("expected 1 store read, got %d", store.readCount())
		}
	})

	t.Run("does not cache missing products", func(t *testing.T) {
		store := newMemoryStore()
		c := newMemoryCache()
		catalog := NewCatalog(store, c, logger)

		p, err := catalog.Get(context.Background(), "missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p != nil {
			t.Errorf("expected nil product, got %+v", p)
		}
		if c.has(productKey("missing")) {
			t.Error("expected no cache entry for a missing product")
		}
	})

	t.Run("works without a cache", func(t *testing.T) {
		store := newMemoryStore(testProduct("p1", "Widget", 10))
		catalog := NewCatalog(store, nil, logger)

		if _, err := catalog.Get(context.Background(), "p1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := catalog.Get(context.Background(), "p1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store.readCount() != 2 {
			t.Errorf("expected 2 store reads, got %d", store.readCount())
		}
		if err := catalog.Invalidate(context.Background(), "p1"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestCatalog_Invalidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("update drops the product and listing entries", func(t *testing.T) {
		store := newMemoryStore(testProduct("p1", "Widget", 10))
		c := newMemoryCache()
		catalog := NewCatalog(store, c, logger)

		if _, err := catalog.Get(ctx, "p1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := catalog.List(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		stock := 3
		if _, err := catalog.Update(ctx, "p1", ProductPatch{Stock: &stock}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if c.has(productKey("p1")) || c.has(allProductsKey) {
			t.Fatal("expected cache entries to be invalidated")
		}

		p, err := catalog.Get(ctx, "p1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Stock != 3 {
			t.Errorf("expected stock 3, got %d", p.Stock)
		}
	})

	t.Run("external stock change is visible after Invalidate", func(t *testing.T) {
		store := newMemoryStore(testProduct("p1", "Widget", 10))
		c := newMemoryCache()
		catalog := NewCatalog(store, c, logger)

		if _, err := catalog.Get(ctx, "p1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		store.setStock("p1", 8)

		stale, _ := catalog.Get(ctx, "p1")
		if stale.Stock != 10 {
			t.Fatalf("expected cached stock 10 before invalidation, got %d", stale.Stock)
		}

		if err := catalog.Invalidate(ctx, "p1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		fresh, _ := catalog.Get(ctx, "p1")
		if fresh.Stock != 8 {
			t.Errorf("expected stock 8 after invalidation, got %d", fresh.Stock)
		}
	})

	t.Run("create and delete drop the listing", func(t *testing.T) {
		store := newMemoryStore(testProduct("p1", "Widget", 10))
		c := newMemoryCache()
		catalog := NewCatalog(store, c, logger)

		if _, err := catalog.List(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		created := testProduct("", "Gadget", 1)
		if err := catalog.Create(ctx, &created); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.has(allProductsKey) {
			t.Fatal("expected listing to be invalidated after create")
		}

		list, err := catalog.List(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 products, got %d", len(list))
		}

		deleted, err := catalog.Delete(ctx, created.ID)
		if err != nil || !deleted {
			t.Fatalf("expected delete to succeed, got deleted=%v err=%v", deleted, err)
		}
		if c.has(allProductsKey) {
			t.Error("expected listing to be invalidated after delete")
		}
	})
}

// gateFirstRead parks the first store read after it has loaded its result,
// until release is closed. read is closed once the read is parked.
func gateFirstRead(store *memoryStore) (read chan struct{}, release chan struct{}) {
	read = make(chan struct{})
	release = make(chan struct{})
	var once sync.Once
	store.mu.Lock()
	store.afterRead = func() {
		once.Do(func() {
			close(read)
			<-release
		})
	}
	store.mu.Unlock()
	return read, release
}

func TestCatalog_InvalidationDuringFill(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("product read does not cache stock older than the invalidation", func(t *testing.T) {
		store := newMemoryStore(testProduct("p1", "Widget", 10))
		c := newMemoryCache()
		catalog := NewCatalog(store, c, logger)
		read, release := gateFirstRead(store)

		done := make(chan *domain.Product)
		go func() {
			p, _ := catalog.Get(ctx, "p1")
			done <- p
		}()

		<-read
		store.setStock("p1", 8)
		if err := catalog.Invalidate(ctx, "p1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(release)

		if first := <-done; first.Stock != 10 {
			t.Fatalf("expected the in-flight read to return stock 10, got %d", first.Stock)
		}
		if c.has(productKey("p1")) {
			t.Error("expected the stale fill to be discarded")
		}

		p, err := catalog.Get(ctx, "p1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Stock != 8 {
			t.Errorf("expected stock 8, got %d", p.Stock)
		}
	})

	t.Run("listing does not cache stock older than the invalidation", func(t *testing.T) {
		store := newMemoryStore(testProduct("p1", "Widget", 10))
		c := newMemoryCache()
		catalog := NewCatalog(store, c, logger)
		read, release := gateFirstRead(store)

		done := make(chan struct{})
		go func() {
			_, _ = catalog.List(ctx)
			close(done)
		}()

		<-read
		store.setStock("p1", 8)
		if err := catalog.Invalidate(ctx, "p1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(release)
		<-done

		if c.has(allProductsKey) {
			t.Error("expected the stale listing fill to be discarded")
		}

		list, err := catalog.List(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(list) != 1 || list[0].Stock != 8 {
			t.Errorf("expected one product with stock 8, got %+v", list)
		}
	})

	t.Run("fills after the invalidation are cached", func(t *testing.T) {
		store := newMemoryStore(testProduct("p1", "Widget", 10))
		c := newMemoryCache()
		catalog := NewCatalog(store, c, logger)

		if err := catalog.Invalidate(ctx, "p1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := catalog.Get(ctx, "p1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !c.has(productKey("p1")) {
			t.Error("expected the product to be cached")
		}
	})
}
