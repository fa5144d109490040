package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/cartql/internal/cache"
	"github.com/fjod/cartql/internal/domain"
	"github.com/fjod/cartql/internal/events"
	"github.com/fjod/cartql/internal/payment"
	"github.com/fjod/cartql/internal/repository"
)

type itemKey struct{ cartID, itemID string }

type mockRepository struct {
	m       sync.Mutex
	carts   map[string]*domain.Cart
	items   map[itemKey]domain.CartItem
	order   []itemKey
	err     error
	creates int

	// listGate, when set, holds the next ListItems after it has taken its
	// snapshot, like a slow read in flight.
	listGate    chan struct{}
	listEntered chan struct{}
	// beforeUpsert runs under the lock ahead of the next UpsertItem.
	beforeUpsert func(m *mockRepository)
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		carts: make(map[string]*domain.Cart),
		items: make(map[itemKey]domain.CartItem),
	}
}

func (m *mockRepository) FindCartByID(_ context.Context, id string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[id]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepository) CreateCart(_ context.Context, id string) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if _, ok := m.carts[id]; ok {
		return nil, repository.ErrCartExists
	}
	now := time.Now()
	m.carts[id] = &domain.Cart{ID: id, CreatedAt: now, UpdatedAt: now}
	m.creates++
	cp := *m.carts[id]
	return &cp, nil
}

func (m *mockRepository) UpsertItem(_ context.Context, item domain.CartItem, incrementBy int64) (domain.CartItem, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return domain.CartItem{}, m.err
	}
	if hook := m.beforeUpsert; hook != nil {
		m.beforeUpsert = nil
		hook(m)
	}
	k := itemKey{item.CartID, item.ID}
	existing, ok := m.items[k]
	if ok {
		existing.Quantity += incrementBy
		m.items[k] = existing
		return existing, nil
	}
	item.Quantity = incrementBy
	m.items[k] = item
	m.order = append(m.order, k)
	return item, nil
}

func (m *mockRepository) UpdateItemQuantity(_ context.Context, cartID, itemID string, delta int64) (domain.CartItem, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return domain.CartItem{}, m.err
	}
	k := itemKey{cartID, itemID}
	item, ok := m.items[k]
	if !ok {
		return domain.CartItem{}, repository.ErrItemNotFound
	}
	item.Quantity += delta
	m.items[k] = item
	return item, nil
}

func (m *mockRepository) DecrementItem(_ context.Context, cartID, itemID string) (domain.CartItem, bool, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return domain.CartItem{}, false, m.err
	}
	k := itemKey{cartID, itemID}
	item, ok := m.items[k]
	if !ok {
		return domain.CartItem{}, false, repository.ErrItemNotFound
	}
	if item.Quantity > 0 {
		item.Quantity--
		m.items[k] = item
		return item, false, nil
	}
	m.deleteLocked(k)
	return item, true, nil
}

func (m *mockRepository) DeleteItem(_ context.Context, cartID, itemID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	k := itemKey{cartID, itemID}
	if _, ok := m.items[k]; !ok {
		return repository.ErrItemNotFound
	}
	m.deleteLocked(k)
	return nil
}

func (m *mockRepository) deleteLocked(k itemKey) {
	delete(m.items, k)
	for i, o := range m.order {
		if o == k {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *mockRepository) ListItems(_ context.Context, cartID string) ([]domain.CartItem, error) {
	m.m.Lock()
	if m.err != nil {
		m.m.Unlock()
		return nil, m.err
	}
	items := []domain.CartItem{}
	for _, k := range m.order {
		if k.cartID == cartID {
			items = append(items, m.items[k])
		}
	}
	gate, entered := m.listGate, m.listEntered
	m.listGate, m.listEntered = nil, nil
	m.m.Unlock()

	if gate != nil {
		close(entered)
		<-gate
	}
	return items, nil
}

// holdNextList arms the gate for the next ListItems call. entered is closed
// once that call has read the store; closing release lets it return.
func (m *mockRepository) holdNextList() (entered <-chan struct{}, release chan<- struct{}) {
	m.m.Lock()
	defer m.m.Unlock()
	m.listGate = make(chan struct{})
	m.listEntered = make(chan struct{})
	return m.listEntered, m.listGate
}

func (m *mockRepository) quantity(cartID, itemID string) (int64, bool) {
	m.m.Lock()
	defer m.m.Unlock()
	item, ok := m.items[itemKey{cartID, itemID}]
	return item.Quantity, ok
}

func (m *mockRepository) Ping(context.Context) error  { return m.err }
func (m *mockRepository) Close(context.Context) error { return nil }

func (m *mockRepository) setErr(err error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.err = err
}

type mockProvider struct {
	requests []payment.SessionRequest
	session  *domain.CheckoutSession
	err      error
}

func (p *mockProvider) CreateCheckoutSession(_ context.Context, req payment.SessionRequest) (*domain.CheckoutSession, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

type mockPublisher struct {
	events []events.CheckoutSessionCreated
	err    error
}

func (p *mockPublisher) PublishCheckoutSessionCreated(_ context.Context, evt events.CheckoutSessionCreated) error {
	p.events = append(p.events, evt)
	return p.err
}

func (p *mockPublisher) Close() error { return nil }

// countingCache keeps items per cart behind a generation counter, the way
// the Redis cache does.
type countingCache struct {
	m             sync.Mutex
	data          map[string][]domain.CartItem
	gens          map[string]int64
	invalidations int
	getErr        error
}

func newCountingCache() *countingCache {
	return &countingCache{
		data: make(map[string][]domain.CartItem),
		gens: make(map[string]int64),
	}
}

func (c *countingCache) Get(_ context.Context, cartID string) ([]domain.CartItem, error) {
	c.m.Lock()
	defer c.m.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	items, ok := c.data[cartID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return items, nil
}

func (c *countingCache) Generation(_ context.Context, cartID string) (int64, error) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.gens[cartID], nil
}

func (c *countingCache) Set(_ context.Context, cartID string, gen int64, items []domain.CartItem) error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.gens[cartID] != gen {
		return cache.ErrStale
	}
	c.data[cartID] = items
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, cartID string) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.gens[cartID]++
	delete(c.data, cartID)
	c.invalidations++
	return nil
}

func (c *countingCache) cached(cartID string) ([]domain.CartItem, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	items, ok := c.data[cartID]
	return items, ok
}

var errBoom = errors.New("boom")
