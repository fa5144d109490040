package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/cartql/internal/domain"
	"github.com/fjod/cartql/internal/money"
	"github.com/fjod/cartql/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCartService() (*CartService, *mockRepository, *countingCache) {
	repo := newMockRepository()
	c := newCountingCache()
	return NewCartService(repo, c, nil), repo, c
}

func strPtr(s string) *string { return &s }

func TestEnsureCart_CreatesOnce(t *testing.T) {
	svc, repo, _ := newTestCartService()
	ctx := context.Background()

	first, err := svc.EnsureCart(ctx, "c1")
	require.NoError(t, err)
	second, err := svc.EnsureCart(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.creates)

	cart, err := svc.GetCart(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestEnsureCart_Concurrent(t *testing.T) {
	svc, repo, _ := newTestCartService()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.EnsureCart(context.Background(), "shared")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, repo.creates)
}

func TestEnsureCart_InvalidID(t *testing.T) {
	svc, _, _ := newTestCartService()
	_, err := svc.EnsureCart(context.Background(), "  ")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.EqualError(t, err, domain.MsgInvalidCartID)
}

func TestEnsureCart_StorageFailure(t *testing.T) {
	svc, repo, _ := newTestCartService()
	repo.setErr(errBoom)

	_, err := svc.EnsureCart(context.Background(), "c1")
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, err, errBoom)
}

func TestAddItem_EndToEndFormatting(t *testing.T) {
	svc, _, _ := newTestCartService()
	f, err := money.NewFormatter(money.USD)
	require.NoError(t, err)

	cart, err := svc.AddItem(context.Background(), AddItemInput{
		CartID: "c1", ItemID: "i1", Name: "Mug", Price: 500, Quantity: 2,
	})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)

	item := cart.Items[0]
	assert.Equal(t, "i1", item.ID)
	assert.Equal(t, int64(2), item.Quantity)
	line := pricing.LineTotal(f, item, "")
	assert.Equal(t, int64(1000), line.Amount)
	assert.Equal(t, "$10.00", line.Formatted)
}

func TestAddItem_TwiceIncrements(t *testing.T) {
	svc, _, _ := newTestCartService()
	ctx := context.Background()
	in := AddItemInput{CartID: "c1", ItemID: "i1", Name: "Mug", Price: 500, Quantity: 1}

	_, err := svc.AddItem(ctx, in)
	require.NoError(t, err)
	cart, err := svc.AddItem(ctx, in)
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(2), cart.Items[0].Quantity)
}

func TestAddItem_DefaultQuantity(t *testing.T) {
	svc, _, _ := newTestCartService()
	cart, err := svc.AddItem(context.Background(), AddItemInput{
		CartID: "c1", ItemID: "i1", Name: "Mug", Price: 500,
		Description: strPtr("blue"), Image: strPtr("https://img/mug.png"),
	})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(1), cart.Items[0].Quantity)
	assert.Equal(t, "blue", *cart.Items[0].Description)
}

func TestAddItem_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   AddItemInput
	}{
		{"empty cart id", AddItemInput{ItemID: "i1", Name: "x", Price: 1}},
		{"empty item id", AddItemInput{CartID: "c1", Name: "x", Price: 1}},
		{"empty name", AddItemInput{CartID: "c1", ItemID: "i1", Price: 1}},
		{"negative price", AddItemInput{CartID: "c1", ItemID: "i1", Name: "x", Price: -1}},
		{"negative quantity", AddItemInput{CartID: "c1", ItemID: "i1", Name: "x", Price: 1, Quantity: -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestCartService()
			_, err := svc.AddItem(context.Background(), tt.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Empty(t, repo.items)
		})
	}
}

func TestAddItem_ConcurrentSameItem(t *testing.T) {
	svc, _, _ := newTestCartService()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, AddItemInput{CartID: "c1", ItemID: "i1", Name: "Mug", Price: 100, Quantity: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cart, err := svc.GetCart(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(25), cart.Items[0].Quantity)
}

func TestRemoveItem(t *testing.T) {
	svc, _, _ := newTestCartService()
	ctx := context.Background()
	_, err := svc.AddItem(ctx, AddItemInput{CartID: "c1", ItemID: "i1", Name: "Mug", Price: 100, Quantity: 3})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, AddItemInput{CartID: "c1", ItemID: "i2", Name: "Pen", Price: 50})
	require.NoError(t, err)

	cart, err := svc.RemoveItem(ctx, "c1", "i1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "i2", cart.Items[0].ID)
}

func TestRemoveItem_NotFound(t *testing.T) {
	svc, _, _ := newTestCartService()
	_, err := svc.RemoveItem(context.Background(), "c1", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.EqualError(t, err, domain.MsgItemNotFound)
}

func TestIncreaseCartItem(t *testing.T) {
	svc, _, _ := newTestCartService()
	ctx := context.Background()
	_, err := svc.AddItem(ctx, AddItemInput{CartID: "c1", ItemID: "i1", Name: "Mug", Price: 100})
	require.NoError(t, err)

	cart, err := svc.IncreaseCartItem(ctx, "c1", "i1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cart.Items[0].Quantity)

	_, err = svc.IncreaseCartItem(ctx, "c1", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDecreaseCartItem_ZeroBoundary(t *testing.T) {
	svc, _, _ := newTestCartService()
	ctx := context.Background()
	_, err := svc.AddItem(ctx, AddItemInput{CartID: "c1", ItemID: "i1", Name: "Mug", Price: 100})
	require.NoError(t, err)

	cart, err := svc.DecreaseCartItem(ctx, "c1", "i1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1, "1 -> 0 keeps the item")
	assert.Equal(t, int64(0), cart.Items[0].Quantity)
	assert.Equal(t, int64(0), pricing.TotalItems(cart.Items))
	assert.Equal(t, int64(0), pricing.SubTotalAmount(cart.Items))

	cart, err = svc.DecreaseCartItem(ctx, "c1", "i1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items, "0 -> -1 deletes the item")

	_, err = svc.DecreaseCartItem(ctx, "c1", "i1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDecreaseCartItem_FromTwo(t *testing.T) {
	svc, _, _ := newTestCartService()
	ctx := context.Background()
	_, err := svc.AddItem(ctx, AddItemInput{CartID: "c1", ItemID: "i1", Name: "Mug", Price: 100, Quantity: 2})
	require.NoError(t, err)

	cart, err := svc.DecreaseCartItem(ctx, "c1", "i1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cart.Items[0].Quantity)
}

func TestItemMutations_InvalidItemID(t *testing.T) {
	svc, _, _ := newTestCartService()
	ctx := context.Background()
	ops := map[string]func(context.Context, string, string) (*domain.Cart, error){
		"remove":   svc.RemoveItem,
		"increase": svc.IncreaseCartItem,
		"decrease": svc.DecreaseCartItem,
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			_, err := op(ctx, "c1", "")
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestMutations_InvalidateCache(t *testing.T) {
	svc, _, c := newTestCartService()
	ctx := context.Background()

	_, err := svc.GetCart(ctx, "c1")
	require.NoError(t, err)
	_, cached := c.cached("c1")
	require.True(t, cached)

	cart, err := svc.AddItem(ctx, AddItemInput{CartID: "c1", ItemID: "i1", Name: "Mug", Price: 100})
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	assert.Equal(t, 1, c.invalidations)

	cart, err = svc.GetCart(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1, "read after mutation must not see stale cache")
}

func TestGetCart_CacheErrorFallsBackToStore(t *testing.T) {
	svc, _, c := newTestCartService()
	ctx := context.Background()
	_, err := svc.AddItem(ctx, AddItemInput{CartID: "c1", ItemID: "i1", Name: "Mug", Price: 100})
	require.NoError(t, err)

	c.getErr = fmt.Errorf("redis down")
	cart, err := svc.GetCart(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestMutation_StorageError(t *testing.T) {
	svc, repo, _ := newTestCartService()
	ctx := context.Background()
	_, err := svc.EnsureCart(ctx, "c1")
	require.NoError(t, err)

	repo.setErr(errBoom)
	_, err = svc.IncreaseCartItem(ctx, "c1", "i1")
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestGetCart_SlowReadDoesNotOutliveMutation(t *testing.T) {
	svc, repo, c := newTestCartService()
	ctx := context.Background()
	mug := AddItemInput{CartID: "c1", ItemID: "i1", Name: "Mug", Price: 100}
	_, err := svc.AddItem(ctx, mug)
	require.NoError(t, err)

	entered, release := repo.holdNextList()
	slow := make(chan *domain.Cart, 1)
	go func() {
		cart, err := svc.GetCart(ctx, "c1")
		assert.NoError(t, err)
		slow <- cart
	}()
	<-entered

	_, err = svc.AddItem(ctx, mug)
	require.NoError(t, err)

	// started after the write returned, so it must not join the slow load
	done := make(chan *domain.Cart, 1)
	go func() {
		cart, err := svc.GetCart(ctx, "c1")
		assert.NoError(t, err)
		done <- cart
	}()
	select {
	case fresh := <-done:
		require.Len(t, fresh.Items, 1)
		assert.Equal(t, int64(2), fresh.Items[0].Quantity)
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("read after mutation waited on a load that started before it")
	}

	close(release)
	stale := <-slow
	require.Len(t, stale.Items, 1)
	assert.Equal(t, int64(1), stale.Items[0].Quantity)

	cached, ok := c.cached("c1")
	require.True(t, ok)
	assert.Equal(t, int64(2), cached[0].Quantity, "the slow load must not overwrite the cache")

	cart, err := svc.GetCart(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cart.Items[0].Quantity)
}

func TestAddItem_RejectsValuesPastIntRange(t *testing.T) {
	tests := []struct {
		name string
		in   AddItemInput
	}{
		{"price", AddItemInput{CartID: "c1", ItemID: "i1", Name: "x", Price: pricing.MaxValue + 1}},
		{"quantity", AddItemInput{CartID: "c1", ItemID: "i1", Name: "x", Price: 1, Quantity: pricing.MaxValue + 1}},
		{"line total", AddItemInput{CartID: "c1", ItemID: "i1", Name: "x", Price: pricing.MaxValue, Quantity: pricing.MaxValue}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestCartService()
			_, err := svc.AddItem(context.Background(), tt.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Empty(t, repo.items)
		})
	}
}

func TestItemMutations_StopAtTheLimit(t *testing.T) {
	svc, repo, _ := newTestCartService()
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, AddItemInput{CartID: "c1", ItemID: "a", Name: "A", Price: 1, Quantity: pricing.MaxValue})
	require.NoError(t, err)
	assert.Equal(t, pricing.MaxValue, pricing.SubTotalAmount(cart.Items))

	_, err = svc.IncreaseCartItem(ctx, "c1", "a")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.EqualError(t, err, domain.MsgLimitExceeded)

	_, err = svc.AddItem(ctx, AddItemInput{CartID: "c1", ItemID: "a", Name: "A", Price: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.AddItem(ctx, AddItemInput{CartID: "c1", ItemID: "b", Name: "B", Price: 1})
	assert.ErrorIs(t, err, domain.ErrValidation, "subtotal would pass the limit")

	q, _ := repo.quantity("c1", "a")
	assert.Equal(t, pricing.MaxValue, q)
	_, exists := repo.quantity("c1", "b")
	assert.False(t, exists)
}

func TestAddItem_UndoesIncrementThatRacedPastTheLimit(t *testing.T) {
	svc, repo, _ := newTestCartService()
	ctx := context.Background()
	_, err := svc.AddItem(ctx, AddItemInput{CartID: "c1", ItemID: "a", Name: "A", Price: 1, Quantity: pricing.MaxValue - 10})
	require.NoError(t, err)

	// another writer fills the cart between the limit check and this write
	repo.beforeUpsert = func(m *mockRepository) {
		k := itemKey{"c1", "a"}
		item := m.items[k]
		item.Quantity = pricing.MaxValue
		m.items[k] = item
	}

	_, err = svc.AddItem(ctx, AddItemInput{CartID: "c1", ItemID: "b", Name: "B", Price: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, exists := repo.quantity("c1", "b")
	assert.False(t, exists, "the new row is removed again")
	cart, err := svc.GetCart(ctx, "c1")
	require.NoError(t, err)
	assert.NoError(t, pricing.CheckLimits(cart.Items))
}
