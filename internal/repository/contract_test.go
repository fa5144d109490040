package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/fjod/cartql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func strPtr(s string) *string { return &s }

// testRepositoryContract exercises behaviour every CartRepository must share.
func testRepositoryContract(t *testing.T, repo CartRepository) {
	ctx := context.Background()

	t.Run("FindCartByID not found", func(t *testing.T) {
		cart, err := repo.FindCartByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrCartNotFound)
		assert.Nil(t, cart)
	})

	t.Run("CreateCart then find", func(t *testing.T) {
		created, err := repo.CreateCart(ctx, "c-create")
		require.NoError(t, err)
		assert.Equal(t, "c-create", created.ID)

		found, err := repo.FindCartByID(ctx, "c-create")
		require.NoError(t, err)
		assert.Equal(t, "c-create", found.ID)

		_, err = repo.CreateCart(ctx, "c-create")
		assert.ErrorIs(t, err, ErrCartExists)
	})

	t.Run("UpsertItem creates then increments", func(t *testing.T) {
		_, err := repo.CreateCart(ctx, "c-upsert")
		require.NoError(t, err)

		item := domain.CartItem{
			ID:          "i1",
			CartID:      "c-upsert",
			Name:        "Mug",
			Description: strPtr("Blue mug"),
			Price:       500,
		}
		saved, err := repo.UpsertItem(ctx, item, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(2), saved.Quantity)
		assert.Equal(t, "Mug", saved.Name)
		require.NotNil(t, saved.Description)
		assert.Equal(t, "Blue mug", *saved.Description)
		assert.Nil(t, saved.Image)

		item.Name = "Renamed"
		saved, err = repo.UpsertItem(ctx, item, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3), saved.Quantity)
		assert.Equal(t, "Mug", saved.Name, "existing rows keep their fields")

		items, err := repo.ListItems(ctx, "c-upsert")
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("same item id in two carts", func(t *testing.T) {
		for _, cartID := range []string{"c-a", "c-b"} {
			_, err := repo.CreateCart(ctx, cartID)
			require.NoError(t, err)
			_, err = repo.UpsertItem(ctx, domain.CartItem{ID: "shared", CartID: cartID, Name: "x", Price: 1}, 1)
			require.NoError(t, err)
		}

		_, err := repo.UpdateItemQuantity(ctx, "c-a", "shared", 4)
		require.NoError(t, err)

		b, err := repo.ListItems(ctx, "c-b")
		require.NoError(t, err)
		require.Len(t, b, 1)
		assert.Equal(t, int64(1), b[0].Quantity)
	})

	t.Run("UpdateItemQuantity", func(t *testing.T) {
		_, err := repo.CreateCart(ctx, "c-qty")
		require.NoError(t, err)
		_, err = repo.UpsertItem(ctx, domain.CartItem{ID: "i1", CartID: "c-qty", Name: "Pen", Price: 100}, 1)
		require.NoError(t, err)

		updated, err := repo.UpdateItemQuantity(ctx, "c-qty", "i1", -1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), updated.Quantity)

		updated, err = repo.UpdateItemQuantity(ctx, "c-qty", "i1", -1)
		require.NoError(t, err)
		assert.Equal(t, int64(-1), updated.Quantity)

		_, err = repo.UpdateItemQuantity(ctx, "c-qty", "nope", 1)
		assert.ErrorIs(t, err, ErrItemNotFound)
	})

	t.Run("DecrementItem deletes instead of going negative", func(t *testing.T) {
		_, err := repo.CreateCart(ctx, "c-dec")
		require.NoError(t, err)
		_, err = repo.UpsertItem(ctx, domain.CartItem{ID: "i1", CartID: "c-dec", Name: "Pen", Price: 100}, 2)
		require.NoError(t, err)

		item, deleted, err := repo.DecrementItem(ctx, "c-dec", "i1")
		require.NoError(t, err)
		assert.False(t, deleted)
		assert.Equal(t, int64(1), item.Quantity)

		item, deleted, err = repo.DecrementItem(ctx, "c-dec", "i1")
		require.NoError(t, err)
		assert.False(t, deleted)
		assert.Equal(t, int64(0), item.Quantity)

		item, deleted, err = repo.DecrementItem(ctx, "c-dec", "i1")
		require.NoError(t, err)
		assert.True(t, deleted)
		assert.Equal(t, "i1", item.ID)

		items, err := repo.ListItems(ctx, "c-dec")
		require.NoError(t, err)
		assert.Empty(t, items)

		_, _, err = repo.DecrementItem(ctx, "c-dec", "i1")
		assert.ErrorIs(t, err, ErrItemNotFound)
	})

	t.Run("concurrent decrements never store a negative quantity", func(t *testing.T) {
		_, err := repo.CreateCart(ctx, "c-dec-conc")
		require.NoError(t, err)
		_, err = repo.UpsertItem(ctx, domain.CartItem{ID: "hot", CartID: "c-dec-conc", Name: "Hot", Price: 10}, 3)
		require.NoError(t, err)

		var mu sync.Mutex
		deletes, missing := 0, 0
		var wg sync.WaitGroup
		for i := 0; i < 6; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				item, deleted, err := repo.DecrementItem(ctx, "c-dec-conc", "hot")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case errors.Is(err, ErrItemNotFound):
					missing++
				case err != nil:
					t.Errorf("decrement: %v", err)
				case deleted:
					deletes++
				default:
					assert.GreaterOrEqual(t, item.Quantity, int64(0))
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, deletes)
		assert.Equal(t, 2, missing)
		items, err := repo.ListItems(ctx, "c-dec-conc")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("DeleteItem", func(t *testing.T) {
		_, err := repo.CreateCart(ctx, "c-del")
		require.NoError(t, err)
		_, err = repo.UpsertItem(ctx, domain.CartItem{ID: "i1", CartID: "c-del", Name: "A", Price: 1}, 1)
		require.NoError(t, err)
		_, err = repo.UpsertItem(ctx, domain.CartItem{ID: "i2", CartID: "c-del", Name: "B", Price: 2, Image: strPtr("https://img/b.png")}, 1)
		require.NoError(t, err)

		require.NoError(t, repo.DeleteItem(ctx, "c-del", "i1"))
		assert.ErrorIs(t, repo.DeleteItem(ctx, "c-del", "i1"), ErrItemNotFound)

		items, err := repo.ListItems(ctx, "c-del")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "i2", items[0].ID)
		require.NotNil(t, items[0].Image)
		assert.Equal(t, "https://img/b.png", *items[0].Image)
	})

	t.Run("ListItems keeps insertion order", func(t *testing.T) {
		_, err := repo.CreateCart(ctx, "c-order")
		require.NoError(t, err)
		for _, id := range []string{"z", "a", "m"} {
			_, err := repo.UpsertItem(ctx, domain.CartItem{ID: id, CartID: "c-order", Name: id, Price: 1}, 1)
			require.NoError(t, err)
		}

		items, err := repo.ListItems(ctx, "c-order")
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, []string{"z", "a", "m"}, []string{items[0].ID, items[1].ID, items[2].ID})

		empty, err := repo.ListItems(ctx, "no-such-cart")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("concurrent upserts do not lose updates", func(t *testing.T) {
		_, err := repo.CreateCart(ctx, "c-conc")
		require.NoError(t, err)

		const n = 20
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < n; i++ {
			g.Go(func() error {
				_, err := repo.UpsertItem(gctx, domain.CartItem{ID: "hot", CartID: "c-conc", Name: "Hot", Price: 10}, 1)
				return err
			})
		}
		require.NoError(t, g.Wait())

		items, err := repo.ListItems(ctx, "c-conc")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, int64(n), items[0].Quantity)
	})

	t.Run("concurrent CreateCart yields one cart", func(t *testing.T) {
		var mu sync.Mutex
		results := map[string]int{}
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.CreateCart(ctx, "c-race")
				mu.Lock()
				results[fmt.Sprint(err)]++
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, results["<nil>"])
		assert.Equal(t, 9, results[ErrCartExists.Error()])
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})
}
