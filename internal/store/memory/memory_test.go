package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offlinepos/client/internal/domain"
	"offlinepos/client/internal/store"
)

func TestReplaceMasterDataIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded(domain.MasterData{
		Customers: []domain.Customer{{ID: 1, Name: "Old"}},
		Products:  []domain.Product{{ID: 1, Name: "Old product"}},
	})

	err := s.ReplaceMasterData(ctx, domain.MasterData{
		Customers: []domain.Customer{{ID: 2, Name: "New"}},
		Products:  []domain.Product{{ID: 5, Name: "A"}, {ID: 5, Name: "B"}},
	})
	require.ErrorIs(t, err, store.ErrDuplicateKey)

	customers, err := s.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Customer{{ID: 1, Name: "Old"}}, customers)
}

func TestReadersNeverSeeMixedGenerations(t *testing.T) {
	ctx := context.Background()
	generation := func(name string) domain.MasterData {
		return domain.MasterData{
			Customers: []domain.Customer{{ID: 1, Name: name}},
			Products:  []domain.Product{{ID: 1, Name: name}},
		}
	}
	s := NewSeeded(generation("g0"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			name := "g0"
			if i%2 == 1 {
				name = "g1"
			}
			_ = s.ReplaceMasterData(ctx, generation(name))
		}
	}()

	for i := 0; i < 200; i++ {
		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Customers)
		assert.Equal(t, 1, stats.Products)
	}
	wg.Wait()
}

func TestPendingQueue(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.AppendPendingSale(ctx, domain.PendingSale{IdempotencyKey: "a", Products: []domain.LineItem{{ProductID: 1}}})
	require.NoError(t, err)
	second, err := s.AppendPendingSale(ctx, domain.PendingSale{IdempotencyKey: "b", Products: []domain.LineItem{{ProductID: 2}}})
	require.NoError(t, err)
	assert.Equal(t, first+1, second)

	count, err := s.CountPendingSales(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, s.DeletePendingSale(ctx, first))
	require.ErrorIs(t, s.DeletePendingSale(ctx, first), store.ErrNotFound)

	pending, err := s.ListPendingSales(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].IdempotencyKey)

	// Identities are never reused after a delete.
	third, err := s.AppendPendingSale(ctx, domain.PendingSale{IdempotencyKey: "a"})
	require.NoError(t, err)
	assert.Equal(t, second+1, third)
}

func TestClosedStore(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	_, err := s.CountPendingSales(context.Background())
	require.ErrorIs(t, err, store.ErrNotOpen)
}
