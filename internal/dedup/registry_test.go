package dedup_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-tktt/avature-crawler/internal/dedup"
)

func TestMemoryRegistryClaim(t *testing.T) {
	t.Parallel()

	reg := dedup.NewMemoryRegistry()
	ctx := context.Background()

	claimed, err := reg.Claim(ctx, "15738")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = reg.Claim(ctx, "15738")
	require.NoError(t, err)
	assert.False(t, claimed, "second claim for the same id must lose")

	claimed, err = reg.Claim(ctx, "21285")
	require.NoError(t, err)
	assert.True(t, claimed)

	assert.Equal(t, 2, reg.Size())
}

func TestMemoryRegistryConcurrentClaimsSingleWinner(t *testing.T) {
	t.Parallel()

	reg := dedup.NewMemoryRegistry()
	ctx := context.Background()

	const goroutines = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := reg.Claim(ctx, "5710")
			assert.NoError(t, err)
			if claimed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one concurrent claimer may win")
	assert.Equal(t, 1, reg.Size())
}
