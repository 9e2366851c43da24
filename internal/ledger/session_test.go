package ledger

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/amm-analytics/internal/errors"
	"github.com/amm-analytics/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionReadYourWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := NewSession(store)

	token := models.NewToken("0xaaa", 18)
	token.DerivedNative = models.Priced(decimal.RequireFromString("1.5"))
	require.NoError(t, s.Save(token))

	got, err := s.LoadToken(ctx, "0xaaa")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.DerivedNative.Valid)
	assert.True(t, got.DerivedNative.Decimal.Equal(decimal.RequireFromString("1.5")))
	assert.False(t, got.DerivedSecondary.Valid, "unpriced stays unpriced")

	// nothing reaches the store before commit
	assertCount(t, store, models.KindToken, 0)

	require.NoError(t, s.Commit(ctx))
	assertCount(t, store, models.KindToken, 1)

	fresh, err := NewSession(store).LoadToken(ctx, "0xaaa")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, 18, fresh.Decimals)
}

func TestSessionMissingEntity(t *testing.T) {
	s := NewSession(NewMemoryStore())
	pair, err := s.LoadPair(context.Background(), "0xnope")
	require.NoError(t, err)
	assert.Nil(t, pair)
}

func TestSessionDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	seed := NewSession(store)
	require.NoError(t, seed.Save(&models.Mint{ID: "0xtx-0", Liquidity: decimal.Zero}))
	require.NoError(t, seed.Commit(ctx))

	s := NewSession(store)
	s.Delete(models.KindMint, "0xtx-0")

	mint, err := s.LoadMint(ctx, "0xtx-0")
	require.NoError(t, err)
	assert.Nil(t, mint, "staged delete hides the stored entity")

	exists, err := s.Exists(ctx, models.KindMint, "0xtx-0")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Commit(ctx))
	assertCount(t, store, models.KindMint, 0)
}

func TestSessionDiscard(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := NewSession(store)

	require.NoError(t, s.Save(models.NewBundle(decimal.NewFromInt(1))))
	s.Discard()

	assert.Empty(t, s.Mutations())
	assertCount(t, store, models.KindBundle, 0)
	assert.Error(t, s.Commit(ctx), "a discarded session cannot commit")
}

func TestSessionMutationOrder(t *testing.T) {
	s := NewSession(NewMemoryStore())
	require.NoError(t, s.Save(&models.User{ID: "b"}))
	require.NoError(t, s.Save(&models.User{ID: "a"}))
	require.NoError(t, s.Save(&models.User{ID: "b"}))

	muts := s.Mutations()
	require.Len(t, muts, 2)
	assert.Equal(t, "b", muts[0].ID)
	assert.Equal(t, "a", muts[1].ID)
}

type failingStore struct {
	*MemoryStore
}

func (f *failingStore) Apply(ctx context.Context, mutations []Mutation) error {
	return errors.New("disk full")
}

func TestSessionCommitStorageError(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	s := NewSession(store)
	require.NoError(t, s.Save(&models.User{ID: "a"}))

	err := s.Commit(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryStorage, apperrors.CategoryOf(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func assertCount(t *testing.T, store *MemoryStore, kind models.Kind, want int64) {
	t.Helper()
	got, err := store.Count(context.Background(), kind)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
