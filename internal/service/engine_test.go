package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/amm-analytics/internal/errors"
	"github.com/amm-analytics/internal/ledger"
	"github.com/amm-analytics/internal/models"
	"github.com/amm-analytics/internal/pricing"
	"github.com/amm-analytics/internal/types"
)

func addr(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n))
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	nativeToken    = addr(1)
	secondaryToken = addr(2)
	tokenA         = addr(20)
	pairAddr       = addr(100)
	factoryAddr    = addr(900)
	user           = addr(500)
	router         = addr(501)
	feeTo          = addr(502)
)

type fakeLocator struct {
	pairs map[[2]common.Address]common.Address
}

func (f *fakeLocator) TryGetPair(ctx context.Context, a, b common.Address) (common.Address, bool) {
	return f.pairs[[2]common.Address{a, b}], true
}

type fakeBalances struct {
	balances map[common.Address]*big.Int
	err      error
}

func (f *fakeBalances) BalanceOf(ctx context.Context, lpToken, account common.Address) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.balances[account]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

type fakeTokens struct {
	err error
}

func (f *fakeTokens) TokenMetadata(ctx context.Context, token common.Address) (TokenMetadata, error) {
	if f.err != nil {
		return TokenMetadata{}, f.err
	}
	return TokenMetadata{Symbol: "TKN", Name: "Token", Decimals: 18}, nil
}

type fakeSink struct {
	records []models.Entity
	err     error
}

func (f *fakeSink) Record(ctx context.Context, records []models.Entity) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, records...)
	return nil
}

type failingApplyStore struct {
	*ledger.MemoryStore
}

func (f failingApplyStore) Apply(ctx context.Context, mutations []ledger.Mutation) error {
	return errors.New("connection reset")
}

// harness drives an engine over pair tokenA/native with monotonically increasing cursors
type harness struct {
	t        *testing.T
	ctx      context.Context
	store    ledger.Store
	engine   *Engine
	balances *fakeBalances
	tokens   *fakeTokens
	sink     *fakeSink
	block    uint64
	logIndex uint
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithStore(t, ledger.NewMemoryStore())
}

func newHarnessWithStore(t *testing.T, store ledger.Store) *harness {
	t.Helper()
	cfg := pricing.NewConfig(
		types.AddressID(nativeToken),
		types.AddressID(secondaryToken),
		[]string{types.AddressID(nativeToken)},
		nil,
		d("2"),
		d("0"),
	)
	locator := &fakeLocator{pairs: map[[2]common.Address]common.Address{
		{tokenA, nativeToken}: pairAddr,
		{nativeToken, tokenA}: pairAddr,
	}}
	h := &harness{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		balances: &fakeBalances{balances: make(map[common.Address]*big.Int)},
		tokens:   &fakeTokens{},
		sink:     &fakeSink{},
		block:    1,
	}
	h.engine = NewEngine(EngineDeps{
		Store:     store,
		Pricing:   cfg,
		Locator:   locator,
		Balances:  h.balances,
		Tokens:    h.tokens,
		Sink:      h.sink,
		FactoryID: types.AddressID(factoryAddr),
	})
	return h
}

func (h *harness) nextBlock() {
	h.block++
	h.logIndex = 0
}

func (h *harness) at(emitter common.Address, tx common.Hash) types.EventContext {
	c := types.EventContext{
		Address:     emitter,
		TxHash:      tx,
		TxFrom:      user,
		LogIndex:    h.logIndex,
		BlockNumber: h.block,
		Timestamp:   int64(1_700_000_000 + h.block),
	}
	h.logIndex++
	return c
}

func (h *harness) apply(ev types.Event) {
	h.t.Helper()
	require.NoError(h.t, h.engine.Apply(h.ctx, ev))
}

func (h *harness) reader() *ledger.Session {
	return ledger.Reader(h.store)
}

func (h *harness) pair() *models.Pair {
	h.t.Helper()
	p, err := h.reader().LoadPair(h.ctx, types.AddressID(pairAddr))
	require.NoError(h.t, err)
	require.NotNil(h.t, p)
	return p
}

func (h *harness) token(a common.Address) *models.Token {
	h.t.Helper()
	tok, err := h.reader().LoadToken(h.ctx, types.AddressID(a))
	require.NoError(h.t, err)
	require.NotNil(h.t, tok)
	return tok
}

func (h *harness) factory() *models.Factory {
	h.t.Helper()
	f, err := h.reader().LoadFactory(h.ctx, types.AddressID(factoryAddr))
	require.NoError(h.t, err)
	require.NotNil(h.t, f)
	return f
}

func (h *harness) transaction(hash common.Hash) *models.Transaction {
	h.t.Helper()
	tx, err := h.reader().LoadTransaction(h.ctx, lowerHash(hash))
	require.NoError(h.t, err)
	require.NotNil(h.t, tx)
	return tx
}

func lowerHash(hash common.Hash) string {
	return types.EventContext{TxHash: hash}.TxID()
}

func (h *harness) createPair() {
	h.apply(&types.PairCreated{
		EventContext: h.at(factoryAddr, common.HexToHash("0xc1")),
		Token0:       tokenA,
		Token1:       nativeToken,
		Pair:         pairAddr,
		Index:        big.NewInt(1),
	})
}

func (h *harness) sync(reserve0, reserve1 *big.Int) {
	h.nextBlock()
	h.apply(&types.Sync{
		EventContext: h.at(pairAddr, common.HexToHash("0x5a")),
		Reserve0:     reserve0,
		Reserve1:     reserve1,
	})
}

// priced leaves tokenA at 2 native and the pair with 100 tokenA / 200 native
func (h *harness) priced() {
	h.createPair()
	h.sync(ether(100), ether(200))
	h.sync(ether(100), ether(200))
}

func TestEngine_PairCreated(t *testing.T) {
	h := newHarness(t)
	h.createPair()

	pair := h.pair()
	assert.Equal(t, types.AddressID(tokenA), pair.Token0)
	assert.Equal(t, types.AddressID(nativeToken), pair.Token1)
	assert.True(t, pair.TotalSupply.IsZero())

	factory := h.factory()
	assert.Equal(t, int64(1), factory.PairCount)
	assert.Equal(t, []string{pair.ID}, factory.Pairs)

	bundle, err := h.reader().LoadBundle(h.ctx)
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.True(t, bundle.NativePriceUSD.IsZero())

	tok := h.token(tokenA)
	assert.Equal(t, 18, tok.Decimals)
	assert.Equal(t, "TKN", tok.Symbol)
	assert.False(t, tok.DerivedNative.Valid)

	// a repeated registration changes nothing
	h.createPair()
	assert.Equal(t, int64(1), h.factory().PairCount)
}

func TestEngine_PairCreatedMetadataFailureSkips(t *testing.T) {
	h := newHarness(t)
	h.tokens.err = errors.New("execution reverted")
	h.createPair()

	exists, err := h.reader().Exists(h.ctx, models.KindPair, types.AddressID(pairAddr))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, uint64(1), h.engine.Stats().Skipped[apperrors.CategoryExternalCall])
}

func TestEngine_SyncPricesTokens(t *testing.T) {
	h := newHarness(t)
	h.createPair()

	// the first update prices against the pair's previous (empty) native reserve
	h.sync(ether(100), ether(200))
	assert.True(t, h.token(tokenA).DerivedNative.Decimal.IsZero())
	assert.True(t, h.token(nativeToken).DerivedNative.Decimal.Equal(d("1")))

	h.sync(ether(100), ether(200))

	tokA := h.token(tokenA)
	require.True(t, tokA.DerivedNative.Valid)
	assert.True(t, tokA.DerivedNative.Decimal.Equal(d("2")), tokA.DerivedNative.Decimal.String())
	assert.True(t, tokA.TotalLiquidity.Equal(d("100")))

	pair := h.pair()
	assert.True(t, pair.Token0Price.Equal(d("0.5")))
	assert.True(t, pair.Token1Price.Equal(d("2")))
	assert.True(t, pair.ReserveNative.Equal(d("400")))
	assert.True(t, pair.ReserveUSD.Equal(d("400")))
	assert.True(t, pair.TrackedReserveNative.Equal(d("400")))

	factory := h.factory()
	assert.True(t, factory.TotalLiquidityNative.Equal(d("400")), factory.TotalLiquidityNative.String())
	assert.True(t, factory.TotalLiquidityUSD.Equal(d("400")))

	bundle, err := h.reader().LoadBundle(h.ctx)
	require.NoError(t, err)
	assert.True(t, bundle.NativePriceUSD.Equal(d("1")))
}

func TestEngine_SwapTracksVolume(t *testing.T) {
	h := newHarness(t)
	h.priced()

	h.nextBlock()
	hash := common.HexToHash("0x5e")
	h.apply(&types.Swap{
		EventContext: h.at(pairAddr, hash),
		Sender:       router,
		Amount0In:    ether(10),
		Amount1In:    big.NewInt(0),
		Amount0Out:   big.NewInt(0),
		Amount1Out:   ether(20),
		To:           user,
	})

	// valued on the whitelisted token1 leg, equal to 10 tokenA x 2 native x 1 USD
	tokA := h.token(tokenA)
	bundle, err := h.reader().LoadBundle(h.ctx)
	require.NoError(t, err)
	expected := d("10").Mul(tokA.DerivedNative.Decimal).Mul(bundle.NativePriceUSD)

	pair := h.pair()
	assert.True(t, pair.VolumeUSD.Equal(expected), pair.VolumeUSD.String())
	assert.True(t, pair.VolumeUSD.Equal(d("20")), pair.VolumeUSD.String())
	assert.True(t, pair.VolumeToken0.Equal(d("10")))
	assert.True(t, pair.VolumeToken1.Equal(d("20")))
	assert.True(t, pair.UntrackedVolumeUSD.Equal(d("20")))
	assert.Equal(t, int64(1), pair.TxCount)

	factory := h.factory()
	assert.True(t, factory.TotalVolumeUSD.Equal(d("20")))
	assert.True(t, factory.TotalVolumeNative.Equal(d("20")))
	assert.Equal(t, int64(1), factory.TxCount)

	tokA = h.token(tokenA)
	assert.True(t, tokA.TradeVolume.Equal(d("10")))
	assert.True(t, tokA.TradeVolumeUSD.Equal(d("20")))

	tx := h.transaction(hash)
	require.Len(t, tx.Swaps, 1)
	swap, err := h.reader().LoadSwap(h.ctx, tx.Swaps[0])
	require.NoError(t, err)
	require.NotNil(t, swap)
	assert.Equal(t, models.RecordID(tx.ID, 0), swap.ID)
	assert.True(t, swap.AmountUSD.Equal(d("20")))
	assert.Equal(t, types.AddressID(user), swap.From)

	require.Len(t, h.sink.records, 1)
	assert.Equal(t, swap.ID, h.sink.records[0].EntityID())
}

func TestEngine_SwapOnUntrackedPairFallsBackToDerivedValue(t *testing.T) {
	h := newHarness(t)
	h.engine.accountant = pricing.NewAccountant(pricing.NewConfig(
		types.AddressID(nativeToken), types.AddressID(secondaryToken),
		[]string{types.AddressID(nativeToken)}, []string{types.AddressID(pairAddr)},
		d("2"), d("0"),
	))
	h.priced()

	h.nextBlock()
	hash := common.HexToHash("0x5f")
	h.apply(&types.Swap{
		EventContext: h.at(pairAddr, hash),
		Sender:       router,
		Amount0In:    ether(10),
		Amount1In:    big.NewInt(0),
		Amount0Out:   big.NewInt(0),
		Amount1Out:   ether(20),
		To:           user,
	})

	pair := h.pair()
	assert.True(t, pair.VolumeUSD.IsZero())
	assert.True(t, pair.UntrackedVolumeUSD.Equal(d("20")))

	swap, err := h.reader().LoadSwap(h.ctx, models.RecordID(lowerHash(hash), 0))
	require.NoError(t, err)
	require.NotNil(t, swap)
	assert.True(t, swap.AmountUSD.Equal(d("20")))
}

func TestEngine_SwapBeforePricingIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.createPair()

	h.nextBlock()
	h.apply(&types.Swap{
		EventContext: h.at(pairAddr, common.HexToHash("0x5e")),
		Sender:       router,
		Amount0In:    ether(1),
		Amount1In:    big.NewInt(0),
		Amount0Out:   big.NewInt(0),
		Amount1Out:   ether(1),
		To:           user,
	})

	assert.Equal(t, int64(0), h.pair().TxCount)
	stats := h.engine.Stats()
	assert.Equal(t, uint64(1), stats.Skipped[apperrors.CategoryNullDerivedValue])
	assert.Empty(t, h.sink.records)
}

func TestEngine_UnknownPairSkippedAndCursorAdvances(t *testing.T) {
	h := newHarness(t)
	h.priced()

	h.nextBlock()
	ev := &types.Sync{
		EventContext: h.at(addr(777), common.HexToHash("0x77")),
		Reserve0:     ether(1),
		Reserve1:     ether(1),
	}
	h.apply(ev)

	stats := h.engine.Stats()
	assert.Equal(t, uint64(1), stats.Skipped[apperrors.CategoryMissingEntity])
	assert.Equal(t, ev.Cursor(), stats.LastCursor)
	assert.Equal(t, uint64(3), stats.Applied)

	status, err := h.reader().LoadSyncStatus(h.ctx)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, ev.Cursor(), status.Cursor())
}

func TestEngine_DuplicateEventIgnored(t *testing.T) {
	h := newHarness(t)
	h.priced()

	h.nextBlock()
	swap := &types.Swap{
		EventContext: h.at(pairAddr, common.HexToHash("0x5e")),
		Sender:       router,
		Amount0In:    ether(10),
		Amount1In:    big.NewInt(0),
		Amount0Out:   big.NewInt(0),
		Amount1Out:   ether(20),
		To:           user,
	}
	h.apply(swap)
	h.apply(swap)

	assert.True(t, h.pair().VolumeUSD.Equal(d("20")))
	assert.Equal(t, uint64(1), h.engine.Stats().Duplicates)
	assert.Len(t, h.sink.records, 1)
}

func TestEngine_LockedLiquidityTransferIgnored(t *testing.T) {
	h := newHarness(t)
	h.priced()

	h.nextBlock()
	hash := common.HexToHash("0xa1")
	h.apply(&types.Transfer{
		EventContext: h.at(pairAddr, hash),
		From:         types.ZeroAddress,
		To:           types.ZeroAddress,
		Value:        big.NewInt(1000),
	})

	assert.True(t, h.pair().TotalSupply.IsZero())
	tx, err := h.reader().LoadTransaction(h.ctx, lowerHash(hash))
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestEngine_LockedLiquidityToPairOpensOnePendingMint(t *testing.T) {
	h := newHarness(t)
	h.priced()

	h.nextBlock()
	hash := common.HexToHash("0xe1")
	h.balances.balances[user] = ether(5)
	h.apply(&types.Transfer{
		EventContext: h.at(pairAddr, hash),
		From:         types.ZeroAddress,
		To:           pairAddr,
		Value:        big.NewInt(1000),
	})
	h.apply(&types.Transfer{
		EventContext: h.at(pairAddr, hash),
		From:         types.ZeroAddress,
		To:           user,
		Value:        ether(5),
	})

	pairID := types.AddressID(pairAddr)
	zeroID := types.AddressID(types.ZeroAddress)

	tx := h.transaction(hash)
	require.Len(t, tx.Mints, 1)
	mint, err := h.reader().LoadMint(h.ctx, tx.Mints[0])
	require.NoError(t, err)
	require.NotNil(t, mint)
	assert.False(t, mint.IsComplete())
	assert.Equal(t, pairID, mint.To)
	assert.True(t, mint.Liquidity.Equal(d("0.000000000000001")), mint.Liquidity.String())

	// the send to the pair also opens a direct-send burn, and nothing absorbs the mint
	require.Len(t, tx.Burns, 1)
	burn, err := h.reader().LoadBurn(h.ctx, tx.Burns[0])
	require.NoError(t, err)
	require.NotNil(t, burn)
	assert.True(t, burn.NeedsComplete)
	require.NotNil(t, burn.Sender)
	assert.Equal(t, zeroID, *burn.Sender)
	assert.Nil(t, burn.FeeTo)
	assert.False(t, burn.FeeLiquidity.Valid)

	assert.True(t, h.pair().TotalSupply.Equal(d("5.000000000000001")))

	for _, id := range []string{zeroID, pairID, types.AddressID(user)} {
		u, err := h.reader().LoadUser(h.ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, u, id)
	}

	h.apply(&types.Mint{
		EventContext: h.at(pairAddr, hash),
		Sender:       router,
		Amount0:      ether(1),
		Amount1:      ether(2),
	})

	mint, err = h.reader().LoadMint(h.ctx, tx.Mints[0])
	require.NoError(t, err)
	assert.True(t, mint.IsComplete())

	// the completed mint is credited to its recipient, the pair itself
	pairPos, err := h.reader().LoadPosition(h.ctx, models.PositionID(pairID, pairID))
	require.NoError(t, err)
	require.NotNil(t, pairPos)
	assert.True(t, pairPos.LiquidityTokenBalance.IsZero())
	snapshot, err := h.reader().LoadSnapshot(h.ctx, SnapshotID(pairPos.ID, h.block, 2))
	require.NoError(t, err)
	assert.NotNil(t, snapshot)

	userPos, err := h.reader().LoadPosition(h.ctx, models.PositionID(pairID, types.AddressID(user)))
	require.NoError(t, err)
	require.NotNil(t, userPos)
	assert.True(t, userPos.LiquidityTokenBalance.Equal(d("5")))

	assert.Equal(t, int64(2), h.pair().LiquidityProviderCount)
}

func TestEngine_RepeatedDirectSendKeepsOneOpenBurn(t *testing.T) {
	h := newHarness(t)
	h.priced()
	h.mint(common.HexToHash("0xa2"), 10)

	h.nextBlock()
	hash := common.HexToHash("0xb4")
	h.balances.balances[user] = big.NewInt(0)
	for _, amount := range []int64{4, 6} {
		h.apply(&types.Transfer{
			EventContext: h.at(pairAddr, hash),
			From:         user,
			To:           pairAddr,
			Value:        ether(amount),
		})
	}

	tx := h.transaction(hash)
	require.Len(t, tx.Burns, 1)
	burn, err := h.reader().LoadBurn(h.ctx, tx.Burns[0])
	require.NoError(t, err)
	require.NotNil(t, burn)
	assert.True(t, burn.NeedsComplete)
	assert.True(t, burn.Liquidity.Equal(d("10")), burn.Liquidity.String())
	assert.Equal(t, types.AddressID(user), *burn.Sender)

	h.apply(&types.Transfer{
		EventContext: h.at(pairAddr, hash),
		From:         pairAddr,
		To:           types.ZeroAddress,
		Value:        ether(10),
	})

	tx = h.transaction(hash)
	require.Len(t, tx.Burns, 1)
	burn, err = h.reader().LoadBurn(h.ctx, tx.Burns[0])
	require.NoError(t, err)
	assert.False(t, burn.NeedsComplete)
	assert.True(t, h.pair().TotalSupply.IsZero())
}

// mint runs the transfer and Mint events of adding liquidity for user
func (h *harness) mint(hash common.Hash, liquidity int64) {
	h.nextBlock()
	h.balances.balances[user] = ether(liquidity)
	h.apply(&types.Transfer{
		EventContext: h.at(pairAddr, hash),
		From:         types.ZeroAddress,
		To:           user,
		Value:        ether(liquidity),
	})
	h.apply(&types.Mint{
		EventContext: h.at(pairAddr, hash),
		Sender:       router,
		Amount0:      ether(1),
		Amount1:      ether(2),
	})
}

func TestEngine_MintSequence(t *testing.T) {
	h := newHarness(t)
	h.priced()

	hash := common.HexToHash("0xa2")
	h.mint(hash, 10)

	tx := h.transaction(hash)
	require.Len(t, tx.Mints, 1)
	mint, err := h.reader().LoadMint(h.ctx, tx.Mints[0])
	require.NoError(t, err)
	require.NotNil(t, mint)

	assert.True(t, mint.IsComplete())
	assert.Equal(t, types.AddressID(router), *mint.Sender)
	assert.Equal(t, types.AddressID(user), mint.To)
	assert.True(t, mint.Liquidity.Equal(d("10")))
	assert.True(t, mint.Amount0.Decimal.Equal(d("1")))
	assert.True(t, mint.AmountUSD.Decimal.Equal(d("4")), mint.AmountUSD.Decimal.String())
	require.NotNil(t, mint.LogIndex)
	assert.Equal(t, uint(1), *mint.LogIndex)

	pair := h.pair()
	assert.True(t, pair.TotalSupply.Equal(d("10")))
	assert.Equal(t, int64(1), pair.LiquidityProviderCount)
	assert.Equal(t, int64(1), pair.TxCount)

	pos, err := h.reader().LoadPosition(h.ctx, models.PositionID(pair.ID, types.AddressID(user)))
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.LiquidityTokenBalance.Equal(d("10")))

	snapshot, err := h.reader().LoadSnapshot(h.ctx, SnapshotID(pos.ID, h.block, 1))
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.True(t, snapshot.Token0PriceUSD.Equal(d("2")))
	assert.True(t, snapshot.LiquidityTokenTotalSupply.Equal(d("10")))

	require.Len(t, h.sink.records, 1)
	assert.Equal(t, mint.ID, h.sink.records[0].EntityID())
}

func TestEngine_ConsecutiveMintLegsShareOnePendingMint(t *testing.T) {
	h := newHarness(t)
	h.priced()

	h.nextBlock()
	hash := common.HexToHash("0xa3")
	h.apply(&types.Transfer{
		EventContext: h.at(pairAddr, hash),
		From:         types.ZeroAddress,
		To:           user,
		Value:        ether(3),
	})
	h.apply(&types.Transfer{
		EventContext: h.at(pairAddr, hash),
		From:         types.ZeroAddress,
		To:           feeTo,
		Value:        ether(1),
	})

	tx := h.transaction(hash)
	require.Len(t, tx.Mints, 1)
	assert.True(t, h.pair().TotalSupply.Equal(d("4")))
}

func TestEngine_BurnAbsorbsFeeMint(t *testing.T) {
	h := newHarness(t)
	h.priced()
	h.mint(common.HexToHash("0xa2"), 10)

	h.nextBlock()
	hash := common.HexToHash("0xb1")
	h.balances.balances[user] = big.NewInt(0)
	h.apply(&types.Transfer{
		EventContext: h.at(pairAddr, hash),
		From:         user,
		To:           pairAddr,
		Value:        ether(10),
	})
	h.apply(&types.Transfer{
		EventContext: h.at(pairAddr, hash),
		From:         types.ZeroAddress,
		To:           feeTo,
		Value:        ether(1),
	})
	h.apply(&types.Transfer{
		EventContext: h.at(pairAddr, hash),
		From:         pairAddr,
		To:           types.ZeroAddress,
		Value:        ether(10),
	})
	h.apply(&types.Burn{
		EventContext: h.at(pairAddr, hash),
		Sender:       router,
		Amount0:      ether(1),
		Amount1:      ether(2),
		To:           user,
	})

	tx := h.transaction(hash)
	assert.Empty(t, tx.Mints)
	require.Len(t, tx.Burns, 1)

	feeMint, err := h.reader().LoadMint(h.ctx, models.RecordID(tx.ID, 0))
	require.NoError(t, err)
	assert.Nil(t, feeMint)

	burn, err := h.reader().LoadBurn(h.ctx, tx.Burns[0])
	require.NoError(t, err)
	require.NotNil(t, burn)
	assert.False(t, burn.NeedsComplete)
	require.NotNil(t, burn.FeeTo)
	assert.Equal(t, types.AddressID(feeTo), *burn.FeeTo)
	assert.True(t, burn.FeeLiquidity.Decimal.Equal(d("1")))
	assert.Equal(t, types.AddressID(user), *burn.Sender)
	assert.True(t, burn.Liquidity.Equal(d("10")))
	assert.True(t, burn.AmountUSD.Decimal.Equal(d("4")))

	assert.True(t, h.pair().TotalSupply.Equal(d("1")), h.pair().TotalSupply.String())

	pos, err := h.reader().LoadPosition(h.ctx, models.PositionID(types.AddressID(pairAddr), types.AddressID(user)))
	require.NoError(t, err)
	assert.True(t, pos.LiquidityTokenBalance.IsZero())
}

func TestEngine_MintBurnRoundTripRestoresSupply(t *testing.T) {
	h := newHarness(t)
	h.priced()
	before := h.pair().TotalSupply

	h.mint(common.HexToHash("0xa2"), 7)
	assert.True(t, h.pair().TotalSupply.Equal(before.Add(d("7"))))

	h.nextBlock()
	hash := common.HexToHash("0xb2")
	h.balances.balances[user] = big.NewInt(0)
	h.apply(&types.Transfer{
		EventContext: h.at(pairAddr, hash),
		From:         user,
		To:           pairAddr,
		Value:        ether(7),
	})
	h.apply(&types.Transfer{
		EventContext: h.at(pairAddr, hash),
		From:         pairAddr,
		To:           types.ZeroAddress,
		Value:        ether(7),
	})
	h.apply(&types.Burn{
		EventContext: h.at(pairAddr, hash),
		Sender:       router,
		Amount0:      ether(1),
		Amount1:      ether(2),
		To:           user,
	})

	pair := h.pair()
	assert.True(t, pair.TotalSupply.Equal(before), pair.TotalSupply.String())
	assert.True(t, pair.TotalSupply.IsZero())

	tx := h.transaction(hash)
	assert.Empty(t, tx.Mints)
	require.Len(t, tx.Burns, 1)
	burn, err := h.reader().LoadBurn(h.ctx, tx.Burns[0])
	require.NoError(t, err)
	require.NotNil(t, burn)
	assert.False(t, burn.NeedsComplete)
	assert.Nil(t, burn.FeeTo)
	assert.True(t, burn.Liquidity.Equal(d("7")))
	require.True(t, burn.Amount0.Valid)
	assert.True(t, burn.Amount0.Decimal.Equal(d("1")))
	require.NotNil(t, burn.LogIndex)
	assert.Equal(t, uint(2), *burn.LogIndex)

	require.Len(t, h.sink.records, 2)
	assert.Equal(t, burn.ID, h.sink.records[1].EntityID())
}

func TestEngine_BurnWithoutSenderIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.priced()

	h.nextBlock()
	hash := common.HexToHash("0xb3")
	h.apply(&types.Transfer{
		EventContext: h.at(pairAddr, hash),
		From:         pairAddr,
		To:           types.ZeroAddress,
		Value:        ether(1),
	})
	h.apply(&types.Burn{
		EventContext: h.at(pairAddr, hash),
		Sender:       router,
		Amount0:      ether(1),
		Amount1:      ether(1),
		To:           user,
	})

	assert.Equal(t, uint64(1), h.engine.Stats().Skipped[apperrors.CategoryMissingEntity])
}

func TestEngine_BalanceFailureSkipsTransfer(t *testing.T) {
	h := newHarness(t)
	h.priced()
	h.balances.err = errors.New("rpc timeout")

	h.nextBlock()
	hash := common.HexToHash("0xa4")
	h.apply(&types.Transfer{
		EventContext: h.at(pairAddr, hash),
		From:         types.ZeroAddress,
		To:           user,
		Value:        ether(1),
	})

	assert.True(t, h.pair().TotalSupply.IsZero())
	tx, err := h.reader().LoadTransaction(h.ctx, lowerHash(hash))
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.Equal(t, uint64(1), h.engine.Stats().Skipped[apperrors.CategoryExternalCall])
}

func TestEngine_StorageErrorIsReturned(t *testing.T) {
	h := newHarnessWithStore(t, failingApplyStore{ledger.NewMemoryStore()})

	err := h.engine.Apply(h.ctx, &types.PairCreated{
		EventContext: h.at(factoryAddr, common.HexToHash("0xc1")),
		Token0:       tokenA,
		Token1:       nativeToken,
		Pair:         pairAddr,
		Index:        big.NewInt(1),
	})
	require.Error(t, err)
	assert.False(t, apperrors.IsSkippable(err))
	assert.Equal(t, apperrors.CategoryStorage, apperrors.CategoryOf(err))
	assert.Equal(t, uint64(0), h.engine.Stats().Applied)
}

func TestEngine_SinkFailureDoesNotFailApply(t *testing.T) {
	h := newHarness(t)
	h.priced()
	h.sink.err = errors.New("clickhouse down")

	h.mint(common.HexToHash("0xa2"), 1)

	assert.Equal(t, uint64(1), h.engine.Stats().SinkErrors)
	assert.True(t, h.pair().TotalSupply.Equal(d("1")))
}

func TestEngine_MarkScanned(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.engine.MarkScanned(h.ctx, 42))
	require.NoError(t, h.engine.MarkScanned(h.ctx, 10))

	status, err := h.reader().LoadSyncStatus(h.ctx)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, uint64(42), status.ScannedToBlock)
	assert.False(t, status.HasEvent)
}

func TestSnapshotID(t *testing.T) {
	a := SnapshotID("0xpair-0xuser", 10, 3)
	assert.Equal(t, a, SnapshotID("0xpair-0xuser", 10, 3))
	assert.NotEqual(t, a, SnapshotID("0xpair-0xuser", 10, 4))
	assert.NotEqual(t, a, SnapshotID("0xpair-0xuser", 11, 3))
}
