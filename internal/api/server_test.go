package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amm-analytics/internal/circuitbreaker"
	"github.com/amm-analytics/internal/ledger"
	"github.com/amm-analytics/internal/models"
	"github.com/amm-analytics/internal/service"
	"github.com/amm-analytics/internal/types"
	"github.com/amm-analytics/internal/worker"
)

const (
	testFactory = "0x00000000000000000000000000000000000000f1"
	testPair    = "0x00000000000000000000000000000000000000a1"
	testToken   = "0x0000000000000000000000000000000000000010"
	testUser    = "0x0000000000000000000000000000000000000500"
	testTx      = "0x00000000000000000000000000000000000000000000000000000000000000aa"
)

type stubEngine struct{}

func (stubEngine) Stats() service.Stats {
	return service.Stats{
		Applied: 7,
		ByKind:  map[types.EventKind]uint64{types.KindSwap: 7},
	}
}

func (stubEngine) Performance() *service.PerformanceStats {
	return &service.PerformanceStats{TotalEvents: 7}
}

type stubWorker struct{}

func (stubWorker) GetStatus() *worker.SyncWorkerStatus {
	return &worker.SyncWorkerStatus{Running: true, LastBlockProcessed: 99, ChainHead: 100}
}

type stubBreaker struct{ state circuitbreaker.State }

func (b stubBreaker) GetStats() *circuitbreaker.Stats {
	return &circuitbreaker.Stats{Name: "rpc", State: b.state}
}

// failingStore fails every read
type failingStore struct{}

func (failingStore) Get(ctx context.Context, kind models.Kind, id string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Apply(ctx context.Context, mutations []ledger.Mutation) error {
	return errors.New("connection refused")
}

func seedStore(t *testing.T) *ledger.MemoryStore {
	t.Helper()
	store := ledger.NewMemoryStore()
	s := ledger.NewSession(store)

	token := models.NewToken(testToken, 18)
	token.Symbol = "TKN"
	token.DerivedNative = models.Priced(decimal.RequireFromString("0.5"))

	pair := models.NewPair(testPair, testToken, "0x0000000000000000000000000000000000000011")
	pair.Reserve0 = decimal.NewFromInt(100)

	factory := models.NewFactory(testFactory)
	factory.PairCount = 1
	factory.Pairs = []string{testPair}

	tx := models.NewTransaction(testTx, 42, 1700000000)
	swapID := models.RecordID(testTx, 0)
	tx.Swaps = append(tx.Swaps, swapID)
	swap := &models.Swap{
		ID:          swapID,
		Transaction: testTx,
		Pair:        testPair,
		Amount0In:   decimal.NewFromInt(1),
		AmountUSD:   decimal.NewFromInt(2),
	}

	position := &models.LiquidityPosition{
		ID:                    models.PositionID(testPair, testUser),
		Pair:                  testPair,
		User:                  testUser,
		LiquidityTokenBalance: decimal.NewFromInt(3),
	}

	for _, e := range []models.Entity{models.NewBundle(decimal.NewFromInt(2000)), token, pair, factory, tx, swap, position,
		&models.SyncStatus{ID: models.SyncStatusID, LastSyncedBlock: 42, HasEvent: true, ScannedToBlock: 42}} {
		require.NoError(t, s.Save(e))
	}
	require.NoError(t, s.Commit(context.Background()))
	return store
}

func newTestServer(t *testing.T, store ledger.Store, breaker BreakerStats) http.Handler {
	t.Helper()
	config := DefaultServerConfig("127.0.0.1", "0")
	return NewServer(config, ServerDeps{
		Store:     store,
		FactoryID: testFactory,
		Engine:    stubEngine{},
		Worker:    stubWorker{},
		Breaker:   breaker,
	}).Handler()
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, seedStore(t), stubBreaker{state: circuitbreaker.StateClosed})
	rec, body := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	h = newTestServer(t, seedStore(t), stubBreaker{state: circuitbreaker.StateOpen})
	_, body = get(t, h, "/health")
	assert.Equal(t, "degraded", body["status"])
}

func TestGetBundleAndFactory(t *testing.T) {
	h := newTestServer(t, seedStore(t), nil)

	rec, body := get(t, h, "/api/bundle")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2000", body["nativePriceUSD"])

	rec, body = get(t, h, "/api/factory")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["pairCount"])
	assert.Equal(t, []interface{}{testPair}, body["pairs"])
}

func TestGetToken(t *testing.T) {
	h := newTestServer(t, seedStore(t), nil)

	rec, body := get(t, h, "/api/tokens/0x0000000000000000000000000000000000000010")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TKN", body["symbol"])
	assert.Equal(t, "0.5", body["derivedNative"])

	rec, body = get(t, h, "/api/tokens/0x0000000000000000000000000000000000000099")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, errorCode(body))

	rec, body = get(t, h, "/api/tokens/not-an-address")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeInvalidInput, errorCode(body))
}

func TestGetPair_ChecksummedAddress(t *testing.T) {
	h := newTestServer(t, seedStore(t), nil)

	rec, body := get(t, h, "/api/pairs/0x00000000000000000000000000000000000000A1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testPair, body["id"])
	assert.Equal(t, "100", body["reserve0"])
}

func TestGetTransaction(t *testing.T) {
	h := newTestServer(t, seedStore(t), nil)

	rec, body := get(t, h, "/api/transactions/"+testTx)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(42), body["blockNumber"])

	swaps, ok := body["swapRecords"].([]interface{})
	require.True(t, ok)
	require.Len(t, swaps, 1)
	assert.Equal(t, "2", swaps[0].(map[string]interface{})["amountUSD"])
	assert.Empty(t, body["mintRecords"])

	rec, _ = get(t, h, "/api/transactions/0x1234")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = get(t, h, "/api/transactions/0x00000000000000000000000000000000000000000000000000000000000000bb")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPosition(t *testing.T) {
	h := newTestServer(t, seedStore(t), nil)

	rec, body := get(t, h, "/api/positions/"+testPair+"/"+testUser)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", body["liquidityTokenBalance"])

	rec, _ = get(t, h, "/api/positions/"+testPair+"/"+testFactory)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStats(t *testing.T) {
	h := newTestServer(t, seedStore(t), stubBreaker{state: circuitbreaker.StateClosed})

	rec, body := get(t, h, "/api/stats")
	assert.Equal(t, http.StatusOK, rec.Code)

	engine := body["engine"].(map[string]interface{})
	assert.Equal(t, float64(7), engine["applied"])

	entities := body["entities"].(map[string]interface{})
	assert.Equal(t, float64(1), entities[string(models.KindPair)])
	assert.Equal(t, float64(1), entities[string(models.KindSwap)])

	status := body["syncStatus"].(map[string]interface{})
	assert.Equal(t, float64(42), status["scannedToBlock"])

	assert.Equal(t, float64(99), body["worker"].(map[string]interface{})["lastBlockProcessed"])
	assert.Equal(t, "closed", body["rpcCircuit"].(map[string]interface{})["state"])
}

func TestStorageFailureIsInternalError(t *testing.T) {
	h := newTestServer(t, failingStore{}, nil)

	rec, body := get(t, h, "/api/bundle")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrCodeInternalError, errorCode(body))
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestRateLimitMiddleware(t *testing.T) {
	config := DefaultServerConfig("127.0.0.1", "0")
	config.RequestsPerSecond = 1
	config.Burst = 2
	h := NewServer(config, ServerDeps{Store: seedStore(t), FactoryID: testFactory}).Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec, _ := get(t, h, "/health")
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCORSHeaders(t *testing.T) {
	h := newTestServer(t, seedStore(t), nil)
	rec, _ := get(t, h, "/api/bundle")

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}
