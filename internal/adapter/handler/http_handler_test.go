package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/wip-inventory/internal/core/domain"
)

type decoded struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  []string        `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, seed ...domain.InventoryRecord) (*httptest.Server, Services) {
	svc, _ := newTestServices(t, seed...)
	srv := httptest.NewServer(NewRouter(NewHTTPHandler(svc, zap.NewNop()), nil))
	t.Cleanup(srv.Close)
	return srv, svc
}

func do(t *testing.T, method, url string, body any) (int, decoded) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out decoded
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func transferBody(from, to string, qty int) map[string]any {
	return map[string]any{
		"part_id":       "PART001",
		"operation":     "90",
		"from_location": from,
		"to_location":   to,
		"quantity":      qty,
		"requested_by":  "jdoe",
	}
}

func TestHTTP_TransferCapped(t *testing.T) {
	srv, _ := newTestServer(t, floorStock(50))

	status, resp := do(t, http.MethodPost, srv.URL+"/api/transfers", transferBody("FLOOR", "RECEIVING", 80))
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	assert.Equal(t, "Transfer completed. 50 units transferred (capped to available quantity).", resp.Message)

	var result transferResponse
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, 80, result.OriginalQuantity)
	assert.Equal(t, 50, result.TransferredQuantity)
	assert.Equal(t, 0, result.RemainingQuantity)
	assert.True(t, result.WasSplit)
	assert.Equal(t, "62.5", result.Efficiency)
	assert.NotEmpty(t, result.TransactionID)

	status, resp = do(t, http.MethodGet, srv.URL+"/api/inventory?part_id=PART001", nil)
	require.Equal(t, http.StatusOK, status)
	var recs []recordResponse
	require.NoError(t, json.Unmarshal(resp.Data, &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, 0, recs[0].Quantity)
	assert.Equal(t, "RECEIVING", recs[1].Location)
	assert.Equal(t, 50, recs[1].Quantity)
}

func TestHTTP_ErrorStatuses(t *testing.T) {
	srv, _ := newTestServer(t, floorStock(0))

	status, resp := do(t, http.MethodPost, srv.URL+"/api/transfers", transferBody("FLOOR", "FLOOR", 5))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, []string{"source and destination are the same location."}, resp.Errors)

	status, _ = do(t, http.MethodPost, srv.URL+"/api/transfers", transferBody("FLOOR", "QC", 5))
	assert.Equal(t, http.StatusConflict, status)

	status, resp = do(t, http.MethodPost, srv.URL+"/api/inventory/remove", map[string]any{
		"part_id": "PART001", "operation": "90", "location": "FLOOR", "quantity": 1, "user": "jdoe",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, resp.Success)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/transfers", bytes.NewBufferString("{not json"))
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)

	status, _ = do(t, http.MethodGet, srv.URL+"/api/transactions", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodGet, srv.URL+"/api/transactions?part_id=PART001&limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodGet, srv.URL+"/api/transactions/summary?from=2025-02-01T00:00:00Z&to=2025-01-01T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHTTP_ValidateDoesNotMutate(t *testing.T) {
	srv, svc := newTestServer(t, floorStock(10))

	for i := 0; i < 2; i++ {
		status, resp := do(t, http.MethodPost, srv.URL+"/api/transfers/validate", transferBody("FLOOR", "NOWHERE", 0))
		require.Equal(t, http.StatusOK, status)

		var v validationResponse
		require.NoError(t, json.Unmarshal(resp.Data, &v))
		assert.False(t, v.IsValid)
		assert.Equal(t, []string{"quantity must be greater than zero.", "invalid location: NOWHERE"}, v.Errors)
	}

	recs, err := svc.Query.Search(context.Background(), "PART001", "90")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 10, recs[0].Quantity)
}

func TestHTTP_StockAndHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	stock := map[string]any{"part_id": "PART002", "operation": "10", "location": "STOCK", "quantity": 30, "user": "amy"}

	status, resp := do(t, http.MethodPost, srv.URL+"/api/inventory/add", stock)
	require.Equal(t, http.StatusOK, status, resp.Message)

	stock["quantity"] = 12
	status, _ = do(t, http.MethodPost, srv.URL+"/api/inventory/remove", stock)
	require.Equal(t, http.StatusOK, status)

	status, resp = do(t, http.MethodGet, srv.URL+"/api/transactions?user=amy&limit=10", nil)
	require.Equal(t, http.StatusOK, status)
	var txs []transactionResponse
	require.NoError(t, json.Unmarshal(resp.Data, &txs))
	require.Len(t, txs, 2)
	assert.Equal(t, "OUT", txs[0].Type)
	assert.Equal(t, "IN", txs[1].Type)

	from := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	to := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	status, resp = do(t, http.MethodGet, fmt.Sprintf("%s/api/transactions/summary?from=%s&to=%s", srv.URL, from, to), nil)
	require.Equal(t, http.StatusOK, status)
	var summary domain.TransactionSummary
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	assert.Equal(t, 2, summary.TotalTransactions)
	assert.Equal(t, 30, summary.QuantityIn)
	assert.Equal(t, 12, summary.QuantityOut)
}

func TestHTTP_HealthAndLocations(t *testing.T) {
	svc, _ := newTestServices(t)
	ready := false
	srv := httptest.NewServer(NewRouter(NewHTTPHandler(svc, zap.NewNop()), func() bool { return ready }))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ready = true
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, body := do(t, http.MethodGet, srv.URL+"/api/locations", nil)
	require.Equal(t, http.StatusOK, status)
	var codes []string
	require.NoError(t, json.Unmarshal(body.Data, &codes))
	assert.Contains(t, codes, "FLOOR")

	status, _ = do(t, http.MethodPost, srv.URL+"/api/locations/reload", nil)
	assert.Equal(t, http.StatusOK, status)
}

// Concurrent transfers out of one source over HTTP must never overdraw it.
func TestHTTP_ConcurrentTransfers(t *testing.T) {
	srv, svc := newTestServer(t, floorStock(20))

	var mu sync.Mutex
	moved := 0
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dest := []string{"RECEIVING", "QC", "SHIPPING"}[i%3]
			body, _ := json.Marshal(transferBody("FLOOR", dest, 3))
			resp, err := http.Post(srv.URL+"/api/transfers", "application/json", bytes.NewReader(body))
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return
			}

			var out struct {
				Data transferResponse `json:"data"`
			}
			if assert.NoError(t, json.NewDecoder(resp.Body).Decode(&out)) {
				mu.Lock()
				moved += out.Data.TransferredQuantity
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, moved)
	recs, err := svc.Query.Search(context.Background(), "PART001", "90")
	require.NoError(t, err)
	total := 0
	for _, r := range recs {
		assert.GreaterOrEqual(t, r.Quantity, 0)
		total += r.Quantity
	}
	assert.Equal(t, 20, total)
}
