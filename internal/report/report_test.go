package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ggonzalez94/cycler/internal/httpx"
)

func sampleTx() Transaction {
	return Transaction{
		Hash:         "0xabc",
		ChainID:      137,
		From:         "0xwallet",
		TokenIn:      "0xin",
		TokenOut:     "0xout",
		AmountIn:     decimal.NewFromFloat(0.02),
		AmountOut:    decimal.NewFromFloat(0.019),
		GasFeeAmount: decimal.NewFromFloat(0.002),
		TypeCode:     2,
	}
}

func TestSubmitSendsIdempotencyKey(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var tx Transaction
		if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
			t.Errorf("decode report body: %v", err)
		}
		if tx.Hash != "0xabc" || tx.TypeCode != 2 || tx.ChainID != 137 {
			t.Errorf("unexpected report payload: %+v", tx)
		}
		mu.Lock()
		keys = append(keys, tx.IdempotencyKey)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]int64{"pointsAwarded": 5})
	}))
	defer srv.Close()

	c := NewClient(httpx.New(time.Second, 0), srv.URL, nil)
	points, err := c.Submit(context.Background(), sampleTx())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if points != 5 {
		t.Fatalf("points = %d, want 5", points)
	}
	if _, err := c.Submit(context.Background(), sampleTx()); err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(keys) != 2 || keys[0] == "" || keys[1] == "" {
		t.Fatalf("idempotency keys missing: %v", keys)
	}
	if keys[0] == keys[1] {
		t.Fatal("each submission must carry a fresh idempotency key")
	}
}

func TestSubmitBestEffortSwallowsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(httpx.New(time.Second, 0), srv.URL, nil)
	// Must not panic or propagate; the swap already settled on chain.
	c.SubmitBestEffort(context.Background(), sampleTx())
}

func TestSubmitPropagatesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(httpx.New(time.Second, 0), srv.URL, nil)
	if _, err := c.Submit(context.Background(), sampleTx()); err == nil {
		t.Fatal("Submit should surface server failure")
	}
}
