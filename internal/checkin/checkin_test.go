package checkin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/cycler/internal/cache"
	"github.com/ggonzalez94/cycler/internal/httpx"
	"github.com/ggonzalez94/cycler/internal/wallet"
)

type apiStub struct {
	statusAt    string
	submitCode  int
	submitBody  string
	statusCalls atomic.Int64
	submitCalls atomic.Int64
}

func (a *apiStub) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /wallet/check-in/status", func(w http.ResponseWriter, r *http.Request) {
		a.statusCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"lastCheckInAt": a.statusAt})
	})
	mux.HandleFunc("POST /wallet/check-in", func(w http.ResponseWriter, r *http.Request) {
		a.submitCalls.Add(1)
		if a.submitCode != 0 {
			w.WriteHeader(a.submitCode)
			_, _ = w.Write([]byte(a.submitBody))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int64{"pointsAwarded": 10})
	})
	return httptest.NewServer(mux)
}

func testStore(t *testing.T) *cache.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := cache.Open(filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testAccount() *wallet.Account {
	return &wallet.Account{Address: common.HexToAddress("0xAbCd000000000000000000000000000000000001")}
}

func TestRunPerformsCheckIn(t *testing.T) {
	api := &apiStub{}
	srv := api.server()
	defer srv.Close()

	step := NewStep(httpx.New(time.Second, 0), srv.URL, testStore(t), nil)
	outcome, err := step.Run(context.Background(), testAccount())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Performed {
		t.Fatal("expected a check-in to be performed")
	}
	if outcome.PointsAwarded != 10 {
		t.Fatalf("points = %d, want 10", outcome.PointsAwarded)
	}
}

func TestRunMemoizesSameDay(t *testing.T) {
	api := &apiStub{}
	srv := api.server()
	defer srv.Close()

	step := NewStep(httpx.New(time.Second, 0), srv.URL, testStore(t), nil)
	acct := testAccount()

	if _, err := step.Run(context.Background(), acct); err != nil {
		t.Fatal(err)
	}
	before := api.statusCalls.Load() + api.submitCalls.Load()

	outcome, err := step.Run(context.Background(), acct)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Performed {
		t.Fatal("second run same day must be a no-op")
	}
	after := api.statusCalls.Load() + api.submitCalls.Load()
	if after != before {
		t.Fatalf("second run hit the API %d more times, want 0", after-before)
	}
}

func TestRunSkipsWhenStatusSaysToday(t *testing.T) {
	api := &apiStub{statusAt: time.Now().UTC().Format(time.RFC3339)}
	srv := api.server()
	defer srv.Close()

	step := NewStep(httpx.New(time.Second, 0), srv.URL, testStore(t), nil)
	outcome, err := step.Run(context.Background(), testAccount())
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Performed {
		t.Fatal("check-in should be skipped when status reports today")
	}
	if api.submitCalls.Load() != 0 {
		t.Fatal("submit endpoint must not be called")
	}
}

func TestRunComparesDaysInLocalTimezone(t *testing.T) {
	// UTC+14: a morning check-in and a late-evening run share the local
	// calendar day but fall on different UTC days. The step must treat
	// the wallet as already checked in and not re-submit.
	zone := time.FixedZone("UTC+14", 14*60*60)
	lastCheckIn := time.Date(2026, 1, 2, 9, 0, 0, 0, zone)
	runAt := time.Date(2026, 1, 2, 23, 0, 0, 0, zone)

	api := &apiStub{statusAt: lastCheckIn.Format(time.RFC3339)}
	srv := api.server()
	defer srv.Close()

	step := NewStep(httpx.New(time.Second, 0), srv.URL, nil, nil)
	step.now = func() time.Time { return runAt }

	outcome, err := step.Run(context.Background(), testAccount())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Performed {
		t.Fatal("same local day must be a no-op even across the UTC day boundary")
	}
	if api.submitCalls.Load() != 0 {
		t.Fatalf("submit endpoint called %d times, want 0", api.submitCalls.Load())
	}
}

func TestRunSubmitsOnNewLocalDay(t *testing.T) {
	zone := time.FixedZone("UTC+14", 14*60*60)
	lastCheckIn := time.Date(2026, 1, 1, 23, 0, 0, 0, zone)
	runAt := time.Date(2026, 1, 2, 1, 0, 0, 0, zone)

	api := &apiStub{statusAt: lastCheckIn.Format(time.RFC3339)}
	srv := api.server()
	defer srv.Close()

	step := NewStep(httpx.New(time.Second, 0), srv.URL, nil, nil)
	step.now = func() time.Time { return runAt }

	outcome, err := step.Run(context.Background(), testAccount())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Performed {
		t.Fatal("a new local day must perform a fresh check-in")
	}
}

func TestRunTreatsAlreadyCheckedInAsSuccess(t *testing.T) {
	api := &apiStub{
		statusAt:   time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339),
		submitCode: http.StatusBadRequest,
		submitBody: `{"message":"Already checked in today"}`,
	}
	srv := api.server()
	defer srv.Close()

	step := NewStep(httpx.New(time.Second, 0), srv.URL, testStore(t), nil)
	outcome, err := step.Run(context.Background(), testAccount())
	if err != nil {
		t.Fatalf("duplicate check-in rejection must map to success, got %v", err)
	}
	if outcome.Performed {
		t.Fatal("outcome should report no new check-in")
	}
}

func TestRunPropagatesOtherRejections(t *testing.T) {
	api := &apiStub{
		submitCode: http.StatusBadRequest,
		submitBody: `{"message":"wallet not registered"}`,
	}
	srv := api.server()
	defer srv.Close()

	step := NewStep(httpx.New(time.Second, 0), srv.URL, testStore(t), nil)
	if _, err := step.Run(context.Background(), testAccount()); err == nil {
		t.Fatal("unrelated rejection must surface as an error")
	}
}

func TestRunWorksWithoutStore(t *testing.T) {
	api := &apiStub{}
	srv := api.server()
	defer srv.Close()

	step := NewStep(httpx.New(time.Second, 0), srv.URL, nil, nil)
	outcome, err := step.Run(context.Background(), testAccount())
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Performed {
		t.Fatal("check-in should run without a cache store")
	}
}
