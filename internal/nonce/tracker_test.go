package nonce

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/cycler/internal/chain"
	clierr "github.com/ggonzalez94/cycler/internal/errors"
)

type stubClient struct {
	chain.Client
	pending uint64
	err     error
}

func (s *stubClient) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	return s.pending, s.err
}

var testAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestNextIsStrictlyIncreasing(t *testing.T) {
	client := &stubClient{pending: 5}
	tracker := NewTracker(nil)

	// The node keeps answering 5 (pool hasn't seen our sends yet); the
	// tracker must keep counting past it.
	want := []uint64{5, 6, 7, 8}
	for i, expected := range want {
		got, err := tracker.Next(context.Background(), client, 137, testAddr)
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if got != expected {
			t.Fatalf("Next %d = %d, want %d", i, got, expected)
		}
	}
}

func TestNextFollowsNodeAhead(t *testing.T) {
	client := &stubClient{pending: 10}
	tracker := NewTracker(nil)

	if got, _ := tracker.Next(context.Background(), client, 137, testAddr); got != 10 {
		t.Fatalf("first Next = %d, want 10", got)
	}

	// Node jumps ahead (another process sent transactions).
	client.pending = 20
	if got, _ := tracker.Next(context.Background(), client, 137, testAddr); got != 20 {
		t.Fatalf("Next after node jump = %d, want 20", got)
	}
}

func TestInvalidateRederivesFromNode(t *testing.T) {
	client := &stubClient{pending: 3}
	tracker := NewTracker(nil)

	for i := 0; i < 3; i++ {
		if _, err := tracker.Next(context.Background(), client, 137, testAddr); err != nil {
			t.Fatal(err)
		}
	}

	tracker.Invalidate(137, testAddr)
	client.pending = 4
	got, err := tracker.Next(context.Background(), client, 137, testAddr)
	if err != nil {
		t.Fatal(err)
	}
	if got != 4 {
		t.Fatalf("Next after invalidate = %d, want node's pending 4", got)
	}
}

func TestResetClearsAllWallets(t *testing.T) {
	client := &stubClient{pending: 1}
	tracker := NewTracker(nil)
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")

	_, _ = tracker.Next(context.Background(), client, 137, testAddr)
	_, _ = tracker.Next(context.Background(), client, 137, other)
	tracker.Reset()

	got, err := tracker.Next(context.Background(), client, 137, testAddr)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Fatalf("Next after reset = %d, want 1", got)
	}
}

func TestNextRefusesWhenStopping(t *testing.T) {
	tracker := NewTracker(func() bool { return true })
	_, err := tracker.Next(context.Background(), &stubClient{}, 137, testAddr)
	if !clierr.Is(err, clierr.CodeStopped) {
		t.Fatalf("expected stopped error, got %v", err)
	}
}

func TestNextPropagatesNodeError(t *testing.T) {
	client := &stubClient{err: errors.New("rpc down")}
	tracker := NewTracker(nil)
	if _, err := tracker.Next(context.Background(), client, 137, testAddr); err == nil {
		t.Fatal("expected error from node failure")
	}
}

func TestIsNonceError(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"nonce too low", true},
		{"Nonce too high: expected 5", true},
		{"already known", true},
		{"replacement transaction underpriced", true},
		{"insufficient funds", false},
		{"execution reverted", false},
	}
	for _, tc := range cases {
		if got := IsNonceError(errors.New(tc.msg)); got != tc.want {
			t.Errorf("IsNonceError(%q) = %t, want %t", tc.msg, got, tc.want)
		}
	}
	if IsNonceError(nil) {
		t.Error("IsNonceError(nil) should be false")
	}
}
