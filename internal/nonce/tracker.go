package nonce

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/cycler/internal/chain"
	clierr "github.com/ggonzalez94/cycler/internal/errors"
)

// Tracker hands out transaction nonces for many wallets without asking the
// node before every send. It remembers the last nonce it issued per
// (chain, wallet) and only reconciles against the node's pending count, so
// rapid back-to-back sends inside a cycle never collide.
type Tracker struct {
	mu   sync.Mutex
	last map[string]uint64

	stopping func() bool
}

// NewTracker builds a tracker. stopping is consulted before each reservation
// so no new nonce leaves the tracker once shutdown has begun; nil means never
// stopping.
func NewTracker(stopping func() bool) *Tracker {
	if stopping == nil {
		stopping = func() bool { return false }
	}
	return &Tracker{last: make(map[string]uint64), stopping: stopping}
}

func key(chainID int64, addr common.Address) string {
	return fmt.Sprintf("%d:%s", chainID, strings.ToLower(addr.Hex()))
}

// Next reserves the next nonce for the wallet: the maximum of the node's
// pending count and one past the last nonce issued locally. The reservation
// is recorded before returning, so concurrent callers never receive the same
// value. Address validity is a parse-time concern; a typed Address here is
// already well formed.
func (t *Tracker) Next(ctx context.Context, client chain.Client, chainID int64, addr common.Address) (uint64, error) {
	if t.stopping() {
		return 0, clierr.New(clierr.CodeStopped, "stop requested")
	}

	pending, err := client.PendingNonce(ctx, addr)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(chainID, addr)
	next := pending
	if last, ok := t.last[k]; ok && last+1 > next {
		next = last + 1
	}
	t.last[k] = next
	return next, nil
}

// Invalidate forgets the cached nonce for one wallet. Call it when a
// submission fails with a nonce error so the next reservation re-derives from
// the node.
func (t *Tracker) Invalidate(chainID int64, addr common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, key(chainID, addr))
}

// Reset clears every cached nonce. Wired to the end-of-cycle hook so a long
// idle period between cycles cannot leak stale sequence numbers.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = make(map[string]uint64)
}

// IsNonceError reports whether a node rejection looks nonce-related. Node
// implementations word these differently, so this is a substring match over
// the common variants.
func IsNonceError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"nonce too low", "nonce too high", "invalid nonce", "already known", "replacement transaction"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
