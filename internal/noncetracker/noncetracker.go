// Package noncetracker implements a per-source monotonic nonce, owned
// exclusively by one Dispatcher for the lifetime of its source.
package noncetracker

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/findoranetwork/feth/internal/rpcclient"
)

// RPC is the subset of rpcclient.Client's surface the Nonce Tracker needs,
// narrow enough that tests can substitute a fake without a live node.
type RPC interface {
	PendingNonce(ctx context.Context, address common.Address, policy rpcclient.RetryPolicy) (uint64, bool)
}

// Tracker owns the current nonce for one source address. Not safe for
// concurrent use — a source's Dispatcher is its sole owner.
type Tracker struct {
	client  RPC
	address common.Address
	policy  rpcclient.RetryPolicy
	current uint64
}

// New initializes a Tracker from the source's pending nonce. Returns an
// error if the node never answers — callers must skip the source rather
// than silently drop it.
func New(ctx context.Context, client RPC, address common.Address, policy rpcclient.RetryPolicy) (*Tracker, error) {
	nonce, ok := client.PendingNonce(ctx, address, policy)
	if !ok {
		return nil, fmt.Errorf("noncetracker: pending nonce unavailable for %s", address.Hex())
	}
	return &Tracker{client: client, address: address, policy: policy, current: nonce}, nil
}

// Peek returns the current tracked nonce.
func (t *Tracker) Peek() uint64 { return t.current }

// Advance increments the tracked nonce. Called only after a successful
// submission return.
func (t *Tracker) Advance() { t.current++ }

// Refresh re-queries the pending nonce from the node. If the refreshed
// value is lower than the tracked one, the tracked value is overwritten —
// the node has lost mempool state, or the tracker itself drifted, and in
// either case the higher stale value must not be kept.
func (t *Tracker) Refresh(ctx context.Context) {
	nonce, ok := t.client.PendingNonce(ctx, t.address, t.policy)
	if !ok {
		log.Warn("nonce refresh failed, keeping tracked value", "addr", t.address, "nonce", t.current)
		return
	}
	if nonce != t.current {
		log.Debug("nonce refreshed", "addr", t.address, "old", t.current, "new", nonce)
	}
	t.current = nonce
}
