// Package rpcclient wraps ethclient with uniform per-call timeouts and the
// bounded/retrying semantics the Dispatcher and Funding Planner need.
package rpcclient

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/findoranetwork/feth/internal/rpcerr"
)

// RetryPolicy bounds a retrying call. MaxTries < 0 means unlimited
// retries (see Unlimited); MaxTries == 0 means a single attempt, same as
// MaxTries == 1; MaxTries > 1 caps the total number of attempts.
type RetryPolicy struct {
	Interval time.Duration
	MaxTries int
}

// Unlimited retries forever on the given interval.
func Unlimited(interval time.Duration) RetryPolicy {
	return RetryPolicy{Interval: interval, MaxTries: -1}
}

func (p RetryPolicy) done(attempt int) bool {
	if p.MaxTries < 0 {
		return false
	}
	limit := p.MaxTries
	if limit == 0 {
		limit = 1
	}
	return attempt >= limit
}

// Client is a timeout-bounded facade over a single JSON-RPC endpoint.
// Safe for concurrent use: the underlying *ethclient.Client serializes its
// own HTTP round trips internally, and this type holds no mutable state.
type Client struct {
	eth     *ethclient.Client
	timeout time.Duration
}

// Dial connects to url with the given default per-call timeout.
func Dial(ctx context.Context, url string, timeout time.Duration) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	eth, err := ethclient.DialContext(dialCtx, url)
	if err != nil {
		return nil, err
	}
	return &Client{eth: eth, timeout: timeout}, nil
}

// Close releases the underlying transport.
func (c *Client) Close() { c.eth.Close() }

// EthClient exposes the underlying *ethclient.Client for callers (contract
// mode's bind.ContractBackend) that need the full go-ethereum surface this
// facade doesn't wrap.
func (c *Client) EthClient() *ethclient.Client { return c.eth }

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// ChainID fetches the network's chain id. Absent on error.
func (c *Client) ChainID(ctx context.Context) (*big.Int, bool) {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()
	id, err := c.eth.ChainID(cctx)
	if err != nil {
		log.Warn("chain_id failed", "err", err)
		return nil, false
	}
	return id, true
}

// GasPrice samples the network's current suggested gas price. Absent on error.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, bool) {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()
	price, err := c.eth.SuggestGasPrice(cctx)
	if err != nil {
		log.Warn("gas_price failed", "err", err)
		return nil, false
	}
	return price, true
}

// BlockNumber returns the current chain head height. Absent on error.
func (c *Client) BlockNumber(ctx context.Context) (uint64, bool) {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()
	n, err := c.eth.BlockNumber(cctx)
	if err != nil {
		log.Warn("block_number failed", "err", err)
		return 0, false
	}
	return n, true
}

// Balance returns the address's balance, zero on any error.
func (c *Client) Balance(ctx context.Context, addr common.Address) *big.Int {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()
	bal, err := c.eth.BalanceAt(cctx, addr, nil)
	if err != nil {
		log.Warn("balance failed", "addr", addr, "err", err)
		return big.NewInt(0)
	}
	return bal
}

// Code returns the bytecode stored at addr, nil on any error.
func (c *Client) Code(ctx context.Context, addr common.Address) []byte {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()
	code, err := c.eth.CodeAt(cctx, addr, nil)
	if err != nil {
		log.Warn("code failed", "addr", addr, "err", err)
		return nil
	}
	return code
}

// PendingNonce fetches the mempool-aware next nonce for addr, retrying per
// policy. Once any value is returned it is the mempool-aware nonce.
func (c *Client) PendingNonce(ctx context.Context, addr common.Address, policy RetryPolicy) (uint64, bool) {
	attempt := 0
	for {
		cctx, cancel := c.withTimeout(ctx)
		nonce, err := c.eth.PendingNonceAt(cctx, addr)
		cancel()
		if err == nil {
			return nonce, true
		}
		attempt++
		log.Warn("pending_nonce failed", "addr", addr, "attempt", attempt, "err", err)
		if policy.done(attempt) {
			return 0, false
		}
		select {
		case <-ctx.Done():
			return 0, false
		case <-time.After(policy.Interval):
		}
	}
}

// TransactionReceipt fetches a receipt, nil on any transport error.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) *types.Receipt {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()
	receipt, err := c.eth.TransactionReceipt(cctx, hash)
	if err != nil {
		return nil
	}
	return receipt
}

// TransactionByHash fetches a transaction by hash for inspection commands.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.eth.TransactionByHash(cctx, hash)
}

// SendRawTransaction submits a signed transaction and classifies any error
// per the rpcerr taxonomy.
func (c *Client) SendRawTransaction(ctx context.Context, signed *types.Transaction) (common.Hash, error) {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.eth.SendTransaction(cctx, signed); err != nil {
		return common.Hash{}, rpcerr.Classify(err)
	}
	return signed.Hash(), nil
}

// BlockByNumber retrieves a full block, retrying per policy. num == nil
// means the chain head.
func (c *Client) BlockByNumber(ctx context.Context, num *big.Int, policy RetryPolicy) (*types.Block, bool) {
	attempt := 0
	for {
		cctx, cancel := c.withTimeout(ctx)
		blk, err := c.eth.BlockByNumber(cctx, num)
		cancel()
		if err == nil {
			return blk, true
		}
		attempt++
		log.Warn("block failed", "number", num, "attempt", attempt, "err", err)
		if policy.done(attempt) {
			return nil, false
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(policy.Interval):
		}
	}
}

// NetworkID returns the network's protocol id.
func (c *Client) NetworkID(ctx context.Context) (*big.Int, error) {
	cctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.eth.NetworkID(cctx)
}
