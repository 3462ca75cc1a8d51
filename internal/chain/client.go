// Package chain wraps the JSON-RPC client, the oracle bot signer, and
// transaction lifecycle management (nonce, fees, confirmations, revert
// classification).
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/bitredict/backend/internal/domain"
)

// Client wraps an ethclient with per-call timeouts and taxonomy-classified
// failures for reads.
type Client struct {
	eth         *ethclient.Client
	readTimeout time.Duration
	logger      *slog.Logger
}

// Dial connects to the RPC endpoint and verifies the chain id matches the
// configured one. A mismatch is fatal-config: transactions signed for the
// wrong chain would burn the nonce sequence.
func Dial(ctx context.Context, rpcURL string, wantChainID int64, readTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	cctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	chainID, err := eth.ChainID(cctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: query chain id: %w", err)
	}
	if chainID.Int64() != wantChainID {
		eth.Close()
		return nil, domain.FatalConfig(fmt.Errorf("chain: connected to chain %d, configured %d", chainID.Int64(), wantChainID))
	}

	return &Client{
		eth:         eth,
		readTimeout: readTimeout,
		logger:      logger.With(slog.String("component", "chain")),
	}, nil
}

// Close shuts down the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Eth exposes the underlying client for the transaction manager.
func (c *Client) Eth() *ethclient.Client { return c.eth }

// BlockNumber returns the current head block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	cctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()
	n, err := c.eth.BlockNumber(cctx)
	if err != nil {
		return 0, domain.Transient(fmt.Errorf("chain: block number: %w", err))
	}
	return n, nil
}

// FilterLogs runs a log filter query with the read timeout applied.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	cctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()
	logs, err := c.eth.FilterLogs(cctx, q)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("chain: filter logs: %w", err))
	}
	return logs, nil
}

// CallContract performs an eth_call against the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()
	out, err := c.eth.CallContract(cctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, classifyRPCError(err)
	}
	return out, nil
}

// HeaderTime returns the timestamp of a block, used to date indexed events.
func (c *Client) HeaderTime(ctx context.Context, blockNumber uint64) (time.Time, error) {
	cctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()
	h, err := c.eth.HeaderByNumber(cctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return time.Time{}, domain.Transient(fmt.Errorf("chain: header %d: %w", blockNumber, err))
	}
	return time.Unix(int64(h.Time), 0).UTC(), nil
}
