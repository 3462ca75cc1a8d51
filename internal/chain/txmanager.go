package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/bitredict/backend/internal/domain"
)

// TxPolicy bounds transaction pricing and waits.
type TxPolicy struct {
	GasLimit      uint64
	MaxFeeWei     *big.Int
	MaxTipWei     *big.Int
	Confirmations uint64
	SendTimeout   time.Duration
}

// TxManager signs and submits transactions for the oracle bot key. The
// nonce is a local monotonic counter resynced from the pending pool on
// startup and after any nonce race; callers serialize per entity, so a
// single mutex over the counter is enough.
type TxManager struct {
	client *Client
	key    *ecdsa.PrivateKey
	addr   common.Address
	chain  *big.Int
	policy TxPolicy
	logger *slog.Logger

	mu    sync.Mutex
	nonce uint64
	ready bool
}

// NewTxManager creates a TxManager for the given signer key.
func NewTxManager(client *Client, key *ecdsa.PrivateKey, chainID int64, policy TxPolicy, logger *slog.Logger) *TxManager {
	return &TxManager{
		client: client,
		key:    key,
		addr:   ethcrypto.PubkeyToAddress(key.PublicKey),
		chain:  big.NewInt(chainID),
		policy: policy,
		logger: logger.With(slog.String("component", "txmanager")),
	}
}

// Address returns the signer (oracle bot) address.
func (m *TxManager) Address() common.Address { return m.addr }

// nextNonce hands out the next local nonce, resyncing from the node on
// first use.
func (m *TxManager) nextNonce(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		if err := m.resyncLocked(ctx); err != nil {
			return 0, err
		}
	}
	n := m.nonce
	m.nonce++
	return n, nil
}

// releaseNonce returns a nonce whose transaction never reached the pool.
// If later nonces were handed out in the meantime the counter cannot simply
// rewind, so the manager falls back to a resync on next use.
func (m *TxManager) releaseNonce(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nonce == n+1 {
		m.nonce = n
		return
	}
	m.ready = false
}

// ResyncNonce refreshes the local counter from the node's pending count.
func (m *TxManager) ResyncNonce(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resyncLocked(ctx)
}

func (m *TxManager) resyncLocked(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, m.client.readTimeout)
	defer cancel()
	n, err := m.client.eth.PendingNonceAt(cctx, m.addr)
	if err != nil {
		return domain.Transient(fmt.Errorf("chain: pending nonce: %w", err))
	}
	m.nonce = n
	m.ready = true
	return nil
}

// Send signs and broadcasts a dynamic-fee transaction to the given contract
// and waits for inclusion plus the configured confirmations. The receipt is
// returned on success; a failed (status 0) receipt is re-simulated to
// recover the revert reason, then classified.
func (m *TxManager) Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	tip, fee, err := m.fees(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := m.nextNonce(ctx)
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   m.chain,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: fee,
		Gas:       m.policy.GasLimit,
		To:        &to,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(m.chain), m.key)
	if err != nil {
		return nil, fmt.Errorf("chain: sign tx: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, m.client.readTimeout)
	err = m.client.eth.SendTransaction(sctx, signed)
	cancel()
	if err != nil {
		// The transaction never reached the pool, so the nonce must not stay
		// consumed: a gap here would park every later send unmined. A nonce
		// race additionally means the counter itself is stale.
		m.releaseNonce(nonce)
		classified := classifyRPCError(err)
		if strings.Contains(err.Error(), "nonce") {
			_ = m.ResyncNonce(ctx)
		}
		return nil, classified
	}

	m.logger.InfoContext(ctx, "transaction sent",
		slog.String("tx", signed.Hash().Hex()),
		slog.String("to", to.Hex()),
		slog.Uint64("nonce", nonce),
	)

	return m.waitMined(ctx, signed, to, data)
}

// fees derives capped dynamic fees from the node's suggestions.
func (m *TxManager) fees(ctx context.Context) (tip, fee *big.Int, err error) {
	cctx, cancel := context.WithTimeout(ctx, m.client.readTimeout)
	defer cancel()

	tip, err = m.client.eth.SuggestGasTipCap(cctx)
	if err != nil {
		return nil, nil, domain.Transient(fmt.Errorf("chain: suggest tip: %w", err))
	}
	if m.policy.MaxTipWei != nil && tip.Cmp(m.policy.MaxTipWei) > 0 {
		tip = new(big.Int).Set(m.policy.MaxTipWei)
	}

	head, err := m.client.eth.HeaderByNumber(cctx, nil)
	if err != nil {
		return nil, nil, domain.Transient(fmt.Errorf("chain: head: %w", err))
	}
	// fee = 2*baseFee + tip, capped by policy.
	fee = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	if m.policy.MaxFeeWei != nil && fee.Cmp(m.policy.MaxFeeWei) > 0 {
		fee = new(big.Int).Set(m.policy.MaxFeeWei)
	}
	return tip, fee, nil
}

// waitMined polls for the receipt, then waits until the receipt's block has
// the configured confirmations behind the head.
func (m *TxManager) waitMined(ctx context.Context, tx *types.Transaction, to common.Address, data []byte) (*types.Receipt, error) {
	deadline := time.Now().Add(m.policy.SendTimeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var receipt *types.Receipt
	for receipt == nil {
		rctx, cancel := context.WithTimeout(ctx, m.client.readTimeout)
		r, err := m.client.eth.TransactionReceipt(rctx, tx.Hash())
		cancel()
		switch {
		case err == nil:
			receipt = r
		case errors.Is(err, ethereum.NotFound):
			if time.Now().After(deadline) {
				return nil, domain.Transient(fmt.Errorf("chain: tx %s not mined within %s", tx.Hash().Hex(), m.policy.SendTimeout))
			}
		default:
			return nil, domain.Transient(fmt.Errorf("chain: receipt %s: %w", tx.Hash().Hex(), err))
		}

		if receipt == nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
			}
		}
	}

	if receipt.Status == types.ReceiptStatusFailed {
		// Re-simulate at the receipt's block to surface the revert reason.
		cctx, cancel := context.WithTimeout(ctx, m.client.readTimeout)
		_, simErr := m.client.eth.CallContract(cctx, ethereum.CallMsg{
			From: m.addr, To: &to, Data: data,
		}, receipt.BlockNumber)
		cancel()
		if simErr != nil {
			return receipt, classifyRPCError(simErr)
		}
		return receipt, domain.PermanentChain(fmt.Errorf("chain: tx %s reverted without reason", tx.Hash().Hex()))
	}

	// Confirmation wait.
	target := receipt.BlockNumber.Uint64() + m.policy.Confirmations - 1
	for {
		head, err := m.client.BlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		if head >= target {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
