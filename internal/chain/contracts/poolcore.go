package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallBackend is the read path the bindings need; chain.Client satisfies it.
type CallBackend interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// PoolState is the decoded pool struct as the contract reports it.
type PoolState struct {
	Creator          common.Address
	Odds             uint32 // fixed-point x100
	PredictedOutcome [32]byte
	Result           [32]byte
	MarketID         [32]byte
	OracleType       uint8
	EventStartTime   uint64
	EventEndTime     uint64
	BettingEndTime   uint64
	Settled          bool
	CreatorSideWon   bool
}

// PoolCore binds the pool contract at a fixed address.
type PoolCore struct {
	Addr    common.Address
	backend CallBackend
}

// NewPoolCore creates a PoolCore binding.
func NewPoolCore(addr common.Address, backend CallBackend) *PoolCore {
	return &PoolCore{Addr: addr, backend: backend}
}

// GetPool reads the pool struct from the chain.
func (p *PoolCore) GetPool(ctx context.Context, poolID uint64) (*PoolState, error) {
	data, err := poolCoreABI.Pack("getPool", new(big.Int).SetUint64(poolID))
	if err != nil {
		return nil, fmt.Errorf("contracts: pack getPool: %w", err)
	}
	raw, err := p.backend.CallContract(ctx, p.Addr, data)
	if err != nil {
		return nil, err
	}
	out, err := poolCoreABI.Unpack("getPool", raw)
	if err != nil {
		return nil, fmt.Errorf("contracts: unpack getPool %d: %w", poolID, err)
	}

	st := &PoolState{
		Creator:          out[0].(common.Address),
		Odds:             uint32(out[1].(*big.Int).Uint64()),
		PredictedOutcome: out[2].([32]byte),
		Result:           out[3].([32]byte),
		MarketID:         out[4].([32]byte),
		OracleType:       out[5].(uint8),
		EventStartTime:   out[6].(*big.Int).Uint64(),
		EventEndTime:     out[7].(*big.Int).Uint64(),
		BettingEndTime:   out[8].(*big.Int).Uint64(),
		Settled:          out[9].(bool),
		CreatorSideWon:   out[10].(bool),
	}
	return st, nil
}

// PackSettlePool encodes settlePool(poolId, outcome).
func PackSettlePool(poolID uint64, outcome [32]byte) ([]byte, error) {
	return poolCoreABI.Pack("settlePool", new(big.Int).SetUint64(poolID), outcome)
}

// PackSettlePoolAutomatically encodes settlePoolAutomatically(poolId),
// the path the oracle bot drives through GuidedOracle.executeCall.
func PackSettlePoolAutomatically(poolID uint64) ([]byte, error) {
	return poolCoreABI.Pack("settlePoolAutomatically", new(big.Int).SetUint64(poolID))
}

// PackRefundPool encodes refundPool(poolId).
func PackRefundPool(poolID uint64) ([]byte, error) {
	return poolCoreABI.Pack("refundPool", new(big.Int).SetUint64(poolID))
}

// Event topic ids for log filtering.
var (
	PoolCreatedTopic  = poolCoreABI.Events["PoolCreated"].ID
	BetPlacedTopic    = poolCoreABI.Events["BetPlaced"].ID
	PoolSettledTopic  = poolCoreABI.Events["PoolSettled"].ID
	PoolRefundedTopic = poolCoreABI.Events["PoolRefunded"].ID
)

// PoolCreatedEvent is the decoded PoolCreated log.
type PoolCreatedEvent struct {
	PoolID           uint64
	Creator          common.Address
	MarketID         [32]byte
	PredictedOutcome [32]byte
	Odds             uint32
	OracleType       uint8
	EventStartTime   uint64
	EventEndTime     uint64
	BettingEndTime   uint64
}

// ParsePoolCreated decodes a PoolCreated log.
func ParsePoolCreated(lg types.Log) (*PoolCreatedEvent, error) {
	if len(lg.Topics) != 3 {
		return nil, fmt.Errorf("contracts: PoolCreated topics = %d", len(lg.Topics))
	}
	var data struct {
		MarketId         [32]byte
		PredictedOutcome [32]byte
		Odds             *big.Int
		OracleType       uint8
		EventStartTime   *big.Int
		EventEndTime     *big.Int
		BettingEndTime   *big.Int
	}
	if err := poolCoreABI.UnpackIntoInterface(&data, "PoolCreated", lg.Data); err != nil {
		return nil, fmt.Errorf("contracts: unpack PoolCreated: %w", err)
	}
	return &PoolCreatedEvent{
		PoolID:           new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(),
		Creator:          common.BytesToAddress(lg.Topics[2].Bytes()),
		MarketID:         data.MarketId,
		PredictedOutcome: data.PredictedOutcome,
		Odds:             uint32(data.Odds.Uint64()),
		OracleType:       data.OracleType,
		EventStartTime:   data.EventStartTime.Uint64(),
		EventEndTime:     data.EventEndTime.Uint64(),
		BettingEndTime:   data.BettingEndTime.Uint64(),
	}, nil
}

// BetPlacedEvent is the decoded BetPlaced log.
type BetPlacedEvent struct {
	PoolID       uint64
	Bettor       common.Address
	Amount       *big.Int
	IsForOutcome bool
}

// ParseBetPlaced decodes a BetPlaced log.
func ParseBetPlaced(lg types.Log) (*BetPlacedEvent, error) {
	if len(lg.Topics) != 3 {
		return nil, fmt.Errorf("contracts: BetPlaced topics = %d", len(lg.Topics))
	}
	var data struct {
		Amount       *big.Int
		IsForOutcome bool
	}
	if err := poolCoreABI.UnpackIntoInterface(&data, "BetPlaced", lg.Data); err != nil {
		return nil, fmt.Errorf("contracts: unpack BetPlaced: %w", err)
	}
	return &BetPlacedEvent{
		PoolID:       new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(),
		Bettor:       common.BytesToAddress(lg.Topics[2].Bytes()),
		Amount:       data.Amount,
		IsForOutcome: data.IsForOutcome,
	}, nil
}

// PoolRefundedEvent is the decoded PoolRefunded log.
type PoolRefundedEvent struct {
	PoolID uint64
	Reason string
}

// ParsePoolRefunded decodes a PoolRefunded log.
func ParsePoolRefunded(lg types.Log) (*PoolRefundedEvent, error) {
	if len(lg.Topics) != 2 {
		return nil, fmt.Errorf("contracts: PoolRefunded topics = %d", len(lg.Topics))
	}
	var data struct {
		Reason string
	}
	if err := poolCoreABI.UnpackIntoInterface(&data, "PoolRefunded", lg.Data); err != nil {
		return nil, fmt.Errorf("contracts: unpack PoolRefunded: %w", err)
	}
	return &PoolRefundedEvent{
		PoolID: new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(),
		Reason: data.Reason,
	}, nil
}

// PoolSettledEvent is the decoded PoolSettled log.
type PoolSettledEvent struct {
	PoolID         uint64
	Result         [32]byte
	CreatorSideWon bool
	Timestamp      uint64
}

// ParsePoolSettled decodes a PoolSettled log.
func ParsePoolSettled(lg types.Log) (*PoolSettledEvent, error) {
	if len(lg.Topics) != 2 {
		return nil, fmt.Errorf("contracts: PoolSettled topics = %d", len(lg.Topics))
	}
	var data struct {
		Result         [32]byte
		CreatorSideWon bool
		Timestamp      *big.Int
	}
	if err := poolCoreABI.UnpackIntoInterface(&data, "PoolSettled", lg.Data); err != nil {
		return nil, fmt.Errorf("contracts: unpack PoolSettled: %w", err)
	}
	return &PoolSettledEvent{
		PoolID:         new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(),
		Result:         data.Result,
		CreatorSideWon: data.CreatorSideWon,
		Timestamp:      data.Timestamp.Uint64(),
	}, nil
}
