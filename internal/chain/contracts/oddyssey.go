package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CycleMatchData mirrors the contract's match struct. Odds are fixed-point
// x1000.
type CycleMatchData struct {
	MatchId   uint64
	StartTime uint64
	OddsHome  uint32
	OddsDraw  uint32
	OddsAway  uint32
	OddsOver  uint32
	OddsUnder uint32
}

// PredictionData mirrors the contract's slip prediction struct. BetType 0 is
// moneyline, 1 is over/under; Selection carries the padded outcome code.
type PredictionData struct {
	MatchId   uint64
	BetType   uint8
	Selection [32]byte
}

// SlipData is the result of getSlip.
type SlipData struct {
	Player      common.Address
	CycleID     uint64
	Predictions [10]PredictionData
}

// Oddyssey binds the daily parlay contract.
type Oddyssey struct {
	Addr    common.Address
	backend CallBackend
}

// NewOddyssey creates an Oddyssey binding.
func NewOddyssey(addr common.Address, backend CallBackend) *Oddyssey {
	return &Oddyssey{Addr: addr, backend: backend}
}

// DailyCycleID returns the contract's current cycle id.
func (o *Oddyssey) DailyCycleID(ctx context.Context) (uint64, error) {
	data, err := oddysseyABI.Pack("dailyCycleId")
	if err != nil {
		return 0, fmt.Errorf("contracts: pack dailyCycleId: %w", err)
	}
	raw, err := o.backend.CallContract(ctx, o.Addr, data)
	if err != nil {
		return 0, err
	}
	out, err := oddysseyABI.Unpack("dailyCycleId", raw)
	if err != nil {
		return 0, fmt.Errorf("contracts: unpack dailyCycleId: %w", err)
	}
	return out[0].(*big.Int).Uint64(), nil
}

// GetCycleMatches reads the frozen match card for a cycle.
func (o *Oddyssey) GetCycleMatches(ctx context.Context, cycleID uint64) ([10]CycleMatchData, error) {
	var matches [10]CycleMatchData
	data, err := oddysseyABI.Pack("getCycleMatches", new(big.Int).SetUint64(cycleID))
	if err != nil {
		return matches, fmt.Errorf("contracts: pack getCycleMatches: %w", err)
	}
	raw, err := o.backend.CallContract(ctx, o.Addr, data)
	if err != nil {
		return matches, err
	}
	out, err := oddysseyABI.Unpack("getCycleMatches", raw)
	if err != nil {
		return matches, fmt.Errorf("contracts: unpack getCycleMatches %d: %w", cycleID, err)
	}
	matches = *abi.ConvertType(out[0], new([10]CycleMatchData)).(*[10]CycleMatchData)
	return matches, nil
}

// GetSlip reads a placed slip's picks; the SlipPlaced event only carries ids.
func (o *Oddyssey) GetSlip(ctx context.Context, slipID uint64) (*SlipData, error) {
	data, err := oddysseyABI.Pack("getSlip", new(big.Int).SetUint64(slipID))
	if err != nil {
		return nil, fmt.Errorf("contracts: pack getSlip: %w", err)
	}
	raw, err := o.backend.CallContract(ctx, o.Addr, data)
	if err != nil {
		return nil, err
	}
	out, err := oddysseyABI.Unpack("getSlip", raw)
	if err != nil {
		return nil, fmt.Errorf("contracts: unpack getSlip %d: %w", slipID, err)
	}
	return &SlipData{
		Player:      out[0].(common.Address),
		CycleID:     out[1].(*big.Int).Uint64(),
		Predictions: *abi.ConvertType(out[2], new([10]PredictionData)).(*[10]PredictionData),
	}, nil
}

// PackResolveDailyCycle encodes resolveDailyCycle(cycleId).
func PackResolveDailyCycle(cycleID uint64) ([]byte, error) {
	return oddysseyABI.Pack("resolveDailyCycle", new(big.Int).SetUint64(cycleID))
}

// Event topic ids for log filtering.
var (
	CycleStartedTopic  = oddysseyABI.Events["CycleStarted"].ID
	SlipPlacedTopic    = oddysseyABI.Events["SlipPlaced"].ID
	CycleResolvedTopic = oddysseyABI.Events["CycleResolved"].ID
)

// CycleStartedEvent is the decoded CycleStarted log.
type CycleStartedEvent struct {
	CycleID uint64
	EndTime uint64
}

// ParseCycleStarted decodes a CycleStarted log.
func ParseCycleStarted(lg types.Log) (*CycleStartedEvent, error) {
	if len(lg.Topics) != 2 {
		return nil, fmt.Errorf("contracts: CycleStarted topics = %d", len(lg.Topics))
	}
	var data struct {
		EndTime *big.Int
	}
	if err := oddysseyABI.UnpackIntoInterface(&data, "CycleStarted", lg.Data); err != nil {
		return nil, fmt.Errorf("contracts: unpack CycleStarted: %w", err)
	}
	return &CycleStartedEvent{
		CycleID: new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(),
		EndTime: data.EndTime.Uint64(),
	}, nil
}

// SlipPlacedEvent is the decoded SlipPlaced log; picks come via GetSlip.
type SlipPlacedEvent struct {
	CycleID uint64
	Player  common.Address
	SlipID  uint64
}

// ParseSlipPlaced decodes a SlipPlaced log. All fields are indexed, so
// everything lives in the topics.
func ParseSlipPlaced(lg types.Log) (*SlipPlacedEvent, error) {
	if len(lg.Topics) != 4 {
		return nil, fmt.Errorf("contracts: SlipPlaced topics = %d", len(lg.Topics))
	}
	return &SlipPlacedEvent{
		CycleID: new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(),
		Player:  common.BytesToAddress(lg.Topics[2].Bytes()),
		SlipID:  new(big.Int).SetBytes(lg.Topics[3].Bytes()).Uint64(),
	}, nil
}

// CycleResolvedEvent is the decoded CycleResolved log.
type CycleResolvedEvent struct {
	CycleID        uint64
	WinningSlipIDs [5]uint64
}

// ParseCycleResolved decodes a CycleResolved log.
func ParseCycleResolved(lg types.Log) (*CycleResolvedEvent, error) {
	if len(lg.Topics) != 2 {
		return nil, fmt.Errorf("contracts: CycleResolved topics = %d", len(lg.Topics))
	}
	var data struct {
		WinningSlipIds [5]*big.Int
	}
	if err := oddysseyABI.UnpackIntoInterface(&data, "CycleResolved", lg.Data); err != nil {
		return nil, fmt.Errorf("contracts: unpack CycleResolved: %w", err)
	}
	ev := &CycleResolvedEvent{
		CycleID: new(big.Int).SetBytes(lg.Topics[1].Bytes()).Uint64(),
	}
	for i, id := range data.WinningSlipIds {
		if id != nil {
			ev.WinningSlipIDs[i] = id.Uint64()
		}
	}
	return ev, nil
}
