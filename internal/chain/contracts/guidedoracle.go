package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// GuidedOracle binds the guided oracle contract: the bot submits derived
// outcomes here and relays settlement calls through executeCall.
type GuidedOracle struct {
	Addr    common.Address
	backend CallBackend
}

// NewGuidedOracle creates a GuidedOracle binding.
func NewGuidedOracle(addr common.Address, backend CallBackend) *GuidedOracle {
	return &GuidedOracle{Addr: addr, backend: backend}
}

// OracleBot returns the address authorized to submit outcomes.
func (g *GuidedOracle) OracleBot(ctx context.Context) (common.Address, error) {
	data, err := guidedOracleABI.Pack("oracleBot")
	if err != nil {
		return common.Address{}, fmt.Errorf("contracts: pack oracleBot: %w", err)
	}
	raw, err := g.backend.CallContract(ctx, g.Addr, data)
	if err != nil {
		return common.Address{}, err
	}
	out, err := guidedOracleABI.Unpack("oracleBot", raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("contracts: unpack oracleBot: %w", err)
	}
	return out[0].(common.Address), nil
}

// GetOutcome reads the oracle's stored outcome for a market. isSet reports
// whether the outcome has been submitted yet.
func (g *GuidedOracle) GetOutcome(ctx context.Context, marketID [32]byte) (isSet bool, outcome [32]byte, err error) {
	data, err := guidedOracleABI.Pack("getOutcome", marketID)
	if err != nil {
		return false, outcome, fmt.Errorf("contracts: pack getOutcome: %w", err)
	}
	raw, err := g.backend.CallContract(ctx, g.Addr, data)
	if err != nil {
		return false, outcome, err
	}
	out, err := guidedOracleABI.Unpack("getOutcome", raw)
	if err != nil {
		return false, outcome, fmt.Errorf("contracts: unpack getOutcome: %w", err)
	}
	return out[0].(bool), out[1].([32]byte), nil
}

// PackSubmitOutcome encodes submitOutcome(marketId, outcome).
func PackSubmitOutcome(marketID, outcome [32]byte) ([]byte, error) {
	return guidedOracleABI.Pack("submitOutcome", marketID, outcome)
}

// PackExecuteCall encodes executeCall(target, data); the oracle contract
// relays the inner call so pool settlement runs with oracle authority.
func PackExecuteCall(target common.Address, inner []byte) ([]byte, error) {
	return guidedOracleABI.Pack("executeCall", target, inner)
}

// OutcomeSubmittedTopic is the OutcomeSubmitted event id.
var OutcomeSubmittedTopic = guidedOracleABI.Events["OutcomeSubmitted"].ID

// OutcomeSubmittedEvent is the decoded OutcomeSubmitted log.
type OutcomeSubmittedEvent struct {
	MarketID  [32]byte
	Outcome   [32]byte
	Timestamp uint64
}

// ParseOutcomeSubmitted decodes an OutcomeSubmitted log.
func ParseOutcomeSubmitted(lg types.Log) (*OutcomeSubmittedEvent, error) {
	if len(lg.Topics) != 2 {
		return nil, fmt.Errorf("contracts: OutcomeSubmitted topics = %d", len(lg.Topics))
	}
	var data struct {
		Outcome   [32]byte
		Timestamp *big.Int
	}
	if err := guidedOracleABI.UnpackIntoInterface(&data, "OutcomeSubmitted", lg.Data); err != nil {
		return nil, fmt.Errorf("contracts: unpack OutcomeSubmitted: %w", err)
	}
	ev := &OutcomeSubmittedEvent{
		Outcome:   data.Outcome,
		Timestamp: data.Timestamp.Uint64(),
	}
	copy(ev.MarketID[:], lg.Topics[1].Bytes())
	return ev, nil
}
