// Package contracts holds hand-rolled bindings for the three fixed contract
// surfaces the pipeline talks to: PoolCore, GuidedOracle and Oddyssey. The
// ABIs are trimmed to the functions and events actually consumed.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const poolCoreABIJSON = `[
  {"type":"function","name":"getPool","stateMutability":"view",
   "inputs":[{"name":"poolId","type":"uint256"}],
   "outputs":[
     {"name":"creator","type":"address"},
     {"name":"odds","type":"uint256"},
     {"name":"predictedOutcome","type":"bytes32"},
     {"name":"result","type":"bytes32"},
     {"name":"marketId","type":"bytes32"},
     {"name":"oracleType","type":"uint8"},
     {"name":"eventStartTime","type":"uint256"},
     {"name":"eventEndTime","type":"uint256"},
     {"name":"bettingEndTime","type":"uint256"},
     {"name":"settled","type":"bool"},
     {"name":"creatorSideWon","type":"bool"}]},
  {"type":"function","name":"settlePool","stateMutability":"nonpayable",
   "inputs":[{"name":"poolId","type":"uint256"},{"name":"outcome","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"settlePoolAutomatically","stateMutability":"nonpayable",
   "inputs":[{"name":"poolId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"refundPool","stateMutability":"nonpayable",
   "inputs":[{"name":"poolId","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"PoolCreated","inputs":[
     {"name":"poolId","type":"uint256","indexed":true},
     {"name":"creator","type":"address","indexed":true},
     {"name":"marketId","type":"bytes32","indexed":false},
     {"name":"predictedOutcome","type":"bytes32","indexed":false},
     {"name":"odds","type":"uint256","indexed":false},
     {"name":"oracleType","type":"uint8","indexed":false},
     {"name":"eventStartTime","type":"uint256","indexed":false},
     {"name":"eventEndTime","type":"uint256","indexed":false},
     {"name":"bettingEndTime","type":"uint256","indexed":false}]},
  {"type":"event","name":"BetPlaced","inputs":[
     {"name":"poolId","type":"uint256","indexed":true},
     {"name":"bettor","type":"address","indexed":true},
     {"name":"amount","type":"uint256","indexed":false},
     {"name":"isForOutcome","type":"bool","indexed":false}]},
  {"type":"event","name":"PoolSettled","inputs":[
     {"name":"poolId","type":"uint256","indexed":true},
     {"name":"result","type":"bytes32","indexed":false},
     {"name":"creatorSideWon","type":"bool","indexed":false},
     {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"PoolRefunded","inputs":[
     {"name":"poolId","type":"uint256","indexed":true},
     {"name":"reason","type":"string","indexed":false}]}
]`

const guidedOracleABIJSON = `[
  {"type":"function","name":"oracleBot","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"getOutcome","stateMutability":"view",
   "inputs":[{"name":"marketId","type":"bytes32"}],
   "outputs":[{"name":"isSet","type":"bool"},{"name":"resultData","type":"bytes32"}]},
  {"type":"function","name":"submitOutcome","stateMutability":"nonpayable",
   "inputs":[{"name":"marketId","type":"bytes32"},{"name":"outcome","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"executeCall","stateMutability":"nonpayable",
   "inputs":[{"name":"target","type":"address"},{"name":"data","type":"bytes"}],"outputs":[]},
  {"type":"event","name":"OutcomeSubmitted","inputs":[
     {"name":"marketId","type":"bytes32","indexed":true},
     {"name":"outcome","type":"bytes32","indexed":false},
     {"name":"timestamp","type":"uint256","indexed":false}]}
]`

const oddysseyABIJSON = `[
  {"type":"function","name":"dailyCycleId","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"resolveDailyCycle","stateMutability":"nonpayable",
   "inputs":[{"name":"cycleId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getCycleMatches","stateMutability":"view",
   "inputs":[{"name":"cycleId","type":"uint256"}],
   "outputs":[{"name":"matches","type":"tuple[10]","components":[
     {"name":"matchId","type":"uint64"},
     {"name":"startTime","type":"uint64"},
     {"name":"oddsHome","type":"uint32"},
     {"name":"oddsDraw","type":"uint32"},
     {"name":"oddsAway","type":"uint32"},
     {"name":"oddsOver","type":"uint32"},
     {"name":"oddsUnder","type":"uint32"}]}]},
  {"type":"function","name":"getSlip","stateMutability":"view",
   "inputs":[{"name":"slipId","type":"uint256"}],
   "outputs":[
     {"name":"player","type":"address"},
     {"name":"cycleId","type":"uint256"},
     {"name":"predictions","type":"tuple[10]","components":[
       {"name":"matchId","type":"uint64"},
       {"name":"betType","type":"uint8"},
       {"name":"selection","type":"bytes32"}]}]},
  {"type":"event","name":"CycleStarted","inputs":[
     {"name":"cycleId","type":"uint256","indexed":true},
     {"name":"endTime","type":"uint256","indexed":false}]},
  {"type":"event","name":"SlipPlaced","inputs":[
     {"name":"cycleId","type":"uint256","indexed":true},
     {"name":"player","type":"address","indexed":true},
     {"name":"slipId","type":"uint256","indexed":true}]},
  {"type":"event","name":"CycleResolved","inputs":[
     {"name":"cycleId","type":"uint256","indexed":true},
     {"name":"winningSlipIds","type":"uint256[5]","indexed":false}]}
]`

var (
	poolCoreABI     = mustParse(poolCoreABIJSON)
	guidedOracleABI = mustParse(guidedOracleABIJSON)
	oddysseyABI     = mustParse(oddysseyABIJSON)
)

func mustParse(j string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(j))
	if err != nil {
		panic("contracts: parse abi: " + err.Error())
	}
	return parsed
}
