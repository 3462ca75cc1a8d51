package chain

import (
	"fmt"
	"strings"

	"github.com/bitredict/backend/internal/domain"
)

// Revert reason strings whitelisted by the settlement workflow. Anything
// else reverting is permanent-chain and halts the entity.
const (
	RevertAlreadySettled = "ALREADY_SETTLED"
	RevertOracleNotSet   = "ORACLE_NOT_SET"
	RevertOutcomeSet     = "OUTCOME_ALREADY_SET"
	RevertCycleResolved  = "CYCLE_ALREADY_RESOLVED"
)

// classifyRPCError maps RPC-level failures into the error taxonomy.
// Transport faults and nonce races are transient; recognized reverts map to
// their sentinels; unknown reverts are permanent-chain. The whitelisted
// sentinels carry the transient class: callers that don't handle them as
// terminal states (ALREADY_SETTLED is success, ORACLE_NOT_SET clears on the
// next oracle write) resolve them by re-reading state on a later tick.
func classifyRPCError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()

	switch {
	case strings.Contains(msg, RevertAlreadySettled),
		strings.Contains(msg, RevertCycleResolved):
		return domain.Transient(fmt.Errorf("chain: %w: %s", domain.ErrAlreadySettled, msg))
	case strings.Contains(msg, RevertOracleNotSet):
		return domain.Transient(fmt.Errorf("chain: %w: %s", domain.ErrOracleNotSet, msg))
	case strings.Contains(msg, RevertOutcomeSet):
		return domain.Transient(fmt.Errorf("chain: %w: %s", domain.ErrAlreadyExists, msg))
	case strings.Contains(msg, "execution reverted"):
		return domain.PermanentChain(fmt.Errorf("chain: revert: %s", msg))
	case strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "nonce too high"),
		strings.Contains(msg, "replacement transaction underpriced"):
		return domain.Transient(fmt.Errorf("chain: nonce race: %s", msg))
	default:
		return domain.Transient(fmt.Errorf("chain: rpc: %s", msg))
	}
}
