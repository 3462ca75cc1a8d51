package chain

import (
	"errors"
	"testing"

	"github.com/bitredict/backend/internal/domain"
)

func TestClassifyWhitelistedReverts(t *testing.T) {
	cases := []struct {
		name     string
		msg      string
		sentinel error
	}{
		{"already settled", "execution reverted: ALREADY_SETTLED", domain.ErrAlreadySettled},
		{"cycle resolved", "execution reverted: CYCLE_ALREADY_RESOLVED", domain.ErrAlreadySettled},
		{"oracle not set", "execution reverted: ORACLE_NOT_SET", domain.ErrOracleNotSet},
		{"outcome already set", "execution reverted: OUTCOME_ALREADY_SET", domain.ErrAlreadyExists},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyRPCError(errors.New(tc.msg))
			if !errors.Is(err, tc.sentinel) {
				t.Errorf("classifyRPCError(%q) = %v, want %v in chain", tc.msg, err, tc.sentinel)
			}
			if got := domain.ClassOf(err); got != domain.ClassTransient {
				t.Errorf("ClassOf(%q) = %s, want transient", tc.msg, got)
			}
		})
	}
}

func TestClassifyUnknownRevertIsPermanent(t *testing.T) {
	err := classifyRPCError(errors.New("execution reverted: NOT_POOL_CREATOR"))
	if got := domain.ClassOf(err); got != domain.ClassPermanentChain {
		t.Errorf("ClassOf = %s, want permanent_chain", got)
	}
}

func TestClassifyNonceRaceIsTransient(t *testing.T) {
	err := classifyRPCError(errors.New("nonce too low"))
	if got := domain.ClassOf(err); got != domain.ClassTransient {
		t.Errorf("ClassOf = %s, want transient", got)
	}
}
