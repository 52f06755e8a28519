package svm

import (
	"time"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
)

// Status classifies the outcome of one instruction.
type Status uint8

const (
	// StatusSuccess means the program completed and the engine accepted its
	// account changes.
	StatusSuccess Status = iota

	// StatusFailure means the program reported a ProgramError.
	StatusFailure

	// StatusUnknownError means the engine could not run the instruction or
	// rejected its effects.
	StatusUnknownError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusUnknownError:
		return "unknown_error"
	default:
		return "invalid"
	}
}

// InstructionResult is the outcome of executing one instruction.
type InstructionResult struct {
	Status Status

	// ProgramErr is set when Status is StatusFailure.
	ProgramErr *ProgramError

	// Err is the raw engine error. It is non-nil whenever Status is not
	// StatusSuccess, including program failures.
	Err *InstructionError

	// ComputeUnitsConsumed is the compute charged to the instruction.
	ComputeUnitsConsumed uint64

	// ExecutionTime is the wall-clock time spent inside the engine.
	ExecutionTime time.Duration

	// ReturnData is the data the program set via SetReturnData.
	ReturnData []byte

	// Logs are the program log lines.
	Logs []string

	// ResultingAccounts are the post-execution states of every account the
	// instruction referenced, in instruction order without duplicates.
	ResultingAccounts []accounts.KeyedAccount
}

// IsSuccess reports whether the instruction succeeded.
func (r *InstructionResult) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// Failure returns the classified failure: the *ProgramError for program
// failures, the *InstructionError for engine failures, nil on success.
func (r *InstructionResult) Failure() error {
	switch r.Status {
	case StatusSuccess:
		return nil
	case StatusFailure:
		return r.ProgramErr
	default:
		return r.Err
	}
}

// ResultingAccount returns the post-execution state of pubkey, if the
// instruction referenced it.
func (r *InstructionResult) ResultingAccount(pubkey types.Pubkey) (accounts.Account, bool) {
	for _, ka := range r.ResultingAccounts {
		if ka.Pubkey == pubkey {
			return ka.Account, true
		}
	}
	return accounts.Account{}, false
}
