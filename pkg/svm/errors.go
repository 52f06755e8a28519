package svm

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the failure kinds the engine and programs report.
//
// Kinds below kindProgramLimit can be returned by a program as a
// ProgramError. The remaining kinds are raised by the engine itself.
type ErrorKind uint16

const (
	KindCustom ErrorKind = iota
	KindInvalidArgument
	KindInvalidInstructionData
	KindInvalidAccountData
	KindAccountDataTooSmall
	KindInsufficientFunds
	KindIncorrectProgramID
	KindMissingRequiredSignature
	KindAccountAlreadyInitialized
	KindUninitializedAccount
	KindNotEnoughAccountKeys
	KindMaxSeedLengthExceeded
	KindInvalidSeeds
	KindArithmeticOverflow
	KindIllegalOwner
	KindInvalidAccountOwner
	kindProgramLimit

	KindGenericError
	KindReadonlyLamportChange
	KindReadonlyDataModified
	KindExternalAccountLamportSpend
	KindExternalAccountDataModified
	KindUnbalancedInstruction
	KindExecutableModified
	KindUnsupportedProgramID
	KindComputationalBudgetExceeded
	KindProgramFailedToComplete
	KindModifiedProgramID
	KindPrivilegeEscalation
	KindCallDepth
	KindMissingAccount
	KindInvalidRealloc
)

var kindNames = map[ErrorKind]string{
	KindCustom:                      "custom program error",
	KindInvalidArgument:             "invalid program argument",
	KindInvalidInstructionData:      "invalid instruction data",
	KindInvalidAccountData:          "invalid account data for instruction",
	KindAccountDataTooSmall:         "account data too small for instruction",
	KindInsufficientFunds:           "insufficient funds for instruction",
	KindIncorrectProgramID:          "incorrect program id for instruction",
	KindMissingRequiredSignature:    "missing required signature for instruction",
	KindAccountAlreadyInitialized:   "instruction requires an uninitialized account",
	KindUninitializedAccount:        "instruction requires an initialized account",
	KindNotEnoughAccountKeys:        "insufficient account keys for instruction",
	KindMaxSeedLengthExceeded:       "length of the seed is too long for address generation",
	KindInvalidSeeds:                "provided seeds do not result in a valid address",
	KindArithmeticOverflow:          "program arithmetic overflowed",
	KindIllegalOwner:                "provided owner is not allowed",
	KindInvalidAccountOwner:         "invalid account owner",
	KindGenericError:                "generic instruction error",
	KindReadonlyLamportChange:       "instruction changed the balance of a read-only account",
	KindReadonlyDataModified:        "instruction modified data of a read-only account",
	KindExternalAccountLamportSpend: "instruction spent from the balance of an account it does not own",
	KindExternalAccountDataModified: "instruction modified data of an account it does not own",
	KindUnbalancedInstruction:       "sum of account balances before and after instruction do not match",
	KindExecutableModified:          "instruction changed executable accounts data",
	KindUnsupportedProgramID:        "Unsupported program id",
	KindComputationalBudgetExceeded: "Computational budget exceeded",
	KindProgramFailedToComplete:     "Program failed to complete",
	KindModifiedProgramID:           "instruction illegally modified the program id of an account",
	KindPrivilegeEscalation:         "Cross-program invocation with unauthorized signer or writable account",
	KindCallDepth:                   "Cross-program invocation call depth too deep",
	KindMissingAccount:              "An account required by the instruction is missing",
	KindInvalidRealloc:              "Failed to reallocate account data",
}

// String returns a human readable name for the kind.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error kind %d", uint16(k))
}

// ProgramError is a failure reported by a program's own logic.
type ProgramError struct {
	Kind ErrorKind

	// Code is the program-defined code when Kind is KindCustom.
	Code uint32
}

// CustomError returns a program-defined error code.
func CustomError(code uint32) *ProgramError {
	return &ProgramError{Kind: KindCustom, Code: code}
}

func (e *ProgramError) Error() string {
	if e.Kind == KindCustom {
		return fmt.Sprintf("custom program error: %#x", e.Code)
	}
	return e.Kind.String()
}

// Is matches another ProgramError or InstructionError with the same kind
// and code.
func (e *ProgramError) Is(target error) bool {
	switch t := target.(type) {
	case *ProgramError:
		return t.Kind == e.Kind && t.Code == e.Code
	case *InstructionError:
		return t.Kind == e.Kind && t.Code == e.Code
	}
	return false
}

// InstructionError converts the program error to its engine-level form.
func (e *ProgramError) InstructionError() *InstructionError {
	return &InstructionError{Kind: e.Kind, Code: e.Code}
}

// Program-reportable errors.
var (
	ErrInvalidArgument           = &ProgramError{Kind: KindInvalidArgument}
	ErrInvalidInstructionData    = &ProgramError{Kind: KindInvalidInstructionData}
	ErrInvalidAccountData        = &ProgramError{Kind: KindInvalidAccountData}
	ErrAccountDataTooSmall       = &ProgramError{Kind: KindAccountDataTooSmall}
	ErrInsufficientFunds         = &ProgramError{Kind: KindInsufficientFunds}
	ErrIncorrectProgramID        = &ProgramError{Kind: KindIncorrectProgramID}
	ErrMissingRequiredSignature  = &ProgramError{Kind: KindMissingRequiredSignature}
	ErrAccountAlreadyInitialized = &ProgramError{Kind: KindAccountAlreadyInitialized}
	ErrUninitializedAccount      = &ProgramError{Kind: KindUninitializedAccount}
	ErrNotEnoughAccountKeys      = &ProgramError{Kind: KindNotEnoughAccountKeys}
	ErrMaxSeedLengthExceeded     = &ProgramError{Kind: KindMaxSeedLengthExceeded}
	ErrInvalidSeeds              = &ProgramError{Kind: KindInvalidSeeds}
	ErrArithmeticOverflow        = &ProgramError{Kind: KindArithmeticOverflow}
	ErrIllegalOwner              = &ProgramError{Kind: KindIllegalOwner}
	ErrInvalidAccountOwner       = &ProgramError{Kind: KindInvalidAccountOwner}
)

// InstructionError is the raw, engine-level outcome of a failed instruction.
// Every failed InstructionResult carries one, whether the failure came from
// the program or from the engine.
type InstructionError struct {
	Kind ErrorKind

	// Code is the program-defined code when Kind is KindCustom.
	Code uint32

	// Detail carries context for unclassified failures.
	Detail string
}

// NewInstructionError returns an engine-level error with optional detail.
func NewInstructionError(kind ErrorKind, detail string) *InstructionError {
	return &InstructionError{Kind: kind, Detail: detail}
}

func (e *InstructionError) Error() string {
	msg := e.Kind.String()
	if e.Kind == KindCustom {
		msg = fmt.Sprintf("custom program error: %#x", e.Code)
	}
	if e.Detail != "" {
		return msg + ": " + e.Detail
	}
	return msg
}

// Is matches another InstructionError or ProgramError with the same kind
// and code. Detail is ignored.
func (e *InstructionError) Is(target error) bool {
	switch t := target.(type) {
	case *InstructionError:
		return t.Kind == e.Kind && t.Code == e.Code
	case *ProgramError:
		return t.Kind == e.Kind && t.Code == e.Code
	}
	return false
}

// IsProgramKind reports whether the kind can be returned by a program.
func (k ErrorKind) IsProgramKind() bool {
	return k < kindProgramLimit
}

// Engine-level lookup errors.
var (
	// ErrProgramNotFound is returned when no processor is registered for a
	// program id.
	ErrProgramNotFound = errors.New("program not found")
)
