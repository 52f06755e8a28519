// Package svm defines the data model shared by the instruction-execution
// engine, the native programs it runs, and the transaction executor that
// drives it.
//
// The engine itself lives in svm/engine. It executes exactly one instruction
// at a time against an account store and classifies the outcome as success,
// a program-reported failure (ProgramError) or an engine-level failure
// (InstructionError). It has no notion of a multi-instruction transaction;
// that is layered on top by package txn.
package svm

import (
	"github.com/fortiblox/stratus-harness/internal/types"
)

// AccountMeta describes an account referenced by an instruction.
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Writable returns a writable account reference.
func Writable(pubkey types.Pubkey, signer bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: signer, IsWritable: true}
}

// Readonly returns a read-only account reference.
func Readonly(pubkey types.Pubkey, signer bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: signer}
}

// Instruction is a single state-transition request for one program.
// The transaction executor never inspects it.
type Instruction struct {
	ProgramID types.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// AccountInfo is the mutable view of an account a program sees while it
// executes. Programs modify it in place; the engine validates and writes the
// result back to the store.
type AccountInfo struct {
	Key        types.Pubkey
	Owner      types.Pubkey
	Lamports   uint64
	Data       []byte
	Executable bool
	RentEpoch  uint64
	IsSigner   bool
	IsWritable bool
}

// InvokeContext is what a program can see and do during execution.
type InvokeContext interface {
	// ProgramID returns the address of the executing program.
	ProgramID() types.Pubkey

	// NumAccounts returns the number of accounts passed to the instruction.
	NumAccounts() int

	// Account returns the account at the given instruction index, or
	// ErrNotEnoughAccountKeys.
	Account(index int) (*AccountInfo, error)

	// Clock returns the engine's clock sysvar.
	Clock() Clock

	// Rent returns the engine's rent sysvar.
	Rent() Rent

	// ConsumeCU charges compute units against the instruction's budget.
	ConsumeCU(units uint64) error

	// Log records a program log line.
	Log(format string, args ...any)

	// SetReturnData sets the instruction's return data.
	SetReturnData(data []byte)

	// StackHeight returns the invocation depth, 1 for a top-level
	// instruction.
	StackHeight() int

	// Invoke runs ix as a cross-program invocation. Every account ix names
	// must already be passed to the current instruction. Each element of
	// signerSeeds is the seed list (bump included) of a program derived
	// address of the current program that signs the call.
	Invoke(ix Instruction, signerSeeds ...[][]byte) error
}

// Program is a natively implemented on-chain program.
//
// Process returns nil on success. A *ProgramError reports a classified
// program failure; any other error is treated by the engine as an
// unclassified failure.
type Program interface {
	Process(ctx InvokeContext, data []byte) error
}

// ProgramFunc adapts a function to the Program interface.
type ProgramFunc func(ctx InvokeContext, data []byte) error

// Process calls f(ctx, data).
func (f ProgramFunc) Process(ctx InvokeContext, data []byte) error {
	return f(ctx, data)
}
