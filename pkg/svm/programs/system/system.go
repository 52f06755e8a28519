// Package system implements the Solana System Program.
//
// The System Program is responsible for:
// - Creating new accounts
// - Transferring lamports
// - Assigning account ownership
// - Allocating account space
// - The seed-derived variants of the above
package system

import (
	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/svm"
)

// ProgramID is the System Program address.
var ProgramID = types.SystemProgramAddr

// Instruction discriminants.
const (
	InstructionCreateAccount uint32 = iota
	InstructionAssign
	InstructionTransfer
	InstructionCreateAccountWithSeed
	InstructionAdvanceNonceAccount
	InstructionWithdrawNonceAccount
	InstructionInitializeNonceAccount
	InstructionAuthorizeNonceAccount
	InstructionAllocate
	InstructionAllocateWithSeed
	InstructionAssignWithSeed
	InstructionTransferWithSeed
	InstructionUpgradeNonceAccount
)

// System Program custom error codes.
var (
	ErrAccountAlreadyInUse        = svm.CustomError(0)
	ErrResultWithNegativeLamports = svm.CustomError(1)
	ErrInvalidProgramID           = svm.CustomError(2)
	ErrInvalidAccountDataLength   = svm.CustomError(3)
	ErrMaxSeedLengthExceeded      = svm.CustomError(4)
	ErrAddressWithSeedMismatch    = svm.CustomError(5)
)

// Processor executes System Program instructions.
type Processor struct{}

// NewProcessor creates a new System Program processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process executes a System Program instruction.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if err := ctx.ConsumeCU(svm.CUSystemProgramDefault); err != nil {
		return err
	}

	r := newReader(data)
	instruction, err := r.u32()
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	switch instruction {
	case InstructionCreateAccount:
		return p.processCreateAccount(ctx, r)
	case InstructionAssign:
		return p.processAssign(ctx, r)
	case InstructionTransfer:
		return p.processTransfer(ctx, r)
	case InstructionCreateAccountWithSeed:
		return p.processCreateAccountWithSeed(ctx, r)
	case InstructionAllocate:
		return p.processAllocate(ctx, r)
	case InstructionAllocateWithSeed:
		return p.processAllocateWithSeed(ctx, r)
	case InstructionAssignWithSeed:
		return p.processAssignWithSeed(ctx, r)
	case InstructionTransferWithSeed:
		return p.processTransferWithSeed(ctx, r)
	default:
		return svm.ErrInvalidInstructionData
	}
}

// accounts fetches the first n instruction accounts.
func instructionAccounts(ctx svm.InvokeContext, n int) ([]*svm.AccountInfo, error) {
	if ctx.NumAccounts() < n {
		return nil, svm.ErrNotEnoughAccountKeys
	}
	out := make([]*svm.AccountInfo, n)
	for i := range out {
		acc, err := ctx.Account(i)
		if err != nil {
			return nil, err
		}
		out[i] = acc
	}
	return out, nil
}

// processCreateAccount creates a new account.
// Accounts: [0] funding (signer, writable), [1] new account (signer, writable).
func (p *Processor) processCreateAccount(ctx svm.InvokeContext, r *reader) error {
	lamports, err1 := r.u64()
	space, err2 := r.u64()
	owner, err3 := r.pubkey()
	if err := firstErr(err1, err2, err3); err != nil {
		return svm.ErrInvalidInstructionData
	}

	accts, err := instructionAccounts(ctx, 2)
	if err != nil {
		return err
	}
	funder, newAccount := accts[0], accts[1]

	if !funder.IsSigner || !newAccount.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	if newAccount.Lamports > 0 {
		ctx.Log("Create Account: account %s already in use", newAccount.Key)
		return ErrAccountAlreadyInUse
	}
	if err := p.allocate(ctx, newAccount, space); err != nil {
		return err
	}
	newAccount.Owner = owner
	return p.transfer(ctx, funder, newAccount, lamports)
}

// processAssign changes the owner of an account.
// Accounts: [0] assigned account (signer, writable).
func (p *Processor) processAssign(ctx svm.InvokeContext, r *reader) error {
	owner, err := r.pubkey()
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	accts, err := instructionAccounts(ctx, 1)
	if err != nil {
		return err
	}
	account := accts[0]

	if account.Owner == owner {
		return nil
	}
	if !account.IsSigner {
		ctx.Log("Assign: account %s must sign", account.Key)
		return svm.ErrMissingRequiredSignature
	}
	if account.Owner != ProgramID {
		return svm.ErrInvalidAccountOwner
	}
	account.Owner = owner
	return nil
}

// processTransfer transfers lamports between accounts.
// Accounts: [0] from (signer, writable), [1] to (writable).
func (p *Processor) processTransfer(ctx svm.InvokeContext, r *reader) error {
	lamports, err := r.u64()
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	accts, err := instructionAccounts(ctx, 2)
	if err != nil {
		return err
	}
	from, to := accts[0], accts[1]

	if !from.IsSigner {
		ctx.Log("Transfer: `from` account %s must sign", from.Key)
		return svm.ErrMissingRequiredSignature
	}
	return p.transfer(ctx, from, to, lamports)
}

// transfer moves lamports from a data-less account.
func (p *Processor) transfer(ctx svm.InvokeContext, from, to *svm.AccountInfo, lamports uint64) error {
	if len(from.Data) > 0 {
		ctx.Log("Transfer: `from` must not carry data")
		return svm.ErrInvalidArgument
	}
	if from.Lamports < lamports {
		ctx.Log("Transfer: insufficient lamports %d, need %d", from.Lamports, lamports)
		return ErrResultWithNegativeLamports
	}
	if to.Lamports > ^uint64(0)-lamports {
		return svm.ErrArithmeticOverflow
	}

	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

// processAllocate allocates space in an account.
// Accounts: [0] account (signer, writable).
func (p *Processor) processAllocate(ctx svm.InvokeContext, r *reader) error {
	space, err := r.u64()
	if err != nil {
		return svm.ErrInvalidInstructionData
	}

	accts, err := instructionAccounts(ctx, 1)
	if err != nil {
		return err
	}
	account := accts[0]

	if !account.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	return p.allocate(ctx, account, space)
}

// allocate gives a fresh system-owned account its data buffer.
func (p *Processor) allocate(ctx svm.InvokeContext, account *svm.AccountInfo, space uint64) error {
	if len(account.Data) > 0 || account.Owner != ProgramID {
		ctx.Log("Allocate: account %s already in use", account.Key)
		return ErrAccountAlreadyInUse
	}
	if space > accounts.MaxAccountDataSize {
		return ErrInvalidAccountDataLength
	}
	account.Data = make([]byte, space)
	return nil
}

// processCreateAccountWithSeed creates an account at a seed-derived address.
// Accounts: [0] funding (signer, writable), [1] new account (writable),
// [2] base (signer, optional when base is the funding account).
func (p *Processor) processCreateAccountWithSeed(ctx svm.InvokeContext, r *reader) error {
	base, err1 := r.pubkey()
	seed, err2 := r.seed()
	lamports, err3 := r.u64()
	space, err4 := r.u64()
	owner, err5 := r.pubkey()
	if err := firstErr(err1, err2, err3, err4, err5); err != nil {
		return err
	}

	accts, err := instructionAccounts(ctx, 2)
	if err != nil {
		return err
	}
	funder, newAccount := accts[0], accts[1]

	if !funder.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	if err := verifySeedAddress(ctx, newAccount.Key, base, seed, owner); err != nil {
		return err
	}
	if err := requireBaseSigner(ctx, base); err != nil {
		return err
	}
	if err := p.allocate(ctx, newAccount, space); err != nil {
		return err
	}
	newAccount.Owner = owner
	return p.transfer(ctx, funder, newAccount, lamports)
}

// processAllocateWithSeed allocates space in a seed-derived account.
// Accounts: [0] allocated account (writable), [1] base (signer).
func (p *Processor) processAllocateWithSeed(ctx svm.InvokeContext, r *reader) error {
	base, err1 := r.pubkey()
	seed, err2 := r.seed()
	space, err3 := r.u64()
	owner, err4 := r.pubkey()
	if err := firstErr(err1, err2, err3, err4); err != nil {
		return err
	}

	accts, err := instructionAccounts(ctx, 1)
	if err != nil {
		return err
	}
	account := accts[0]

	if err := verifySeedAddress(ctx, account.Key, base, seed, owner); err != nil {
		return err
	}
	if err := requireBaseSigner(ctx, base); err != nil {
		return err
	}
	if err := p.allocate(ctx, account, space); err != nil {
		return err
	}
	account.Owner = owner
	return nil
}

// processAssignWithSeed assigns owner to a seed-derived account.
// Accounts: [0] assigned account (writable), [1] base (signer).
func (p *Processor) processAssignWithSeed(ctx svm.InvokeContext, r *reader) error {
	base, err1 := r.pubkey()
	seed, err2 := r.seed()
	owner, err3 := r.pubkey()
	if err := firstErr(err1, err2, err3); err != nil {
		return err
	}

	accts, err := instructionAccounts(ctx, 1)
	if err != nil {
		return err
	}
	account := accts[0]

	if err := verifySeedAddress(ctx, account.Key, base, seed, owner); err != nil {
		return err
	}
	if err := requireBaseSigner(ctx, base); err != nil {
		return err
	}
	if account.Owner != ProgramID {
		return svm.ErrInvalidAccountOwner
	}
	account.Owner = owner
	return nil
}

// processTransferWithSeed transfers from a seed-derived account.
// Accounts: [0] from (writable), [1] base (signer), [2] to (writable).
func (p *Processor) processTransferWithSeed(ctx svm.InvokeContext, r *reader) error {
	lamports, err1 := r.u64()
	seed, err2 := r.seed()
	fromOwner, err3 := r.pubkey()
	if err := firstErr(err1, err2, err3); err != nil {
		return err
	}

	accts, err := instructionAccounts(ctx, 3)
	if err != nil {
		return err
	}
	from, base, to := accts[0], accts[1], accts[2]

	if !base.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	if err := verifySeedAddress(ctx, from.Key, base.Key, seed, fromOwner); err != nil {
		return err
	}
	return p.transfer(ctx, from, to, lamports)
}

// verifySeedAddress checks that addr == CreateWithSeed(base, seed, owner).
func verifySeedAddress(ctx svm.InvokeContext, addr, base types.Pubkey, seed string, owner types.Pubkey) error {
	expected, err := types.CreateWithSeed(base, seed, owner)
	if err != nil {
		return ErrMaxSeedLengthExceeded
	}
	if expected != addr {
		ctx.Log("Create: address %s does not match derived address %s", addr, expected)
		return ErrAddressWithSeedMismatch
	}
	return nil
}

// requireBaseSigner checks that base appears as a signer among the
// instruction's accounts.
func requireBaseSigner(ctx svm.InvokeContext, base types.Pubkey) error {
	for i := 0; i < ctx.NumAccounts(); i++ {
		acc, err := ctx.Account(i)
		if err != nil {
			return err
		}
		if acc.Key == base && acc.IsSigner {
			return nil
		}
	}
	ctx.Log("Create: base %s must sign", base)
	return svm.ErrMissingRequiredSignature
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
