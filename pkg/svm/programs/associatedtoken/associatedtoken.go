// Package associatedtoken implements the Associated Token Account program.
//
// Create derives the canonical token account for a wallet and mint, funds
// it from the payer, and initializes it through cross-program invocations
// of the System and Token programs.
package associatedtoken

import (
	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/system"
	"github.com/fortiblox/stratus-harness/pkg/svm/programs/token"
)

// ProgramID is the Associated Token Account program address.
var ProgramID = types.AssociatedTokenProgramAddr

// Instruction tags.
const (
	InstructionCreate           uint8 = 0
	InstructionCreateIdempotent uint8 = 1
)

// ErrInvalidOwner is returned when an existing associated account is not
// owned by the expected wallet.
var ErrInvalidOwner = svm.CustomError(0)

// Address returns the associated token account of wallet for mint under the
// classic Token program.
func Address(wallet, mint types.Pubkey) types.Pubkey {
	addr, _ := AddressWithProgram(wallet, mint, token.ProgramID)
	return addr
}

// AddressWithProgram returns the associated token account and its bump for
// an arbitrary token program.
func AddressWithProgram(wallet, mint, tokenProgram types.Pubkey) (types.Pubkey, uint8) {
	addr, bump, err := types.FindProgramAddress(seeds(wallet, mint, tokenProgram), ProgramID)
	if err != nil {
		// Three 32-byte seeds always have a viable bump in practice.
		panic(err)
	}
	return addr, bump
}

func seeds(wallet, mint, tokenProgram types.Pubkey) [][]byte {
	return [][]byte{wallet.Bytes(), tokenProgram.Bytes(), mint.Bytes()}
}

// Processor executes Associated Token Account instructions.
type Processor struct{}

// NewProcessor creates an Associated Token Account processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process executes an Associated Token Account instruction. Empty data is
// treated as Create.
//
// Accounts: [0] payer (signer, writable), [1] associated account
// (writable), [2] wallet, [3] mint, [4] System program, [5] token program.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if err := ctx.ConsumeCU(svm.CUAssociatedTokenCreate); err != nil {
		return err
	}

	idempotent := false
	switch {
	case len(data) == 0 || (len(data) == 1 && data[0] == InstructionCreate):
		ctx.Log("Create")
	case len(data) == 1 && data[0] == InstructionCreateIdempotent:
		ctx.Log("CreateIdempotent")
		idempotent = true
	default:
		return svm.ErrInvalidInstructionData
	}

	if ctx.NumAccounts() < 6 {
		return svm.ErrNotEnoughAccountKeys
	}
	accts := make([]*svm.AccountInfo, 6)
	for i := range accts {
		acc, err := ctx.Account(i)
		if err != nil {
			return err
		}
		accts[i] = acc
	}
	payer, ata, wallet, mint, tokenProgram := accts[0], accts[1], accts[2], accts[3], accts[5]

	if idempotent && ata.Owner == tokenProgram.Key {
		existing, err := token.UnpackAccount(ata.Data)
		if err != nil {
			return err
		}
		if existing.Owner != wallet.Key {
			return ErrInvalidOwner
		}
		if existing.Mint != mint.Key {
			return svm.ErrInvalidAccountData
		}
		return nil
	}

	expected, bump := AddressWithProgram(wallet.Key, mint.Key, tokenProgram.Key)
	if expected != ata.Key {
		ctx.Log("Error: Associated address does not match seed derivation")
		return svm.ErrInvalidSeeds
	}
	if mint.Owner != tokenProgram.Key {
		return svm.ErrIllegalOwner
	}

	signer := append(seeds(wallet.Key, mint.Key, tokenProgram.Key), []byte{bump})
	if err := createPDAAccount(ctx, payer, ata, tokenProgram.Key, signer); err != nil {
		return err
	}

	ctx.Log("Initialize the associated token account")
	init := token.InitializeAccount3(ata.Key, mint.Key, wallet.Key)
	init.ProgramID = tokenProgram.Key
	return ctx.Invoke(init)
}

// createPDAAccount allocates and assigns a rent-exempt token account at the
// program derived address. A prefunded address is topped up instead of
// created.
func createPDAAccount(ctx svm.InvokeContext, payer, account *svm.AccountInfo, owner types.Pubkey, signer [][]byte) error {
	required := ctx.Rent().MinimumBalance(token.AccountSize)

	if account.Lamports == 0 {
		return ctx.Invoke(system.CreateAccount(payer.Key, account.Key, required, token.AccountSize, owner), signer)
	}

	if account.Lamports < required {
		if err := ctx.Invoke(system.Transfer(payer.Key, account.Key, required-account.Lamports)); err != nil {
			return err
		}
	}
	if err := ctx.Invoke(system.Allocate(account.Key, token.AccountSize), signer); err != nil {
		return err
	}
	return ctx.Invoke(system.Assign(account.Key, owner), signer)
}

// Create builds an associated token account creation under the classic
// Token program.
func Create(payer, wallet, mint types.Pubkey) svm.Instruction {
	return CreateWithProgram(payer, wallet, mint, token.ProgramID, false)
}

// CreateIdempotent builds a creation that succeeds when the account already
// exists for the same wallet and mint.
func CreateIdempotent(payer, wallet, mint types.Pubkey) svm.Instruction {
	return CreateWithProgram(payer, wallet, mint, token.ProgramID, true)
}

// CreateWithProgram builds a creation for an arbitrary token program.
func CreateWithProgram(payer, wallet, mint, tokenProgram types.Pubkey, idempotent bool) svm.Instruction {
	ata, _ := AddressWithProgram(wallet, mint, tokenProgram)
	tag := InstructionCreate
	if idempotent {
		tag = InstructionCreateIdempotent
	}
	return svm.Instruction{
		ProgramID: ProgramID,
		Accounts: []svm.AccountMeta{
			svm.Writable(payer, true),
			svm.Writable(ata, false),
			svm.Readonly(wallet, false),
			svm.Readonly(mint, false),
			svm.Readonly(system.ProgramID, false),
			svm.Readonly(tokenProgram, false),
		},
		Data: []byte{tag},
	}
}
