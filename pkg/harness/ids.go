package harness

import (
	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/accounts"
	"github.com/fortiblox/stratus-harness/pkg/svm"
)

// Types callers outside this module need for the harness API.
type (
	Pubkey            = types.Pubkey
	Signature         = types.Signature
	Hash              = types.Hash
	Keypair           = types.Keypair
	Account           = accounts.Account
	Instruction       = svm.Instruction
	AccountMeta       = svm.AccountMeta
	InstructionResult = svm.InstructionResult
)

// Key constructors.
var (
	NewUniquePubkey  = types.NewUniquePubkey
	PubkeyFromBase58 = types.PubkeyFromBase58
	NewKeypair       = types.NewKeypair
	KeypairFromSeed  = types.KeypairFromSeed
	KeypairFromLabel = types.KeypairFromLabel
	FindPDA          = types.FindProgramAddress
)

// Well-known addresses.
var (
	SystemProgramID             = types.SystemProgramAddr
	TokenProgramID              = types.TokenProgramAddr
	Token2022ProgramID          = types.Token2022ProgramAddr
	AssociatedTokenProgramID    = types.AssociatedTokenProgramAddr
	MemoProgramID               = types.MemoProgramAddr
	MemoV1ProgramID             = types.MemoV1ProgramAddr
	AddressLookupTableProgramID = types.AddressLookupTableProgramAddr
	ComputeBudgetProgramID      = types.ComputeBudgetProgramAddr
	NativeMint                  = types.NativeMintAddr
	RentSysvar                  = types.SysvarRentAddr
	ClockSysvar                 = types.SysvarClockAddr
)
