// Package token implements the subset of the SPL Token program used by
// tests: mint and account initialization, minting, transfers, burning,
// delegation, closing, and wrapped SOL synchronization.
//
// The same processor serves Token-2022 for accounts without extensions; it
// checks ownership against whichever program id it was invoked as.
package token

import (
	"encoding/binary"

	"github.com/fortiblox/stratus-harness/internal/types"
	"github.com/fortiblox/stratus-harness/pkg/svm"
)

// ProgramID is the SPL Token program address.
var ProgramID = types.TokenProgramAddr

// Instruction tags.
const (
	InstructionTransfer           uint8 = 3
	InstructionApprove            uint8 = 4
	InstructionRevoke             uint8 = 5
	InstructionMintTo             uint8 = 7
	InstructionBurn               uint8 = 8
	InstructionCloseAccount       uint8 = 9
	InstructionTransferChecked    uint8 = 12
	InstructionMintToChecked      uint8 = 14
	InstructionSyncNative         uint8 = 17
	InstructionInitializeAccount3 uint8 = 18
	InstructionInitializeMint2    uint8 = 20
	InstructionGetAccountDataSize uint8 = 21
)

// Token program custom error codes.
var (
	ErrNotRentExempt         = svm.CustomError(0)
	ErrInsufficientFunds     = svm.CustomError(1)
	ErrInvalidMint           = svm.CustomError(2)
	ErrMintMismatch          = svm.CustomError(3)
	ErrOwnerMismatch         = svm.CustomError(4)
	ErrFixedSupply           = svm.CustomError(5)
	ErrAlreadyInUse          = svm.CustomError(6)
	ErrUninitializedState    = svm.CustomError(9)
	ErrNativeNotSupported    = svm.CustomError(10)
	ErrNonNativeHasBalance   = svm.CustomError(11)
	ErrInvalidInstruction    = svm.CustomError(12)
	ErrInvalidState          = svm.CustomError(13)
	ErrOverflow              = svm.CustomError(14)
	ErrAccountFrozen         = svm.CustomError(17)
	ErrMintDecimalsMismatch  = svm.CustomError(18)
	ErrNonNativeNotSupported = svm.CustomError(19)
)

// Processor executes Token instructions.
type Processor struct{}

// NewProcessor creates a Token processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process executes a Token instruction.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if err := ctx.ConsumeCU(svm.CUTokenDefault); err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrInvalidInstruction
	}
	tag, rest := data[0], data[1:]

	switch tag {
	case InstructionInitializeMint2:
		if len(rest) < 34 {
			return ErrInvalidInstruction
		}
		authority := types.Pubkey(rest[1:33])
		freeze, ok := decodeOptionPubkey(rest[33:])
		if !ok {
			return ErrInvalidInstruction
		}
		ctx.Log("Instruction: InitializeMint2")
		return p.initializeMint(ctx, rest[0], authority, freeze)
	case InstructionInitializeAccount3:
		if len(rest) != 32 {
			return ErrInvalidInstruction
		}
		ctx.Log("Instruction: InitializeAccount3")
		return p.initializeAccount(ctx, types.Pubkey(rest))
	case InstructionTransfer:
		amount, ok := decodeAmount(rest)
		if !ok {
			return ErrInvalidInstruction
		}
		ctx.Log("Instruction: Transfer")
		return p.transfer(ctx, amount, nil)
	case InstructionTransferChecked:
		amount, ok := decodeAmount(rest[:min(8, len(rest))])
		if !ok || len(rest) != 9 {
			return ErrInvalidInstruction
		}
		decimals := rest[8]
		ctx.Log("Instruction: TransferChecked")
		return p.transfer(ctx, amount, &decimals)
	case InstructionMintTo:
		amount, ok := decodeAmount(rest)
		if !ok {
			return ErrInvalidInstruction
		}
		ctx.Log("Instruction: MintTo")
		return p.mintTo(ctx, amount, nil)
	case InstructionMintToChecked:
		amount, ok := decodeAmount(rest[:min(8, len(rest))])
		if !ok || len(rest) != 9 {
			return ErrInvalidInstruction
		}
		decimals := rest[8]
		ctx.Log("Instruction: MintToChecked")
		return p.mintTo(ctx, amount, &decimals)
	case InstructionBurn:
		amount, ok := decodeAmount(rest)
		if !ok {
			return ErrInvalidInstruction
		}
		ctx.Log("Instruction: Burn")
		return p.burn(ctx, amount)
	case InstructionApprove:
		amount, ok := decodeAmount(rest)
		if !ok {
			return ErrInvalidInstruction
		}
		ctx.Log("Instruction: Approve")
		return p.approve(ctx, amount)
	case InstructionRevoke:
		ctx.Log("Instruction: Revoke")
		return p.revoke(ctx)
	case InstructionCloseAccount:
		ctx.Log("Instruction: CloseAccount")
		return p.closeAccount(ctx)
	case InstructionSyncNative:
		ctx.Log("Instruction: SyncNative")
		return p.syncNative(ctx)
	case InstructionGetAccountDataSize:
		ctx.SetReturnData(binary.LittleEndian.AppendUint64(nil, AccountSize))
		return nil
	default:
		return ErrInvalidInstruction
	}
}

func decodeAmount(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

// decodeOptionPubkey reads a 1-byte tagged optional pubkey.
func decodeOptionPubkey(b []byte) (*types.Pubkey, bool) {
	if len(b) == 0 {
		return nil, false
	}
	switch b[0] {
	case 0:
		return nil, true
	case 1:
		if len(b) < 33 {
			return nil, false
		}
		pk := types.Pubkey(b[1:33])
		return &pk, true
	default:
		return nil, false
	}
}

func (p *Processor) accounts(ctx svm.InvokeContext, n int) ([]*svm.AccountInfo, error) {
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

func checkOwner(ctx svm.InvokeContext, acc *svm.AccountInfo) error {
	if acc.Owner != ctx.ProgramID() {
		return svm.ErrIncorrectProgramID
	}
	return nil
}

func loadAccount(ctx svm.InvokeContext, info *svm.AccountInfo) (*Account, error) {
	if err := checkOwner(ctx, info); err != nil {
		return nil, err
	}
	return UnpackAccount(info.Data)
}

func loadMint(ctx svm.InvokeContext, info *svm.AccountInfo) (*Mint, error) {
	if err := checkOwner(ctx, info); err != nil {
		return nil, err
	}
	return UnpackMint(info.Data)
}

// validateAuthority checks that authority is expected and signed.
func validateAuthority(expected types.Pubkey, authority *svm.AccountInfo) error {
	if expected != authority.Key {
		return ErrOwnerMismatch
	}
	if !authority.IsSigner {
		return svm.ErrMissingRequiredSignature
	}
	return nil
}

// Accounts: [0] mint (writable).
func (p *Processor) initializeMint(ctx svm.InvokeContext, decimals uint8, authority types.Pubkey, freeze *types.Pubkey) error {
	accts, err := p.accounts(ctx, 1)
	if err != nil {
		return err
	}
	mintInfo := accts[0]
	if err := checkOwner(ctx, mintInfo); err != nil {
		return err
	}

	mint, err := unpackMintUnchecked(mintInfo.Data)
	if err != nil {
		return err
	}
	if mint.IsInitialized {
		return ErrAlreadyInUse
	}
	if !ctx.Rent().IsExempt(mintInfo.Lamports, uint64(len(mintInfo.Data))) {
		return ErrNotRentExempt
	}

	mint.MintAuthority = &authority
	mint.Decimals = decimals
	mint.IsInitialized = true
	mint.FreezeAuthority = freeze
	mintInfo.Data = mint.Pack()
	return nil
}

// Accounts: [0] account (writable), [1] mint.
func (p *Processor) initializeAccount(ctx svm.InvokeContext, owner types.Pubkey) error {
	accts, err := p.accounts(ctx, 2)
	if err != nil {
		return err
	}
	accInfo, mintInfo := accts[0], accts[1]
	if err := checkOwner(ctx, accInfo); err != nil {
		return err
	}

	acc, err := unpackAccountUnchecked(accInfo.Data)
	if err != nil {
		return err
	}
	if acc.State != StateUninitialized {
		return ErrAlreadyInUse
	}

	rent := ctx.Rent()
	reserve := rent.MinimumBalance(uint64(len(accInfo.Data)))
	if accInfo.Lamports < reserve {
		return ErrNotRentExempt
	}

	isNative := mintInfo.Key == types.NativeMintAddr
	if !isNative {
		if _, err := loadMint(ctx, mintInfo); err != nil {
			return ErrInvalidMint
		}
	}

	acc.Mint = mintInfo.Key
	acc.Owner = owner
	acc.Delegate = nil
	acc.DelegatedAmount = 0
	acc.State = StateInitialized
	if isNative {
		acc.IsNative = &reserve
		acc.Amount = accInfo.Lamports - reserve
	} else {
		acc.IsNative = nil
		acc.Amount = 0
	}
	accInfo.Data = acc.Pack()
	return nil
}

// Accounts: [0] source, [1] destination, [2] authority, or with decimals
// [0] source, [1] mint, [2] destination, [3] authority.
func (p *Processor) transfer(ctx svm.InvokeContext, amount uint64, decimals *uint8) error {
	n := 3
	if decimals != nil {
		n = 4
	}
	accts, err := p.accounts(ctx, n)
	if err != nil {
		return err
	}

	srcInfo, dstInfo, authInfo := accts[0], accts[1], accts[2]
	var mintInfo *svm.AccountInfo
	if decimals != nil {
		mintInfo, dstInfo, authInfo = accts[1], accts[2], accts[3]
	}

	src, err := loadAccount(ctx, srcInfo)
	if err != nil {
		return err
	}
	dst, err := loadAccount(ctx, dstInfo)
	if err != nil {
		return err
	}

	if src.IsFrozen() || dst.IsFrozen() {
		return ErrAccountFrozen
	}
	if src.Amount < amount {
		return ErrInsufficientFunds
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}

	if mintInfo != nil {
		if mintInfo.Key != src.Mint {
			return ErrMintMismatch
		}
		mint, err := loadMint(ctx, mintInfo)
		if err != nil {
			return err
		}
		if mint.Decimals != *decimals {
			return ErrMintDecimalsMismatch
		}
	}

	selfTransfer := srcInfo.Key == dstInfo.Key

	if src.Delegate != nil && *src.Delegate == authInfo.Key {
		if err := validateAuthority(*src.Delegate, authInfo); err != nil {
			return err
		}
		if src.DelegatedAmount < amount {
			return ErrInsufficientFunds
		}
		if !selfTransfer {
			src.DelegatedAmount -= amount
			if src.DelegatedAmount == 0 {
				src.Delegate = nil
			}
		}
	} else if err := validateAuthority(src.Owner, authInfo); err != nil {
		return err
	}

	if selfTransfer {
		return nil
	}

	if dst.Amount > ^uint64(0)-amount {
		return ErrOverflow
	}
	src.Amount -= amount
	dst.Amount += amount

	if src.Native() {
		if srcInfo.Lamports < amount || dstInfo.Lamports > ^uint64(0)-amount {
			return ErrOverflow
		}
		srcInfo.Lamports -= amount
		dstInfo.Lamports += amount
	}

	srcInfo.Data = src.Pack()
	dstInfo.Data = dst.Pack()
	return nil
}

// Accounts: [0] mint (writable), [1] destination (writable), [2] authority.
func (p *Processor) mintTo(ctx svm.InvokeContext, amount uint64, decimals *uint8) error {
	accts, err := p.accounts(ctx, 3)
	if err != nil {
		return err
	}
	mintInfo, dstInfo, authInfo := accts[0], accts[1], accts[2]

	dst, err := loadAccount(ctx, dstInfo)
	if err != nil {
		return err
	}
	if dst.IsFrozen() {
		return ErrAccountFrozen
	}
	if dst.Native() {
		return ErrNativeNotSupported
	}
	if dst.Mint != mintInfo.Key {
		return ErrMintMismatch
	}

	mint, err := loadMint(ctx, mintInfo)
	if err != nil {
		return err
	}
	if decimals != nil && mint.Decimals != *decimals {
		return ErrMintDecimalsMismatch
	}
	if mint.MintAuthority == nil {
		return ErrFixedSupply
	}
	if err := validateAuthority(*mint.MintAuthority, authInfo); err != nil {
		return err
	}

	if dst.Amount > ^uint64(0)-amount || mint.Supply > ^uint64(0)-amount {
		return ErrOverflow
	}
	dst.Amount += amount
	mint.Supply += amount

	dstInfo.Data = dst.Pack()
	mintInfo.Data = mint.Pack()
	return nil
}

// Accounts: [0] account (writable), [1] mint (writable), [2] authority.
func (p *Processor) burn(ctx svm.InvokeContext, amount uint64) error {
	accts, err := p.accounts(ctx, 3)
	if err != nil {
		return err
	}
	accInfo, mintInfo, authInfo := accts[0], accts[1], accts[2]

	acc, err := loadAccount(ctx, accInfo)
	if err != nil {
		return err
	}
	if acc.IsFrozen() {
		return ErrAccountFrozen
	}
	if acc.Native() {
		return ErrNativeNotSupported
	}
	if acc.Amount < amount {
		return ErrInsufficientFunds
	}
	if acc.Mint != mintInfo.Key {
		return ErrMintMismatch
	}
	mint, err := loadMint(ctx, mintInfo)
	if err != nil {
		return err
	}

	if acc.Delegate != nil && *acc.Delegate == authInfo.Key {
		if err := validateAuthority(*acc.Delegate, authInfo); err != nil {
			return err
		}
		if acc.DelegatedAmount < amount {
			return ErrInsufficientFunds
		}
		acc.DelegatedAmount -= amount
		if acc.DelegatedAmount == 0 {
			acc.Delegate = nil
		}
	} else if err := validateAuthority(acc.Owner, authInfo); err != nil {
		return err
	}

	if mint.Supply < amount {
		return ErrOverflow
	}
	acc.Amount -= amount
	mint.Supply -= amount

	accInfo.Data = acc.Pack()
	mintInfo.Data = mint.Pack()
	return nil
}

// Accounts: [0] source (writable), [1] delegate, [2] owner.
func (p *Processor) approve(ctx svm.InvokeContext, amount uint64) error {
	accts, err := p.accounts(ctx, 3)
	if err != nil {
		return err
	}
	srcInfo, delegateInfo, ownerInfo := accts[0], accts[1], accts[2]

	src, err := loadAccount(ctx, srcInfo)
	if err != nil {
		return err
	}
	if src.IsFrozen() {
		return ErrAccountFrozen
	}
	if err := validateAuthority(src.Owner, ownerInfo); err != nil {
		return err
	}

	delegate := delegateInfo.Key
	src.Delegate = &delegate
	src.DelegatedAmount = amount
	srcInfo.Data = src.Pack()
	return nil
}

// Accounts: [0] source (writable), [1] owner.
func (p *Processor) revoke(ctx svm.InvokeContext) error {
	accts, err := p.accounts(ctx, 2)
	if err != nil {
		return err
	}
	srcInfo, ownerInfo := accts[0], accts[1]

	src, err := loadAccount(ctx, srcInfo)
	if err != nil {
		return err
	}
	if src.IsFrozen() {
		return ErrAccountFrozen
	}
	if err := validateAuthority(src.Owner, ownerInfo); err != nil {
		return err
	}

	src.Delegate = nil
	src.DelegatedAmount = 0
	srcInfo.Data = src.Pack()
	return nil
}

// Accounts: [0] account (writable), [1] destination (writable), [2] authority.
func (p *Processor) closeAccount(ctx svm.InvokeContext) error {
	accts, err := p.accounts(ctx, 3)
	if err != nil {
		return err
	}
	accInfo, dstInfo, authInfo := accts[0], accts[1], accts[2]
	if accInfo.Key == dstInfo.Key {
		return svm.ErrInvalidAccountData
	}

	acc, err := loadAccount(ctx, accInfo)
	if err != nil {
		return err
	}
	if !acc.Native() && acc.Amount != 0 {
		return ErrNonNativeHasBalance
	}

	authority := acc.Owner
	if acc.CloseAuthority != nil {
		authority = *acc.CloseAuthority
	}
	if err := validateAuthority(authority, authInfo); err != nil {
		return err
	}

	if dstInfo.Lamports > ^uint64(0)-accInfo.Lamports {
		return ErrOverflow
	}
	dstInfo.Lamports += accInfo.Lamports
	accInfo.Lamports = 0
	accInfo.Data = nil
	accInfo.Owner = types.SystemProgramAddr
	return nil
}

// Accounts: [0] native token account (writable).
func (p *Processor) syncNative(ctx svm.InvokeContext) error {
	accts, err := p.accounts(ctx, 1)
	if err != nil {
		return err
	}
	accInfo := accts[0]

	acc, err := loadAccount(ctx, accInfo)
	if err != nil {
		return err
	}
	if !acc.Native() {
		return ErrNonNativeNotSupported
	}
	if accInfo.Lamports < *acc.IsNative {
		return ErrOverflow
	}
	amount := accInfo.Lamports - *acc.IsNative
	if amount < acc.Amount {
		return ErrInvalidState
	}
	acc.Amount = amount
	accInfo.Data = acc.Pack()
	return nil
}
